package parser

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborline/catalog-server/internal/domain"
)

// captureSink collects everything the extractor emits.
type captureSink struct {
	total      int
	families   []domain.StagedFamily
	products   []domain.StagedProduct
	variations []domain.StagedVariation
	images     []domain.StagedImage
	pages      []int
	nextID     int
}

func (c *captureSink) id() string {
	c.nextID++
	return fmt.Sprintf("id-%d", c.nextID)
}

func (c *captureSink) StartDocument(totalPages int) error { c.total = totalPages; return nil }

func (c *captureSink) AddFamily(f *domain.StagedFamily) (string, error) {
	f.ID = c.id()
	c.families = append(c.families, *f)
	return f.ID, nil
}

func (c *captureSink) AddProduct(p *domain.StagedProduct) (string, error) {
	p.ID = c.id()
	c.products = append(c.products, *p)
	return p.ID, nil
}

func (c *captureSink) AddVariation(v *domain.StagedVariation) error {
	v.ID = c.id()
	c.variations = append(c.variations, *v)
	return nil
}

func (c *captureSink) AddImage(img *domain.StagedImage, _ []byte) error {
	img.ID = c.id()
	c.images = append(c.images, *img)
	return nil
}

func (c *captureSink) PageDone(page int) error { c.pages = append(c.pages, page); return nil }
func (c *captureSink) Step(string)             {}

func extractText(t *testing.T, text string) *captureSink {
	t.Helper()
	sink := &captureSink{}
	st := &extractState{sink: sink, imageCount: make(map[string]int)}
	require.NoError(t, (&PDFExtractor{}).extractPage(st, 1, text))
	return sink
}

func TestExtractPageFamilyHeading(t *testing.T) {
	sink := extractText(t, "The Oslo Collection\nTimeless Scandinavian seating\n")
	require.Len(t, sink.families, 1)
	assert.Equal(t, "Oslo", sink.families[0].Name)
	assert.Equal(t, 1, sink.families[0].SourcePage)
}

func TestExtractPageProductLine(t *testing.T) {
	sink := extractText(t, "Oslo Lounge Chair OSL-100 $1,249.00 820x760x850 mm 14.5 kg\n")
	require.Len(t, sink.products, 1)
	p := sink.products[0]
	assert.Equal(t, "OSL-100", p.ModelNumber)
	assert.Equal(t, "Oslo Lounge Chair", p.Name)
	assert.Equal(t, int64(124900), p.PriceCents)
	assert.Equal(t, 820, p.WidthMM)
	assert.Equal(t, 760, p.HeightMM)
	assert.Equal(t, 850, p.DepthMM)
	assert.Equal(t, 14500, p.WeightGrams)
	assert.True(t, p.InStock)

	// Name, price, dimensions and weight all matched.
	assert.Equal(t, 100, p.ExtractionConfidence)
	assert.False(t, p.RequiresReview)
}

func TestExtractPageNameFromPreviousLine(t *testing.T) {
	sink := extractText(t, "Oslo Side Table\nOSL-210 $399.00\n")
	require.Len(t, sink.products, 1)
	assert.Equal(t, "Oslo Side Table", sink.products[0].Name)
}

func TestExtractPageCMDimensionsConvert(t *testing.T) {
	sink := extractText(t, "Bench BNC-10 $99.00 120x45x40 cm\n")
	require.Len(t, sink.products, 1)
	assert.Equal(t, 1200, sink.products[0].WidthMM)
	assert.Equal(t, 450, sink.products[0].HeightMM)
	assert.Equal(t, 400, sink.products[0].DepthMM)
}

func TestExtractPageBareModelIsLowConfidence(t *testing.T) {
	sink := extractText(t, "ZZZ-999\n")
	require.Len(t, sink.products, 1)
	p := sink.products[0]
	assert.Less(t, p.ExtractionConfidence, ReviewThreshold)
}

func TestExtractPageProductsJoinCurrentFamily(t *testing.T) {
	sink := extractText(t, "The Fjord Series\nFjord Sofa FJD-300 $2,100.00\nFjord Ottoman FJD-310 $450.00\n")
	require.Len(t, sink.families, 1)
	require.Len(t, sink.products, 2)
	famID := sink.families[0].ID
	for _, p := range sink.products {
		require.NotNil(t, p.FamilyID)
		assert.Equal(t, famID, *p.FamilyID)
	}
}

func TestExtractPageVariations(t *testing.T) {
	sink := extractText(t, "Fjord Sofa FJD-300 $2,100.00\nFJD-300-BLK Black leather +$150.00\nFJD-300-OAT Oatmeal discontinued -$50.00\n")
	require.Len(t, sink.products, 1)
	require.Len(t, sink.variations, 2)

	blk := sink.variations[0]
	assert.Equal(t, sink.products[0].ID, blk.ProductID)
	assert.Equal(t, "FJD-300-BLK", blk.SKU)
	assert.Equal(t, "BLK", blk.Suffix)
	assert.Equal(t, int64(15000), blk.PriceAdjustmentCents)
	assert.True(t, blk.IsAvailable)

	oat := sink.variations[1]
	assert.Equal(t, "OAT", oat.Suffix)
	assert.Equal(t, int64(-5000), oat.PriceAdjustmentCents)
	assert.False(t, oat.IsAvailable)
}

func TestExtractPageOutOfStock(t *testing.T) {
	sink := extractText(t, "Fjord Chair FJD-500 $800.00 out of stock\n")
	require.Len(t, sink.products, 1)
	assert.False(t, sink.products[0].InStock)
}

func TestParseCents(t *testing.T) {
	assert.Equal(t, int64(124900), parseCents("1,249.00"))
	assert.Equal(t, int64(39900), parseCents("399.00"))
	assert.Equal(t, int64(9900), parseCents("99"))
	assert.Equal(t, int64(150), parseCents("1.50"))
}

func TestExtractJPEGStreams(t *testing.T) {
	jpeg := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("jfifdata")...)
	doc := []byte("junk /Subtype /Image /Filter /DCTDecode >>\nstream\r\n")
	doc = append(doc, jpeg...)
	doc = append(doc, []byte("\r\nendstream more junk /DCTDecode >>\nstream\n")...)
	doc = append(doc, jpeg...)
	doc = append(doc, []byte("\nendstream trailer")...)

	streams := extractJPEGStreams(doc)
	require.Len(t, streams, 2)
	for _, s := range streams {
		assert.Equal(t, jpeg, s)
	}
}

func TestExtractJPEGStreamsIgnoresNonJPEG(t *testing.T) {
	doc := []byte("/DCTDecode stream\nnot an image\nendstream")
	assert.Empty(t, extractJPEGStreams(doc))
}

func TestAttachImagesRolesInOrder(t *testing.T) {
	sink := &captureSink{}
	st := &extractState{sink: sink, imageCount: make(map[string]int)}
	st.products = []string{"p1"}

	jpeg := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("body")...)
	var doc []byte
	for i := 0; i < 3; i++ {
		doc = append(doc, []byte("/DCTDecode stream\n")...)
		doc = append(doc, jpeg...)
		doc = append(doc, []byte("\nendstream")...)
	}

	require.NoError(t, (&PDFExtractor{}).attachImages(t.Context(), st, doc))
	require.Len(t, sink.images, 3)
	assert.Equal(t, []domain.ImageRole{domain.RolePrimary}, sink.images[0].Roles)
	assert.Equal(t, []domain.ImageRole{domain.RoleHover}, sink.images[1].Roles)
	assert.Equal(t, []domain.ImageRole{domain.RoleGallery}, sink.images[2].Roles)
}
