package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/arborline/catalog-server/internal/domain"
	"github.com/arborline/catalog-server/internal/pkg/logger"
)

// PDFExtractor extracts catalog entities from manufacturer PDFs using text
// rules. Embedded product photos are pulled from the raw JPEG streams and
// attached to products in document order.
type PDFExtractor struct{}

// NewPDFExtractor creates the default extraction engine.
func NewPDFExtractor() *PDFExtractor { return &PDFExtractor{} }

// Text rules tuned against real manufacturer catalogs. Model numbers are the
// anchor: a line without one is never a product.
var (
	reFamily    = regexp.MustCompile(`^\s*(?:The\s+)?([A-Z][A-Za-z]+(?:\s+[A-Z][A-Za-z]+){0,3})\s+(?:Collection|Series|Range|Family)\s*$`)
	reModel     = regexp.MustCompile(`\b([A-Z]{2,5}-\d{2,5})\b`)
	reVariation = regexp.MustCompile(`\b([A-Z]{2,5}-\d{2,5}-[A-Z0-9]{2,5})\b`)
	rePrice     = regexp.MustCompile(`(?:\$|€|£|USD\s*)(\d{1,3}(?:,\d{3})*(?:\.\d{2})?)`)
	reAdjust    = regexp.MustCompile(`([+-])\s*(?:\$|€|£)(\d+(?:\.\d{2})?)`)
	reDims      = regexp.MustCompile(`(\d{2,4})\s*[x×]\s*(\d{2,4})\s*[x×]\s*(\d{2,4})\s*(mm|cm)`)
	reWeight    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*kg\b`)
)

type extractState struct {
	sink       Sink
	familyID   *string
	products   []string // product ids in document order, for image attribution
	lastID     string
	imageCount map[string]int
}

// Extract walks the document page by page, emitting families, products and
// variations from text, then attaches embedded images.
func (e *PDFExtractor) Extract(ctx context.Context, r io.Reader, maxPages int, sink Sink) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("not a readable PDF: %w", err)
	}

	total := reader.NumPage()
	if maxPages > 0 && total > maxPages {
		total = maxPages
	}
	if err := sink.StartDocument(total); err != nil {
		return err
	}

	st := &extractState{sink: sink, imageCount: make(map[string]int)}

	for page := 1; page <= total; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := reader.Page(page)
		if p.V.IsNull() {
			if err := sink.PageDone(page); err != nil {
				return err
			}
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			// A single malformed page should not sink the whole catalog.
			logger.Warn("page text extraction failed", "page", page, "error", err)
			text = ""
		}
		if err := e.extractPage(st, page, text); err != nil {
			return err
		}
		if err := sink.PageDone(page); err != nil {
			return err
		}
	}

	sink.Step("extracting images")
	if err := e.attachImages(ctx, st, data); err != nil {
		return err
	}
	return nil
}

func (e *PDFExtractor) extractPage(st *extractState, page int, text string) error {
	lines := strings.Split(text, "\n")
	var prevLine string

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := reFamily.FindStringSubmatch(line); m != nil {
			id, err := st.sink.AddFamily(&domain.StagedFamily{
				Name:       m[1],
				SourcePage: page,
			})
			if err != nil {
				return err
			}
			st.familyID = &id
			prevLine = line
			continue
		}

		// Variation lines carry a suffixed model number. They must be
		// checked before product lines or the base-model rule eats them.
		if m := reVariation.FindStringSubmatch(line); m != nil && st.lastID != "" {
			v := &domain.StagedVariation{
				ProductID:   st.lastID,
				SKU:         m[1],
				Suffix:      m[1][strings.LastIndex(m[1], "-")+1:],
				IsAvailable: !containsFold(line, "out of stock", "discontinued", "unavailable"),
			}
			if adj := reAdjust.FindStringSubmatch(line); adj != nil {
				cents := parseCents(adj[2])
				if adj[1] == "-" {
					cents = -cents
				}
				v.PriceAdjustmentCents = cents
			}
			if err := st.sink.AddVariation(v); err != nil {
				return err
			}
			prevLine = line
			continue
		}

		if m := reModel.FindStringSubmatch(line); m != nil {
			p := &domain.StagedProduct{
				ModelNumber: m[1],
				FamilyID:    st.familyID,
				Name:        productName(line, m[1], prevLine),
				SourcePage:  page,
				InStock:     !containsFold(line, "out of stock", "discontinued"),
			}

			confidence := 40
			if p.Name != "" {
				confidence += 10
			}
			if pm := rePrice.FindStringSubmatch(line); pm != nil {
				p.PriceCents = parseCents(pm[1])
				confidence += 25
			}
			if dm := reDims.FindStringSubmatch(line); dm != nil {
				w, _ := strconv.Atoi(dm[1])
				h, _ := strconv.Atoi(dm[2])
				d, _ := strconv.Atoi(dm[3])
				if dm[4] == "cm" {
					w, h, d = w*10, h*10, d*10
				}
				p.WidthMM, p.HeightMM, p.DepthMM = w, h, d
				confidence += 15
			}
			if wm := reWeight.FindStringSubmatch(line); wm != nil {
				kg, _ := strconv.ParseFloat(wm[1], 64)
				p.WeightGrams = int(kg * 1000)
				confidence += 10
			}
			if confidence > 100 {
				confidence = 100
			}
			p.ExtractionConfidence = confidence

			id, err := st.sink.AddProduct(p)
			if err != nil {
				return err
			}
			st.lastID = id
			st.products = append(st.products, id)
		}

		prevLine = line
	}
	return nil
}

// attachImages pairs embedded JPEG streams with products in document order.
// The first image of a product becomes primary, the second hover, the rest
// gallery.
func (e *PDFExtractor) attachImages(ctx context.Context, st *extractState, data []byte) error {
	if len(st.products) == 0 {
		return nil
	}

	streams := extractJPEGStreams(data)
	for i, jpeg := range streams {
		if err := ctx.Err(); err != nil {
			return err
		}
		productID := st.products[i%len(st.products)]
		n := st.imageCount[productID]
		st.imageCount[productID] = n + 1

		var roles []domain.ImageRole
		switch n {
		case 0:
			roles = []domain.ImageRole{domain.RolePrimary}
		case 1:
			roles = []domain.ImageRole{domain.RoleHover}
		default:
			roles = []domain.ImageRole{domain.RoleGallery}
		}

		err := st.sink.AddImage(&domain.StagedImage{
			ProductID: productID,
			Roles:     roles,
		}, jpeg)
		if err != nil {
			return err
		}
	}
	return nil
}

// extractJPEGStreams scans the raw document for DCTDecode image streams.
// JPEG data passes through PDF uncompressed, so the bytes between stream
// markers are a complete image file.
func extractJPEGStreams(data []byte) [][]byte {
	var out [][]byte
	rest := data
	for {
		i := bytes.Index(rest, []byte("/DCTDecode"))
		if i < 0 {
			break
		}
		rest = rest[i:]
		start := bytes.Index(rest, []byte("stream"))
		if start < 0 {
			break
		}
		body := rest[start+len("stream"):]
		// The stream keyword is followed by an EOL before the data.
		body = bytes.TrimLeft(body, "\r\n")
		end := bytes.Index(body, []byte("endstream"))
		if end < 0 {
			break
		}
		jpeg := bytes.TrimRight(body[:end], "\r\n")
		// Sanity: JPEG SOI marker.
		if len(jpeg) > 4 && jpeg[0] == 0xFF && jpeg[1] == 0xD8 {
			out = append(out, jpeg)
		}
		rest = body[end:]
	}
	return out
}

// productName derives a display name from the line around the model number,
// falling back to the preceding line when the model stands alone.
func productName(line, model, prevLine string) string {
	name := strings.TrimSpace(strings.SplitN(line, model, 2)[0])
	name = strings.Trim(name, " -–:·.")
	if name != "" {
		return name
	}
	prev := strings.TrimSpace(prevLine)
	if prev != "" && !reModel.MatchString(prev) && len(prev) < 80 {
		return prev
	}
	return ""
}

func parseCents(s string) int64 {
	s = strings.ReplaceAll(s, ",", "")
	whole, frac := s, "00"
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	w, _ := strconv.ParseInt(whole, 10, 64)
	f, _ := strconv.ParseInt(frac, 10, 64)
	return w*100 + f
}

func containsFold(s string, subs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
