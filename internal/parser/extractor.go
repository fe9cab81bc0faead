package parser

import (
	"context"
	"io"

	"github.com/arborline/catalog-server/internal/domain"
)

// Sink receives extracted entities as the extractor walks the document.
// Add methods assign and return entity ids so the extractor can link
// children to parents. The sink owns image bytes passed to AddImage.
type Sink interface {
	// StartDocument reports the page count the extractor will process,
	// after any max-pages clamp. Called once, before any Add.
	StartDocument(totalPages int) error

	AddFamily(f *domain.StagedFamily) (id string, err error)
	AddProduct(p *domain.StagedProduct) (id string, err error)
	AddVariation(v *domain.StagedVariation) error
	AddImage(img *domain.StagedImage, data []byte) error

	// PageDone marks a page fully processed. Pages arrive in order.
	PageDone(page int) error

	// Step names the current phase for progress display.
	Step(name string)
}

// Extractor turns a catalog document into staged entities via the sink.
// maxPages of 0 means the whole document.
type Extractor interface {
	Extract(ctx context.Context, r io.Reader, maxPages int, sink Sink) error
}

// Batch is one page worth of extracted rows, inserted together.
type Batch struct {
	Families   []domain.StagedFamily
	Products   []domain.StagedProduct
	Variations []domain.StagedVariation
	Images     []domain.StagedImage
}

// Empty reports whether the batch holds no rows.
func (b *Batch) Empty() bool {
	return len(b.Families) == 0 && len(b.Products) == 0 &&
		len(b.Variations) == 0 && len(b.Images) == 0
}

// Store is the persistence contract the runner needs. All status flips are
// conditional on the current status so a runner restarted against an
// already-terminal session cannot resurrect it.
type Store interface {
	GetSession(ctx context.Context, id string) (*domain.UploadSession, error)
	MarkParsing(ctx context.Context, id string, totalPages int) error
	InsertBatch(ctx context.Context, b Batch) error
	SaveProgress(ctx context.Context, p *domain.ParseProgress) error
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
}
