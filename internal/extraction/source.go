package extraction

import (
	"context"

	"github.com/yungbote/valence-backend/internal/domain"
	"github.com/yungbote/valence-backend/internal/schema"
)

// Source is the external document-understanding service that turns provision
// text into a raw field-value map. Its output is untrusted input and goes
// through Validate before anything is persisted.
type Source interface {
	Extract(ctx context.Context, anchorKey string, specs []schema.ExtractionSpec, documentText string) (domain.RawRecord, error)
}
