package ports

import (
	"context"

	"github.com/lmoreau/paperquery/internal/core/domain"
)

// QueryService is the inbound contract for question answering over the
// indexed corpus.
type QueryService interface {
	Answer(ctx context.Context, req domain.QueryRequest) (*domain.QueryResponse, error)
}
