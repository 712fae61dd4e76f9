package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

type IdentityProvider interface {
	// Resolve maps a bearer token to the caller it was issued for
	Resolve(ctx context.Context, token string) (domain.Principal, error)
}
