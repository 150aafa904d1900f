package authorization

import (
	"context"

	authdomain "github.com/smallbiznis/subscriptiond/internal/auth/domain"
)

type Service interface {
	// Authorize returns ErrForbidden when the role may not perform action on object.
	Authorize(ctx context.Context, role authdomain.Role, object string, action string) error
}
