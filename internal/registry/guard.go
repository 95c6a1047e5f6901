package registry

import "github.com/pztrick/television/internal/domain"

// Guard rejects a call before it reaches the handler.
type Guard struct {
	Code  string
	Allow func(domain.Identity) bool
}

var (
	RequireAuthenticated = Guard{
		Code:  domain.CodeNoAuth,
		Allow: func(id domain.Identity) bool { return id.Authenticated },
	}
	RequireStaff = Guard{
		Code:  domain.CodeNoStaff,
		Allow: func(id domain.Identity) bool { return id.IsStaff },
	}
	RequireSuperuser = Guard{
		Code:  domain.CodeNoSudo,
		Allow: func(id domain.Identity) bool { return id.IsSuperuser },
	}
)

// Check runs guards left to right and stops at the first rejection.
func Check(id domain.Identity, guards ...Guard) error {
	for _, g := range guards {
		if !g.Allow(id) {
			return &domain.AuthorizationError{Code: g.Code}
		}
	}
	return nil
}
