package scope

import "errors"

// Error taxonomy shared by the scoping rule and the handlers. Handlers map
// these onto HTTP statuses; cross-tenant rows always surface as ErrNotFound
// so their existence never leaks.
var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validation failed")
	ErrIntegrity  = errors.New("integrity constraint violated")
)
