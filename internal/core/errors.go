package core

import "errors"

// Error taxonomy. Handlers map these to HTTP statuses at the request boundary;
// everything else surfaces as a generic internal error with the detail logged.
var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrUpstreamProvider = errors.New("upstream provider failure")
	ErrOracle           = errors.New("oracle failure")
)
