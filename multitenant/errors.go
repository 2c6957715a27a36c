package multitenant

import "errors"

// ErrResolutionMiss is returned when no declared base URL is a prefix of the request.
// Callers normally treat it as the signal to leave host defaults untouched.
var ErrResolutionMiss = errors.New("no declared base url matches the request")
