// Package entropy provides the per-installation master secret used for
// deterministic account key derivation.
package entropy

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the secret source cannot be reached or
// holds no usable secret.
var ErrUnavailable = errors.New("entropy source unavailable")

// Source supplies the stable per-installation master secret. The same source
// must return the same seed for the lifetime of an installation: account keys
// are derived from it, and recovery of existing accounts by name depends on
// the seed never changing.
type Source interface {
	Seed(ctx context.Context) ([]byte, error)
}
