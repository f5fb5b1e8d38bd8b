package research

import (
	"errors"
	"fmt"
)

// ErrCapabilityUnavailable marks a required external capability that
// is structurally missing at session construction. It is the only
// fatal condition: retrying cannot help, so it aborts before the loop.
var ErrCapabilityUnavailable = errors.New("required capability unavailable")

func missingCapability(name string) error {
	return fmt.Errorf("%w: %s", ErrCapabilityUnavailable, name)
}
