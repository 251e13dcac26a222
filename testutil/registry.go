package testutil

import (
	"fmt"
	"time"

	"github.com/skosovsky/dispatchy"
)

// NewTestRegistry builds a Registry tuned for tests: a generous default
// timeout, panic recovery on, and every given tool pre-registered. A
// registration failure panics so a bad fixture fails loudly at setup rather
// than as a confusing dispatch error later.
func NewTestRegistry(tools ...dispatchy.Tool) *dispatchy.Registry {
	reg := dispatchy.NewRegistry(
		dispatchy.WithDefaultTimeout(30*time.Second),
		dispatchy.WithRecoverPanics(true),
	)
	for _, tool := range tools {
		if err := reg.Register(tool); err != nil {
			panic(fmt.Sprintf("testutil: register %q: %v", tool.Name(), err))
		}
	}
	return reg
}
