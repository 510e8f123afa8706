package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/IAmMonkeyBoy/context-memory-store/pkg/memory"
)

// classify maps a provider API failure onto the engine's error taxonomy.
// Rate limits and server-side failures are transient; the rest of the 4xx
// range means the request itself is wrong and retrying will not help.
func classify(provider string, status int, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return memory.NewUnavailable(err, "%s request failed", provider)
	case status == http.StatusRequestTimeout:
		return memory.NewTimeout(err, "%s request timed out", provider)
	case status >= 400:
		return memory.NewValidation("%s rejected request: %v", provider, err)
	default:
		// No HTTP status: connection-level failure.
		return memory.NewUnavailable(err, "%s unreachable", provider)
	}
}
