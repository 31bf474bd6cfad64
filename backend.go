package gpuq

import (
	"context"
	"sync"
)

// Backend is a swappable device data source. Exactly one backend is active
// for a call tree at any instant; see WithBackend and SetDefault.
//
// Count and Get respect whatever visibility state is active at call time.
// Callers that need the system-wide view wrap them in a cleared SaveVisible
// scope, which is what the query engine does.
type Backend interface {
	// HasProvider reports whether the runtime for p is installed,
	// independent of device count.
	HasProvider(p Provider) bool

	// SaveVisible captures the current visibility state and returns it as
	// an allow-list snapshot. With clear set, the state is removed for the
	// duration of the scope so that Count reports all devices. The returned
	// restore function reinstates the prior state and must be called on
	// every exit path.
	SaveVisible(clear bool) (Visible, func(), error)

	// Count returns the number of devices the backend currently reports.
	Count() (int, error)

	// Get fetches one device by ordinal. Ordinals are assigned across all
	// providers in canonical provider order.
	Get(ord int) (DeviceInfo, error)
}

// system is the process-wide genuine backend.
var system = NewSystemBackend()

var (
	defaultMu      sync.RWMutex
	defaultBackend = system
)

// Default returns the process-wide default backend.
func Default() Backend {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultBackend
}

// SetDefault installs b as the process-wide default backend and returns the
// previously installed one, so callers can restore it themselves. Passing
// nil reinstates the system backend.
func SetDefault(b Backend) Backend {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultBackend
	if b == nil {
		b = system
	}
	defaultBackend = b
	return prev
}

type backendKey struct{}

// WithBackend returns a context with b installed as the active backend.
// Scopes nest through ordinary context chaining and unwind in LIFO order;
// a nil b makes the scope fall back to the process default.
func WithBackend(ctx context.Context, b Backend) context.Context {
	return context.WithValue(ctx, backendKey{}, b)
}

// FromContext resolves the active backend for ctx, falling back to the
// process-wide default when none is installed.
func FromContext(ctx context.Context) Backend {
	if b, ok := ctx.Value(backendKey{}).(Backend); ok && b != nil {
		return b
	}
	return Default()
}
