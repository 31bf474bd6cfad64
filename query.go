package gpuq

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/makodevai/gpuq/logutil"
)

type queryOptions struct {
	provider    Provider
	required    Provider
	requireAny  bool
	visibleOnly bool
	backend     Backend
}

// QueryOption adjusts a Query, Count or Get call.
type QueryOption func(*queryOptions)

// WithProvider restricts the result to devices of the given providers.
// Any is treated as no restriction.
func WithProvider(p Provider) QueryOption {
	return func(o *queryOptions) { o.provider = p }
}

// WithRequired makes the call fail unless every provider in mask has its
// runtime installed and contributes at least one device to the enumeration.
func WithRequired(mask Provider) QueryOption {
	return func(o *queryOptions) { o.required = mask }
}

// RequireDevices makes the call fail unless it returns at least one device.
// No particular provider is required; note that with a provider filter the
// check still runs against the filtered result.
func RequireDevices() QueryOption {
	return func(o *queryOptions) { o.requireAny = true }
}

// WithVisibleOnly controls whether devices hidden by *_VISIBLE_DEVICES are
// skipped. Query defaults to true, Count and Get default to false.
func WithVisibleOnly(visible bool) QueryOption {
	return func(o *queryOptions) { o.visibleOnly = visible }
}

// UsingBackend pins the call to b instead of resolving the active backend
// from the context.
func UsingBackend(b Backend) QueryOption {
	return func(o *queryOptions) { o.backend = b }
}

func resolve(ctx context.Context, defaults queryOptions, opts []QueryOption) (Backend, queryOptions) {
	cfg := defaults
	for _, opt := range opts {
		opt(&cfg)
	}
	b := cfg.backend
	if b == nil {
		b = FromContext(ctx)
	}
	return b, cfg
}

// Query enumerates the devices of the active backend, in ascending ordinal
// order. By default only devices visible to the calling process are
// returned; see WithVisibleOnly, WithProvider, WithRequired.
//
// Visibility is re-resolved on every call; the returned snapshots do not
// reflect later changes.
func Query(ctx context.Context, opts ...QueryOption) ([]Properties, error) {
	b, cfg := resolve(ctx, queryOptions{visibleOnly: true}, opts)
	return runQuery(b, cfg)
}

func runQuery(b Backend, cfg queryOptions) ([]Properties, error) {
	provider := cfg.provider
	if provider == Any {
		provider = All
	}
	required := cfg.required

	slog.Debug("querying devices", "provider", provider, "required", required,
		"require_any", cfg.requireAny, "visible_only", cfg.visibleOnly)

	// Required runtimes are checked before any device is enumerated.
	for _, p := range Providers() {
		if required.Has(p) && !b.HasProvider(p) {
			return nil, fmt.Errorf("%w: %s", ErrRuntimeUnavailable, p)
		}
	}

	vis, restore, err := b.SaveVisible(true)
	if err != nil {
		return nil, err
	}
	defer restore()

	total, err := b.Count()
	if err != nil {
		return nil, err
	}
	if total == 0 {
		if required != Any || cfg.requireAny {
			return nil, ErrNoDevices
		}
		return []Properties{}, nil
	}

	out := []Properties{}
	for ord := 0; ord < total; ord++ {
		d, err := b.Get(ord)
		if err != nil {
			return nil, err
		}
		local, visible := globalToLocal(d.Index, vis[d.Provider])
		if cfg.visibleOnly && !visible {
			// Hidden devices do not count toward requirement satisfaction.
			logutil.Trace("skipping hidden device", "ord", d.Ord, "provider", d.Provider, "index", d.Index)
			continue
		}
		required &^= d.Provider
		if provider.Has(d.Provider) {
			out = append(out, Properties{DeviceInfo: d, localIndex: local, visible: visible, backend: b})
		}
	}

	if required != Any {
		missing := make([]string, 0, 2)
		for _, p := range Providers() {
			if required.Has(p) {
				missing = append(missing, p.String())
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrMissingProviders, strings.Join(missing, ", "))
	}
	if cfg.requireAny && len(out) == 0 {
		return nil, ErrNoSuitableDevices
	}
	return out, nil
}

// Count returns the number of devices matching the options. Unlike Query it
// includes hidden devices by default.
func Count(ctx context.Context, opts ...QueryOption) (int, error) {
	b, cfg := resolve(ctx, queryOptions{}, opts)

	provider := cfg.provider
	if provider == Any {
		provider = All
	}
	if provider == All && cfg.required == Any && !cfg.requireAny {
		if cfg.visibleOnly {
			return b.Count()
		}
		_, restore, err := b.SaveVisible(true)
		if err != nil {
			return 0, err
		}
		defer restore()
		return b.Count()
	}

	result, err := runQuery(b, cfg)
	if err != nil {
		return 0, err
	}
	return len(result), nil
}

// Get returns the device at idx within the set Query would return for the
// same options. Like Count it includes hidden devices by default.
func Get(ctx context.Context, idx int, opts ...QueryOption) (Properties, error) {
	b, cfg := resolve(ctx, queryOptions{}, opts)

	provider := cfg.provider
	if provider == Any {
		provider = All
	}
	if provider == All && !cfg.visibleOnly && cfg.required == Any && !cfg.requireAny {
		vis, restore, err := b.SaveVisible(true)
		if err != nil {
			return Properties{}, err
		}
		defer restore()

		d, err := b.Get(idx)
		if err != nil {
			return Properties{}, err
		}
		local, visible := globalToLocal(d.Index, vis[d.Provider])
		return Properties{DeviceInfo: d, localIndex: local, visible: visible, backend: b}, nil
	}

	result, err := runQuery(b, cfg)
	if err != nil {
		return Properties{}, err
	}
	if idx < 0 || idx >= len(result) {
		return Properties{}, fmt.Errorf("%w: index %d with %d matching devices", ErrDeviceOutOfRange, idx, len(result))
	}
	return result[idx], nil
}

// HasProvider reports whether the runtime for p is installed, as seen by the
// active backend.
func HasProvider(ctx context.Context, p Provider) bool {
	return FromContext(ctx).HasProvider(p)
}

// HasCUDA reports whether the CUDA runtime is installed.
func HasCUDA(ctx context.Context) bool { return HasProvider(ctx, CUDA) }

// HasHIP reports whether the HIP runtime is installed.
func HasHIP(ctx context.Context) bool { return HasProvider(ctx, HIP) }
