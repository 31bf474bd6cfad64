package gpuq

import "errors"

var (
	// ErrRuntimeUnavailable is returned when a required provider's runtime
	// is not installed on the system, regardless of device count.
	ErrRuntimeUnavailable = errors.New("provider runtime is not available")

	// ErrNoDevices is returned when devices were required but the active
	// backend reports none at all.
	ErrNoDevices = errors.New("no GPU devices detected")

	// ErrMissingProviders is returned when one or more required providers
	// had no device in the enumeration.
	ErrMissingProviders = errors.New("no devices found for required providers")

	// ErrNoSuitableDevices is returned when devices were required and present
	// on the system but none matched the query.
	ErrNoSuitableDevices = errors.New("no suitable GPU devices found")

	// ErrDeviceOutOfRange is returned for an index outside the queried set.
	ErrDeviceOutOfRange = errors.New("device index out of range")

	// ErrInvalidVisibleDevices is returned when a *_VISIBLE_DEVICES value
	// contains a token that is not a non-negative integer.
	ErrInvalidVisibleDevices = errors.New("invalid visible devices list")

	// ErrNegativeDeviceCount is returned by NewMock for a negative count.
	ErrNegativeDeviceCount = errors.New("negative number of mock devices")

	// ErrUnknownProvider is returned when a provider name cannot be parsed.
	ErrUnknownProvider = errors.New("unknown provider")
)
