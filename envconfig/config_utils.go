package envconfig

import "fmt"

// String returns a function that reads k as a string.
func String(k string) func() string {
	return func() string {
		return Var(k)
	}
}

// EnvVar describes one configuration variable with its current value.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every configuration variable gpuq reads, keyed by name.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"GPUQ_DEBUG":           {"GPUQ_DEBUG", LogLevel(), "Show additional debug information (e.g. GPUQ_DEBUG=1)"},
		"GPUQ_HOST":            {"GPUQ_HOST", Host(), "IP Address for the gpuq server (default 127.0.0.1:11817)"},
		"GPUQ_ORIGINS":         {"GPUQ_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
		"GPUQ_SMI_TIMEOUT":     {"GPUQ_SMI_TIMEOUT", SmiTimeout(), "How long a management tool invocation may take (default \"10s\")"},
		"CUDA_VISIBLE_DEVICES": {"CUDA_VISIBLE_DEVICES", CudaVisibleDevices(), "Set which NVIDIA devices are visible"},
		"HIP_VISIBLE_DEVICES":  {"HIP_VISIBLE_DEVICES", HipVisibleDevices(), "Set which AMD devices are visible by numeric ID"},
	}
}

// Values returns every configuration value as a string map, for logging.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

var (
	// CudaVisibleDevices reports the raw NVIDIA allow-list. The query
	// engine owns its semantics, including the HIP inheritance quirk.
	CudaVisibleDevices = String("CUDA_VISIBLE_DEVICES")

	// HipVisibleDevices reports the raw AMD allow-list.
	HipVisibleDevices = String("HIP_VISIBLE_DEVICES")
)
