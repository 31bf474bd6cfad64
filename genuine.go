package gpuq

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/makodevai/gpuq/envconfig"
	"github.com/makodevai/gpuq/internal/smi"
)

const (
	cudaVisibleEnv = "CUDA_VISIBLE_DEVICES"
	hipVisibleEnv  = "HIP_VISIBLE_DEVICES"
)

// visibilityEnv is the narrow port through which the system backend touches
// process environment. Keeping it this small makes the clear/restore window
// explicit and swappable for a test double.
//
// The window is process-global: another thread or process reading the same
// variables during a cleared scope sees the unrestricted state. This race is
// accepted rather than locked around.
type visibilityEnv interface {
	Lookup(key string) (string, bool)
	Set(key, value string)
	Unset(key string)
}

type osEnv struct{}

func (osEnv) Lookup(key string) (string, bool) { return os.LookupEnv(key) }

func (osEnv) Set(key, value string) {
	if err := os.Setenv(key, value); err != nil {
		slog.Warn("failed to restore environment variable", "key", key, "error", err)
	}
}

func (osEnv) Unset(key string) {
	if err := os.Unsetenv(key); err != nil {
		slog.Warn("failed to clear environment variable", "key", key, "error", err)
	}
}

// systemBackend reports the devices physically present on this host. It
// delegates enumeration to the vendor management tools and reads visibility
// from the real environment variables on every call; nothing is cached.
type systemBackend struct {
	env visibilityEnv
	smi *smi.Querier
}

// NewSystemBackend returns a backend for the devices installed on this host.
// The process-wide default backend is an instance of it.
func NewSystemBackend() Backend {
	return &systemBackend{
		env: osEnv{},
		smi: smi.New(envconfig.SmiTimeout()),
	}
}

func (s *systemBackend) HasProvider(p Provider) bool {
	switch p {
	case CUDA:
		return s.smi.Available(smi.NVIDIA)
	case HIP:
		return s.smi.Available(smi.AMD)
	}
	return false
}

func (s *systemBackend) SaveVisible(clear bool) (Visible, func(), error) {
	cudaRaw, cudaSet := s.env.Lookup(cudaVisibleEnv)
	hipRaw, hipSet := s.env.Lookup(hipVisibleEnv)

	var cudaList, hipList []int
	var err error
	if cudaSet {
		if cudaList, err = parseVisibleList(CUDA, cudaRaw); err != nil {
			return nil, nil, err
		}
	}
	if hipSet {
		if hipList, err = parseVisibleList(HIP, hipRaw); err != nil {
			return nil, nil, err
		}
	} else {
		// HIP inherits CUDA_VISIBLE_DEVICES when HIP_VISIBLE_DEVICES is
		// unset. The reverse direction does not apply.
		hipList = cudaList
	}

	if clear {
		if cudaSet {
			s.env.Unset(cudaVisibleEnv)
		}
		if hipSet {
			s.env.Unset(hipVisibleEnv)
		}
	}

	restore := func() {
		if !clear {
			return
		}
		if cudaSet {
			s.env.Set(cudaVisibleEnv, cudaRaw)
		}
		if hipSet {
			s.env.Set(hipVisibleEnv, hipRaw)
		}
	}
	return Visible{CUDA: cudaList, HIP: hipList}, restore, nil
}

// devices enumerates under the visibility state active at call time. Each
// provider's devices keep their system index; ordinals are assigned
// contiguously across providers in canonical order.
func (s *systemBackend) devices() ([]DeviceInfo, error) {
	vis, _, err := s.SaveVisible(false)
	if err != nil {
		return nil, err
	}

	vendors := map[Provider]smi.Vendor{CUDA: smi.NVIDIA, HIP: smi.AMD}

	var out []DeviceInfo
	ord := 0
	for _, p := range Providers() {
		if !s.HasProvider(p) {
			continue
		}
		enumerated, err := s.smi.Devices(vendors[p])
		if err != nil {
			return nil, fmt.Errorf("%s enumeration failed: %w", p, err)
		}
		for _, d := range enumerated {
			if _, ok := globalToLocal(d.Index, vis[p]); !ok {
				continue
			}
			out = append(out, DeviceInfo{
				Ord:          ord,
				Provider:     p,
				Index:        d.Index,
				Name:         d.Name,
				ComputeMajor: d.ComputeMajor,
				ComputeMinor: d.ComputeMinor,
				TotalMemory:  d.TotalMemory,
			})
			ord++
		}
	}
	return out, nil
}

func (s *systemBackend) Count() (int, error) {
	devices, err := s.devices()
	if err != nil {
		return 0, err
	}
	return len(devices), nil
}

func (s *systemBackend) Get(ord int) (DeviceInfo, error) {
	devices, err := s.devices()
	if err != nil {
		return DeviceInfo{}, err
	}
	if ord < 0 || ord >= len(devices) {
		return DeviceInfo{}, fmt.Errorf("%w: ordinal %d of %d", ErrDeviceOutOfRange, ord, len(devices))
	}
	return devices[ord], nil
}
