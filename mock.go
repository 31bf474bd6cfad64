package gpuq

import (
	"fmt"
	"slices"
	"strings"

	"github.com/makodevai/gpuq/format"
)

// Template holds the hardware fields applied to every device a mock backend
// synthesizes. A "%s" in Name is replaced by the provider name.
type Template struct {
	Name              string
	ComputeMajor      int
	ComputeMinor      int
	TotalMemory       uint64
	SMCount           int
	SMThreads         int
	SMSharedMemory    int
	SMRegisters       int
	SMBlocks          int
	BlockThreads      int
	BlockSharedMemory int
	BlockRegisters    int
	WarpSize          int
	L2CacheSize       int
	ConcurrentKernels bool
	AsyncEngines      int
	Cooperative       bool
}

// DefaultTemplate mirrors an unremarkable mid-range device.
func DefaultTemplate() Template {
	return Template{
		Name:              "%s Mock Device",
		ComputeMajor:      1,
		ComputeMinor:      2,
		TotalMemory:       8 * format.GibiByte,
		SMCount:           12,
		SMThreads:         2048,
		SMSharedMemory:    16 * format.KibiByte,
		SMRegisters:       512,
		SMBlocks:          4,
		BlockThreads:      1024,
		BlockSharedMemory: 8 * format.KibiByte,
		BlockRegisters:    256,
		WarpSize:          32,
		L2CacheSize:       8 * format.MebiByte,
		ConcurrentKernels: true,
		Cooperative:       true,
	}
}

// MockConfig describes the synthetic device universe of a mock backend.
// A nil count means the provider's runtime is absent altogether, which is
// distinct from a zero count. A nil visibility list means every constructed
// device is visible.
type MockConfig struct {
	CUDACount *int
	HIPCount  *int

	CUDAVisible []int
	HIPVisible  []int

	// Template overrides DefaultTemplate when non-nil.
	Template *Template
}

// MockBackend synthesizes a deterministic, in-memory device set. Ordinals
// are contiguous: CUDA devices occupy [0, cudaCount), HIP devices follow.
//
// The visibility lists are instance state rather than process environment,
// so concurrent SaveVisible scopes on one instance need external
// coordination, exactly as with the real environment variables.
type MockBackend struct {
	hasCUDA, hasHIP     bool
	cudaCount, hipCount int

	cudaVisible, hipVisible []int

	template Template
}

// NewMock constructs a mock backend from cfg.
func NewMock(cfg MockConfig) (*MockBackend, error) {
	m := &MockBackend{template: DefaultTemplate()}
	if cfg.Template != nil {
		m.template = *cfg.Template
	}

	if cfg.CUDACount != nil {
		if *cfg.CUDACount < 0 {
			return nil, fmt.Errorf("%w: cuda_count=%d", ErrNegativeDeviceCount, *cfg.CUDACount)
		}
		m.hasCUDA, m.cudaCount = true, *cfg.CUDACount
	}
	if cfg.HIPCount != nil {
		if *cfg.HIPCount < 0 {
			return nil, fmt.Errorf("%w: hip_count=%d", ErrNegativeDeviceCount, *cfg.HIPCount)
		}
		m.hasHIP, m.hipCount = true, *cfg.HIPCount
	}

	m.cudaVisible = constructedVisible(cfg.CUDAVisible, m.cudaCount)

	// HIP inherits the CUDA allow-list when its own was not given, the same
	// one-directional quirk the real HIP runtime has with the env vars.
	hipVisible := cfg.HIPVisible
	if hipVisible == nil {
		hipVisible = cfg.CUDAVisible
	}
	m.hipVisible = constructedVisible(hipVisible, m.hipCount)

	return m, nil
}

// constructedVisible clamps an allow-list to the constructed index range,
// or admits the full range when the list is nil.
func constructedVisible(visible []int, count int) []int {
	out := make([]int, 0, count)
	for idx := 0; idx < count; idx++ {
		if visible == nil || slices.Contains(visible, idx) {
			out = append(out, idx)
		}
	}
	return out
}

func (m *MockBackend) HasProvider(p Provider) bool {
	switch p {
	case CUDA:
		return m.hasCUDA
	case HIP:
		return m.hasHIP
	}
	return false
}

func (m *MockBackend) SaveVisible(clear bool) (Visible, func(), error) {
	cuda := slices.Clone(m.cudaVisible)
	hip := slices.Clone(m.hipVisible)

	if clear {
		m.cudaVisible = constructedVisible(nil, m.cudaCount)
		m.hipVisible = constructedVisible(nil, m.hipCount)
	}

	restore := func() {
		if clear {
			m.cudaVisible, m.hipVisible = cuda, hip
		}
	}
	return Visible{CUDA: cuda, HIP: hip}, restore, nil
}

func (m *MockBackend) Count() (int, error) {
	return len(m.cudaVisible) + len(m.hipVisible), nil
}

func (m *MockBackend) Get(ord int) (DeviceInfo, error) {
	if ord < 0 || ord >= m.cudaCount+m.hipCount {
		return DeviceInfo{}, fmt.Errorf("%w: ordinal %d of %d", ErrDeviceOutOfRange, ord, m.cudaCount+m.hipCount)
	}

	provider, index := CUDA, ord
	if ord >= m.cudaCount {
		provider, index = HIP, ord-m.cudaCount
	}

	name := m.template.Name
	if strings.Contains(name, "%s") {
		name = fmt.Sprintf(name, provider)
	}

	return DeviceInfo{
		Ord:               ord,
		Provider:          provider,
		Index:             index,
		Name:              name,
		ComputeMajor:      m.template.ComputeMajor,
		ComputeMinor:      m.template.ComputeMinor,
		TotalMemory:       m.template.TotalMemory,
		SMCount:           m.template.SMCount,
		SMThreads:         m.template.SMThreads,
		SMSharedMemory:    m.template.SMSharedMemory,
		SMRegisters:       m.template.SMRegisters,
		SMBlocks:          m.template.SMBlocks,
		BlockThreads:      m.template.BlockThreads,
		BlockSharedMemory: m.template.BlockSharedMemory,
		BlockRegisters:    m.template.BlockRegisters,
		WarpSize:          m.template.WarpSize,
		L2CacheSize:       m.template.L2CacheSize,
		ConcurrentKernels: m.template.ConcurrentKernels,
		AsyncEngines:      m.template.AsyncEngines,
		Cooperative:       m.template.Cooperative,
	}, nil
}
