package gpuq

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// DeviceInfo is the descriptor a backend reports for one physical device.
// Descriptors are produced fresh on every enumeration pass and never cached.
type DeviceInfo struct {
	// Ord is the ordinal of the device across all providers. It is unique
	// and stable within a single enumeration pass.
	Ord int `json:"ord"`

	// Provider is the runtime that exposes the device.
	Provider Provider `json:"provider"`

	// Index is the system-wide, provider-scoped index of the device,
	// ignoring any *_VISIBLE_DEVICES restriction.
	Index int `json:"system_index"`

	// Name is the name of the device as labeled by the backend.
	Name string `json:"name"`

	ComputeMajor      int    `json:"major"`
	ComputeMinor      int    `json:"minor"`
	TotalMemory       uint64 `json:"total_memory"`
	SMCount           int    `json:"sms_count"`
	SMThreads         int    `json:"sm_threads"`
	SMSharedMemory    int    `json:"sm_shared_memory"`
	SMRegisters       int    `json:"sm_registers"`
	SMBlocks          int    `json:"sm_blocks"`
	BlockThreads      int    `json:"block_threads"`
	BlockSharedMemory int    `json:"block_shared_memory"`
	BlockRegisters    int    `json:"block_registers"`
	WarpSize          int    `json:"warp_size"`
	L2CacheSize       int    `json:"l2_cache_size"`
	ConcurrentKernels bool   `json:"concurrent_kernels"`
	AsyncEngines      int    `json:"async_engines_count"`
	Cooperative       bool   `json:"cooperative"`
}

// Compute returns the compute capability in "major.minor" form.
func (d DeviceInfo) Compute() string {
	return strconv.Itoa(d.ComputeMajor) + "." + strconv.Itoa(d.ComputeMinor)
}

// Properties is a device descriptor enriched with the visibility context in
// effect when it was queried. It is an immutable snapshot; visibility changes
// made after a query are not reflected.
type Properties struct {
	DeviceInfo

	localIndex int
	visible    bool
	backend    Backend
}

// LocalIndex returns the index of the device as seen by the calling process,
// i.e. its position within the relevant *_VISIBLE_DEVICES allow-list. The
// second return is false if the device is not visible. This index is
// provider-specific.
func (p Properties) LocalIndex() (int, bool) {
	if !p.visible {
		return 0, false
	}
	return p.localIndex, true
}

// IsVisible reports whether the device was visible to the calling process at
// query time.
func (p Properties) IsVisible() bool {
	return p.visible
}

// Backend returns the backend that produced this snapshot.
func (p Properties) Backend() Backend {
	return p.backend
}

// Equal reports whether p and o refer to equivalent devices. Two snapshots
// from the same backend sharing a local index are equal outright; any other
// pair is compared field by field, excluding the ordinal and index fields.
func (p Properties) Equal(o Properties) bool {
	if p.backend != nil && p.backend == o.backend &&
		p.visible == o.visible && (!p.visible || p.localIndex == o.localIndex) {
		return true
	}

	a, b := p.DeviceInfo, o.DeviceInfo
	a.Ord, a.Index = 0, 0
	b.Ord, b.Index = 0, 0
	return a == b
}

func (p Properties) String() string {
	idx := "-"
	if p.visible {
		idx = strconv.Itoa(p.localIndex)
	}
	return fmt.Sprintf("%s[%d -> %s] %q", p.Provider, p.Index, idx, p.Name)
}

func (p Properties) MarshalJSON() ([]byte, error) {
	var local *int
	if p.visible {
		idx := p.localIndex
		local = &idx
	}
	return json.Marshal(struct {
		DeviceInfo
		LocalIndex *int `json:"index"`
		Visible    bool `json:"is_visible"`
	}{p.DeviceInfo, local, p.visible})
}
