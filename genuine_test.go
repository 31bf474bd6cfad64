package gpuq

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/makodevai/gpuq/internal/smi"
)

// fakeEnv is an in-memory visibilityEnv.
type fakeEnv map[string]string

func (e fakeEnv) Lookup(key string) (string, bool) { v, ok := e[key]; return v, ok }
func (e fakeEnv) Set(key, value string)            { e[key] = value }
func (e fakeEnv) Unset(key string)                 { delete(e, key) }

const rocmTwoCards = `{
	"card0": {"Card Series": "Radeon RX 7900", "VRAM Total Memory (B)": "25753026560"},
	"card1": {"Card Series": "Radeon RX 7900", "VRAM Total Memory (B)": "25753026560"}
}`

// fakeSystem wires a system backend to canned tool output. tools maps
// tool name to stdout; a missing entry means the tool is not installed.
func fakeSystem(env fakeEnv, tools map[string]string) *systemBackend {
	run := func(_ context.Context, name string, _ ...string) ([]byte, error) {
		out, ok := tools[name]
		if !ok {
			return nil, fmt.Errorf("%s: executable not found", name)
		}
		return []byte(out), nil
	}
	lookPath := func(name string) (string, error) {
		if _, ok := tools[name]; !ok {
			return "", fmt.Errorf("%s: executable not found", name)
		}
		return "/usr/bin/" + name, nil
	}
	return &systemBackend{env: env, smi: smi.NewWithRunner(run, lookPath)}
}

func TestSystemHasProvider(t *testing.T) {
	s := fakeSystem(fakeEnv{}, map[string]string{"nvidia-smi": ""})
	if !s.HasProvider(CUDA) {
		t.Error("HasProvider(CUDA) = false with nvidia-smi installed")
	}
	if s.HasProvider(HIP) {
		t.Error("HasProvider(HIP) = true without rocm-smi")
	}
}

func TestSystemSaveVisible(t *testing.T) {
	env := fakeEnv{"CUDA_VISIBLE_DEVICES": "2,0", "HIP_VISIBLE_DEVICES": "1"}
	s := fakeSystem(env, nil)

	vis, restore, err := s.SaveVisible(true)
	if err != nil {
		t.Fatalf("SaveVisible: %v", err)
	}

	if diff := cmp.Diff(Visible{CUDA: []int{0, 2}, HIP: []int{1}}, vis); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if _, set := env.Lookup("CUDA_VISIBLE_DEVICES"); set {
		t.Error("CUDA_VISIBLE_DEVICES still set inside cleared scope")
	}
	if _, set := env.Lookup("HIP_VISIBLE_DEVICES"); set {
		t.Error("HIP_VISIBLE_DEVICES still set inside cleared scope")
	}

	restore()
	if v, _ := env.Lookup("CUDA_VISIBLE_DEVICES"); v != "2,0" {
		t.Errorf("CUDA_VISIBLE_DEVICES = %q after restore, want %q", v, "2,0")
	}
	if v, _ := env.Lookup("HIP_VISIBLE_DEVICES"); v != "1" {
		t.Errorf("HIP_VISIBLE_DEVICES = %q after restore, want %q", v, "1")
	}
}

func TestSystemSaveVisibleNoClear(t *testing.T) {
	env := fakeEnv{"CUDA_VISIBLE_DEVICES": "0"}
	s := fakeSystem(env, nil)

	_, restore, err := s.SaveVisible(false)
	if err != nil {
		t.Fatalf("SaveVisible: %v", err)
	}
	if _, set := env.Lookup("CUDA_VISIBLE_DEVICES"); !set {
		t.Error("CUDA_VISIBLE_DEVICES removed by a non-clearing scope")
	}
	restore()
	if v, _ := env.Lookup("CUDA_VISIBLE_DEVICES"); v != "0" {
		t.Errorf("CUDA_VISIBLE_DEVICES = %q, want %q", v, "0")
	}
}

func TestSystemSaveVisibleInheritance(t *testing.T) {
	// HIP_VISIBLE_DEVICES unset: HIP takes the CUDA list.
	s := fakeSystem(fakeEnv{"CUDA_VISIBLE_DEVICES": "0"}, nil)
	vis, restore, err := s.SaveVisible(false)
	if err != nil {
		t.Fatalf("SaveVisible: %v", err)
	}
	restore()
	if diff := cmp.Diff(Visible{CUDA: []int{0}, HIP: []int{0}}, vis); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	// CUDA_VISIBLE_DEVICES unset: CUDA stays unrestricted.
	s = fakeSystem(fakeEnv{"HIP_VISIBLE_DEVICES": "0"}, nil)
	vis, restore, err = s.SaveVisible(false)
	if err != nil {
		t.Fatalf("SaveVisible: %v", err)
	}
	restore()
	if diff := cmp.Diff(Visible{CUDA: []int(nil), HIP: []int{0}}, vis); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSystemSaveVisibleMalformed(t *testing.T) {
	env := fakeEnv{"CUDA_VISIBLE_DEVICES": "0,x"}
	s := fakeSystem(env, nil)

	_, _, err := s.SaveVisible(true)
	if !errors.Is(err, ErrInvalidVisibleDevices) {
		t.Fatalf("error = %v, want ErrInvalidVisibleDevices", err)
	}
	// A failed resolution must not have touched the environment.
	if v, _ := env.Lookup("CUDA_VISIBLE_DEVICES"); v != "0,x" {
		t.Errorf("CUDA_VISIBLE_DEVICES = %q, want untouched", v)
	}
}

func TestSystemEnumeration(t *testing.T) {
	s := fakeSystem(fakeEnv{}, map[string]string{
		"nvidia-smi": "0, NVIDIA GeForce RTX 4090, 8.9, 24564\n1, NVIDIA GeForce RTX 4090, 8.9, 24564\n",
		"rocm-smi":   rocmTwoCards,
	})

	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 4 {
		t.Fatalf("Count = %d, want 4", n)
	}

	want := []struct {
		provider Provider
		index    int
	}{
		{CUDA, 0}, {CUDA, 1}, {HIP, 0}, {HIP, 1},
	}
	for ord, w := range want {
		d, err := s.Get(ord)
		if err != nil {
			t.Fatalf("Get(%d): %v", ord, err)
		}
		if d.Ord != ord || d.Provider != w.provider || d.Index != w.index {
			t.Errorf("Get(%d) = %s[%d] ord %d, want %s[%d]",
				ord, d.Provider, d.Index, d.Ord, w.provider, w.index)
		}
	}

	d, err := s.Get(0)
	if err != nil {
		t.Fatalf("Get(0): %v", err)
	}
	if d.Name != "NVIDIA GeForce RTX 4090" || d.Compute() != "8.9" || d.TotalMemory != 24564*1024*1024 {
		t.Errorf("unexpected device fields: %+v", d)
	}

	if _, err := s.Get(4); !errors.Is(err, ErrDeviceOutOfRange) {
		t.Errorf("Get(4) error = %v, want ErrDeviceOutOfRange", err)
	}
}

func TestSystemEnumerationRespectsVisibility(t *testing.T) {
	env := fakeEnv{"CUDA_VISIBLE_DEVICES": "1"}
	s := fakeSystem(env, map[string]string{
		"nvidia-smi": "0, RTX A6000, 8.6, 49140\n1, RTX A6000, 8.6, 49140\n",
	})

	// Ambient enumeration honors the allow-list for both providers, HIP via
	// inheritance, though only CUDA is installed here.
	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("Count = %d, want 1", n)
	}

	d, err := s.Get(0)
	if err != nil {
		t.Fatalf("Get(0): %v", err)
	}
	if d.Index != 1 || d.Ord != 0 {
		t.Errorf("Get(0) = index %d ord %d, want index 1 ord 0", d.Index, d.Ord)
	}
}

func TestSystemQueryEndToEnd(t *testing.T) {
	env := fakeEnv{"CUDA_VISIBLE_DEVICES": "1"}
	s := fakeSystem(env, map[string]string{
		"nvidia-smi": "0, Tesla T4, 7.5, 15360\n1, Tesla T4, 7.5, 15360\n",
	})
	ctx := WithBackend(context.Background(), s)

	result, err := Query(ctx)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("Query returned %d devices, want 1", len(result))
	}
	local, ok := result[0].LocalIndex()
	if !ok || local != 0 || result[0].Index != 1 {
		t.Errorf("unexpected result %s", result[0])
	}

	// The cleared scope inside the query is unwound afterwards.
	if v, _ := env.Lookup("CUDA_VISIBLE_DEVICES"); v != "1" {
		t.Errorf("CUDA_VISIBLE_DEVICES = %q after query, want %q", v, "1")
	}

	all, err := Query(ctx, WithVisibleOnly(false))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Query all returned %d devices, want 2", len(all))
	}
	if all[0].IsVisible() || !all[1].IsVisible() {
		t.Errorf("visibility flags wrong: %s / %s", all[0], all[1])
	}
}
