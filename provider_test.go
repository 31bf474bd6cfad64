package gpuq

import (
	"errors"
	"testing"
)

func TestProviderMask(t *testing.T) {
	if All != CUDA|HIP {
		t.Errorf("All = %#x, want union of every provider bit", uint32(All))
	}

	for _, p := range Providers() {
		if p|Any != p {
			t.Errorf("%s | Any = %s, want %s", p, p|Any, p)
		}
		if !All.Has(p) {
			t.Errorf("All does not contain %s", p)
		}
	}

	if CUDA.Has(HIP) || HIP.Has(CUDA) {
		t.Error("provider bits are not disjoint")
	}
}

func TestProvidersOrder(t *testing.T) {
	universe := Providers()
	if len(universe) != 2 || universe[0] != CUDA || universe[1] != HIP {
		t.Errorf("Providers() = %v, want [CUDA HIP]", universe)
	}
}

func TestProviderString(t *testing.T) {
	tests := []struct {
		p    Provider
		want string
	}{
		{CUDA, "CUDA"},
		{HIP, "HIP"},
		{Any, "any"},
		{All, "all"},
	}

	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("String(%#x) = %q, want %q", uint32(tt.p), got, tt.want)
		}
	}
}

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in      string
		want    Provider
		wantErr bool
	}{
		{"cuda", CUDA, false},
		{"CUDA", CUDA, false},
		{"hip", HIP, false},
		{"any", Any, false},
		{"all", All, false},
		{"", Any, false},
		{"cuda,hip", All, false},
		{"cuda|hip", All, false},
		{" cuda , hip ", All, false},
		{"opencl", Any, true},
		{"cuda,opencl", Any, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProvider(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownProvider) {
					t.Fatalf("ParseProvider(%q) error = %v, want ErrUnknownProvider", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseProvider(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseProvider(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestProviderTextRoundTrip(t *testing.T) {
	for _, p := range []Provider{CUDA, HIP, Any, All} {
		text, err := p.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%s): %v", p, err)
		}

		var back Provider
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if back != p {
			t.Errorf("round trip of %s gave %s", p, back)
		}
	}
}
