package gpuq

import (
	"fmt"
	"log/slog"
	"strings"
)

// Provider is a bit-flag set over the supported GPU runtimes.
// The zero value (Any) places no restriction wherever a mask is accepted.
type Provider uint32

const (
	CUDA Provider = 1 << iota
	HIP
)

const (
	// Any is the empty mask. Query operations normalize it to All.
	Any Provider = 0

	// All is the union of every supported provider.
	All = CUDA | HIP
)

var providerNames = map[Provider]string{
	CUDA: "CUDA",
	HIP:  "HIP",
}

// Providers returns the provider universe in canonical order, CUDA first.
// Iteration code must use this rather than relying on constant ordering.
func Providers() []Provider {
	return []Provider{CUDA, HIP}
}

// Has reports whether any bit of q is set in p.
func (p Provider) Has(q Provider) bool {
	return p&q != 0
}

func (p Provider) String() string {
	switch p {
	case Any:
		return "any"
	case All:
		return "all"
	}
	names := make([]string, 0, len(providerNames))
	for _, q := range Providers() {
		if p.Has(q) {
			names = append(names, providerNames[q])
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("provider(%#x)", uint32(p))
	}
	return strings.Join(names, "|")
}

func (p Provider) LogValue() slog.Value {
	return slog.StringValue(p.String())
}

func (p Provider) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Provider) UnmarshalText(text []byte) error {
	parsed, err := ParseProvider(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParseProvider parses a provider mask from its text form. Single names
// ("cuda", "hip"), the "any"/"all" aliases and unions separated by "," or
// "|" are accepted, case-insensitively.
func ParseProvider(s string) (Provider, error) {
	mask := Any
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' }) {
		switch strings.ToLower(strings.TrimSpace(tok)) {
		case "":
		case "any":
		case "all":
			mask |= All
		case "cuda":
			mask |= CUDA
		case "hip":
			mask |= HIP
		default:
			return Any, fmt.Errorf("%w: %q", ErrUnknownProvider, tok)
		}
	}
	return mask, nil
}
