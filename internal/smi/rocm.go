package smi

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// rocm-smi prints one JSON object per card, keyed "cardN". Field names have
// drifted across ROCm releases, so lookups are tolerant.
func (q *Querier) amdDevices(ctx context.Context) ([]Device, error) {
	out, err := q.run(ctx, AMD.tool(), "--showproductname", "--showmeminfo", "vram", "--json")
	if err != nil {
		return nil, fmt.Errorf("rocm-smi: %w", err)
	}

	var cards map[string]map[string]string
	if err := json.Unmarshal(out, &cards); err != nil {
		return nil, fmt.Errorf("rocm-smi: %w", err)
	}

	var devices []Device
	for card, fields := range cards {
		idx, ok := cardIndex(card)
		if !ok {
			continue
		}

		d := Device{Index: idx, Name: firstField(fields,
			"Card Series", "Card series", "Card model", "Card Model", "Device Name")}
		if raw := firstField(fields, "VRAM Total Memory (B)", "vram Total Memory (B)"); raw != "" {
			if b, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64); err == nil {
				d.TotalMemory = b
			}
		}
		devices = append(devices, d)
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].Index < devices[j].Index })
	return devices, nil
}

func cardIndex(key string) (int, bool) {
	num, ok := strings.CutPrefix(key, "card")
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(num)
	if err != nil {
		return 0, false
	}
	return idx, true
}

func firstField(fields map[string]string, names ...string) string {
	for _, name := range names {
		if v, ok := fields[name]; ok {
			return v
		}
	}
	return ""
}
