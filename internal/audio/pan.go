package audio

import (
	"fmt"
	"math"
	"sort"
)

// PanLaw maps a pan position in [-1, 1] to left and right channel factors.
type PanLaw func(pan float32) (left, right float32)

// PanBalance keeps the centre at unity and fades the opposite side linearly.
func PanBalance(pan float32) (float32, float32) {
	left, right := float32(1), float32(1)
	if pan > 0 {
		left = 1 - pan
	} else if pan < 0 {
		right = 1 + pan
	}
	return left, right
}

// PanLinear splits unity between the sides, so the centre is -6 dB.
func PanLinear(pan float32) (float32, float32) {
	right := pan*0.5 + 0.5
	return 1 - right, right
}

// PanConstantPower keeps left² + right² = 1 across the range.
func PanConstantPower(pan float32) (float32, float32) {
	angle := float64(pan+1) * math.Pi / 4
	return float32(math.Cos(angle)), float32(math.Sin(angle))
}

var panLaws = map[string]PanLaw{
	"balance":        PanBalance,
	"linear":         PanLinear,
	"constant_power": PanConstantPower,
}

// PanLawNames lists the accepted names for ParsePanLaw.
func PanLawNames() []string {
	names := make([]string, 0, len(panLaws))
	for name := range panLaws {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParsePanLaw resolves a configured pan law. Empty selects balance.
func ParsePanLaw(name string) (PanLaw, error) {
	if name == "" {
		return PanBalance, nil
	}
	law, ok := panLaws[name]
	if !ok {
		return nil, fmt.Errorf("unknown pan law %q (valid: %v)", name, PanLawNames())
	}
	return law, nil
}

func clampPan(pan float32) float32 {
	switch {
	case pan < -1:
		return -1
	case pan > 1:
		return 1
	}
	return pan
}
