package sensor

import (
	"math"
	"strconv"
	"strings"
)

// FormatFloat renders a 32-bit float with shortest round-trip digits and at
// least one fractional digit ("5.0"). Magnitudes outside [1e-3, 1e7) use
// scientific notation ("1.0E7", "1.0E-4").
func FormatFloat(f float32) string {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	}

	abs := math.Abs(v)
	if abs == 0 || (abs >= 1e-3 && abs < 1e7) {
		s := strconv.FormatFloat(v, 'f', -1, 32)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		if math.Signbit(v) && !strings.HasPrefix(s, "-") {
			s = "-" + s
		}
		return s
	}

	// 'E' gives e.g. "1.5E+07"
	s := strconv.FormatFloat(v, 'E', -1, 32)
	mantissa, exp, _ := strings.Cut(s, "E")
	if !strings.Contains(mantissa, ".") {
		mantissa += ".0"
	}
	sign := ""
	if strings.HasPrefix(exp, "-") {
		sign = "-"
	}
	exp = strings.TrimLeft(exp, "+-")
	exp = strings.TrimLeft(exp, "0")
	if exp == "" {
		exp = "0"
	}
	return mantissa + "E" + sign + exp
}
