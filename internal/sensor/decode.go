package sensor

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reAX  = regexp.MustCompile(`AX:([-0-9.]+)`)
	reAY  = regexp.MustCompile(`AY:([-0-9.]+)`)
	reAZ  = regexp.MustCompile(`AZ:([-0-9.]+)`)
	reGX  = regexp.MustCompile(`GX:([-0-9.]+)`)
	reGY  = regexp.MustCompile(`GY:([-0-9.]+)`)
	reGZ  = regexp.MustCompile(`GZ:([-0-9.]+)`)
	reDL  = regexp.MustCompile(`DL:([-0-9.]+)`)
	reDR  = regexp.MustCompile(`DR:([-0-9.]+)`)
	reBPM = regexp.MustCompile(`BPM:(\d+)`)

	accelSeparators = regexp.MustCompile(`Y:|Z:`)
)

// Decode turns one notification line into a Reading. Formats are tried in
// priority order: composite ("AX:" anywhere), accelerometer ("X:" prefix),
// distance ("DL:" or "DR:" anywhere). Any other line yields (nil, false).
// Subfields that are missing or unparseable decode as zero.
func Decode(line string) (Reading, bool) {
	data := strings.TrimSpace(line)

	switch {
	case strings.Contains(data, "AX:"):
		return AllInOne{
			AccelX:        findFloat(reAX, data),
			AccelY:        findFloat(reAY, data),
			AccelZ:        findFloat(reAZ, data),
			GyroX:         findFloat(reGX, data),
			GyroY:         findFloat(reGY, data),
			GyroZ:         findFloat(reGZ, data),
			DistanceLeft:  findFloat(reDL, data),
			DistanceRight: findFloat(reDR, data),
			BPM:           findInt(reBPM, data),
		}, true

	case strings.HasPrefix(data, "X:"):
		parts := accelSeparators.Split(data, -1)
		return Accelerometer{
			X: parseFloat(strings.Replace(partAt(parts, 0), "X:", "", -1)),
			Y: parseFloat(partAt(parts, 1)),
			Z: parseFloat(partAt(parts, 2)),
		}, true

	case strings.Contains(data, "DL:") || strings.Contains(data, "DR:"):
		return Distance{
			Left:  findFloat(reDL, data),
			Right: findFloat(reDR, data),
		}, true
	}

	return nil, false
}

func partAt(parts []string, i int) string {
	if i < len(parts) {
		return parts[i]
	}
	return ""
}

func findFloat(re *regexp.Regexp, data string) float32 {
	m := re.FindStringSubmatch(data)
	if m == nil {
		return 0
	}
	return parseFloat(m[1])
}

func findInt(re *regexp.Regexp, data string) int {
	m := re.FindStringSubmatch(data)
	if m == nil {
		return 0
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return v
}

func parseFloat(s string) float32 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return 0
	}
	return float32(v)
}
