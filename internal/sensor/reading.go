package sensor

import "fmt"

// Reading is one decoded sensor sample. It is implemented only by
// AllInOne, Accelerometer and Distance.
type Reading interface {
	// PromptLine renders the reading as a single line of analysis input
	PromptLine() string
	Kind() Kind
	sealed()
}

type Kind int

const (
	KindAllInOne Kind = iota
	KindAccelerometer
	KindDistance
)

func (k Kind) String() string {
	switch k {
	case KindAllInOne:
		return "AllInOne"
	case KindAccelerometer:
		return "Accelerometer"
	case KindDistance:
		return "Distance"
	default:
		return "Unknown"
	}
}

// AllInOne is the composite sample: acceleration, rotation rate, left/right
// distance in cm and heart rate
type AllInOne struct {
	AccelX, AccelY, AccelZ float32
	GyroX, GyroY, GyroZ    float32
	DistanceLeft           float32
	DistanceRight          float32
	BPM                    int
}

type Accelerometer struct {
	X, Y, Z float32
}

type Distance struct {
	Left, Right float32
}

func (AllInOne) sealed()      {}
func (Accelerometer) sealed() {}
func (Distance) sealed()      {}

func (AllInOne) Kind() Kind      { return KindAllInOne }
func (Accelerometer) Kind() Kind { return KindAccelerometer }
func (Distance) Kind() Kind      { return KindDistance }

func (r AllInOne) PromptLine() string {
	return fmt.Sprintf("AllInOne: AX=%s, AY=%s, AZ=%s, GX=%s, GY=%s, GZ=%s, DL=%s, DR=%s, BPM=%d",
		FormatFloat(r.AccelX), FormatFloat(r.AccelY), FormatFloat(r.AccelZ),
		FormatFloat(r.GyroX), FormatFloat(r.GyroY), FormatFloat(r.GyroZ),
		FormatFloat(r.DistanceLeft), FormatFloat(r.DistanceRight), r.BPM)
}

func (r Accelerometer) PromptLine() string {
	return fmt.Sprintf("Accel: X=%s, Y=%s, Z=%s", FormatFloat(r.X), FormatFloat(r.Y), FormatFloat(r.Z))
}

func (r Distance) PromptLine() string {
	return fmt.Sprintf("Distance: L=%s, R=%s", FormatFloat(r.Left), FormatFloat(r.Right))
}
