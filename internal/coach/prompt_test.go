package coach

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/cyciot/cyciot-app/internal/sensor"
)

func TestBuildPrompt_Layout(t *testing.T) {
	prompt := BuildPrompt([]sensor.Reading{
		sensor.AllInOne{AccelX: 1, AccelY: 2, BPM: 80},
		sensor.Accelerometer{X: 0.5, Y: -0.5, Z: 9.8},
		sensor.Distance{Left: 5, Right: 5},
	}, "")

	lines := strings.Split(prompt, "\n")
	require.Len(t, lines, 12)

	assert.Equal(t, "Analyze the following sensor data from a bicycle IoT device and provide a short feedback of maximum 1 sentence.", lines[0])
	assert.Equal(t, "For heart rate (BPM): 60-100 is normal at rest, 100-170 is normal during exercise.", lines[2])
	assert.Equal(t, "YOUR ANSWERS MUST BE IN TURKISH", lines[6])
	assert.Equal(t, "", lines[7])
	assert.Equal(t, "Data:", lines[8])
	assert.Equal(t, "AllInOne: AX=1.0, AY=2.0, AZ=0.0, GX=0.0, GY=0.0, GZ=0.0, DL=0.0, DR=0.0, BPM=80", lines[9])
	assert.Equal(t, "Accel: X=0.5, Y=-0.5, Z=9.8", lines[10])
	assert.Equal(t, "Distance: L=5.0, R=5.0", lines[11])
}

func TestBuildPrompt_KeepsTrailingSpaces(t *testing.T) {
	prompt := BuildPrompt(nil, "")
	assert.Contains(t, prompt, "potential improvements. \n")
	assert.Contains(t, prompt, "for the cyclist. \n")
	assert.True(t, strings.HasSuffix(prompt, "Data:\n"))
}

func TestBuildPrompt_Language(t *testing.T) {
	assert.Contains(t, BuildPrompt(nil, "German"), "YOUR ANSWERS MUST BE IN GERMAN\n")
}

func TestDataBlock_FifteenDistanceLines(t *testing.T) {
	readings := make([]sensor.Reading, 0, WindowSize)
	for i := 0; i < WindowSize; i++ {
		readings = append(readings, sensor.Distance{Left: 5, Right: 5})
	}

	block := DataBlock(readings)
	lines := strings.Split(block, "\n")
	require.Len(t, lines, WindowSize)
	for _, line := range lines {
		assert.Equal(t, "Distance: L=5.0, R=5.0", line)
	}
}
