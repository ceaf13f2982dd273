package coach

import (
	"strings"

	"github.com/lowaak/cyciot/cyciot-app/internal/sensor"
)

// DefaultLanguage is the language the coach is told to answer in
const DefaultLanguage = "TURKISH"

// The instruction lines are tuned against the model; keep them byte-stable,
// trailing spaces included.
var promptInstructions = []string{
	"Analyze the following sensor data from a bicycle IoT device and provide a short feedback of maximum 1 sentence.",
	"Focus on the most important insights about driving patterns, stability, heart rate, and potential improvements. ",
	"For heart rate (BPM): 60-100 is normal at rest, 100-170 is normal during exercise.",
	`If there is no problem, there are motivational phrases such as "you're doing well" or natural phrases such as "slow down" when you speed up too much, "let's go :)" when you slow down, "is everything ok" when you suddenly tip over, etc. `,
	"There are support and motivational answers for the cyclist. ",
	"The data includes acceleration, gyroscopic sensor, distance sensors on the left and right side, and heart rate (BPM). Use them in your answers.",
}

// BuildPrompt renders the instructions, the output-language directive and a
// "Data:" block with one line per reading, oldest first.
func BuildPrompt(readings []sensor.Reading, language string) string {
	if language == "" {
		language = DefaultLanguage
	}

	var b strings.Builder
	for _, line := range promptInstructions {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("YOUR ANSWERS MUST BE IN ")
	b.WriteString(strings.ToUpper(language))
	b.WriteString("\n\nData:\n")
	b.WriteString(DataBlock(readings))
	return b.String()
}

// DataBlock joins the prompt lines of readings with newlines
func DataBlock(readings []sensor.Reading) string {
	lines := make([]string, 0, len(readings))
	for _, r := range readings {
		if r == nil {
			continue
		}
		lines = append(lines, r.PromptLine())
	}
	return strings.Join(lines, "\n")
}
