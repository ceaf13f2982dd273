package companion

import (
	"fmt"
	"log"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/lowaak/cyciot/cyciot-app/internal/coach"
	"github.com/lowaak/cyciot/cyciot-app/internal/sensor"
)

// Page names for tview.Pages
const (
	pageLiveSensors = "live_sensors"
	pageCoach       = "coach"
)

// CursesUIViewImpl implements UIViewImpl using tview (curses-based terminal UI)
type CursesUIViewImpl struct {
	logger      *log.Logger
	app         *tview.Application
	model       *UIModel
	currentMode UIMode

	pages *tview.Pages

	// Shared components (visible in all modes)
	statusBar *tview.TextView
	logView   *tview.TextView
	mainFlex  *tview.Flex // status bar on top, mode content on left, logs on right

	status sensor.ConnectionStatus
	muted  bool

	// Live Sensors mode components
	liveSensorsFlex *tview.Flex
	sensorsPanel    *tview.TextView
	rawLinePanel    *tview.TextView

	// Coach mode components
	coachFlex   *tview.Flex
	coachPanel  *tview.TextView
	windowPanel *tview.TextView
}

func NewCursesUIView(logger *log.Logger, app *tview.Application, model *UIModel) *CursesUIViewImpl {
	return &CursesUIViewImpl{
		logger:      logger,
		app:         app,
		model:       model,
		currentMode: UIModeLiveSensors,
	}
}

// Initialize sets up the tview widgets
func (ui *CursesUIViewImpl) Initialize(controller *UIController) {
	// No SetChangedFunc with app.Draw() here: it can hang during shutdown.
	// BaseUIView redraws after every update.
	ui.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	ui.logView.SetBorder(true).SetTitle(" Logs ")

	ui.statusBar = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	ui.updateStatusBar()

	ui.pages = tview.NewPages()

	ui.initLiveSensorsMode()
	ui.initCoachMode()

	ui.pages.AddPage(pageLiveSensors, ui.liveSensorsFlex, true, true)
	ui.pages.AddPage(pageCoach, ui.coachFlex, true, false)

	body := tview.NewFlex().
		AddItem(ui.pages, 0, 1, true).
		AddItem(ui.logView, 0, 1, false)

	ui.mainFlex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.statusBar, 2, 0, false).
		AddItem(body, 0, 1, true)
}

func (ui *CursesUIViewImpl) initLiveSensorsMode() {
	ui.sensorsPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	ui.sensorsPanel.SetBorder(true).SetTitle(" Sensors ")
	ui.sensorsPanel.SetText(formatSensorDisplay(SensorDisplay{}))

	ui.rawLinePanel = tview.NewTextView().
		SetDynamicColors(false).
		SetWrap(true)
	ui.rawLinePanel.SetBorder(true).SetTitle(" Last line ")

	ui.liveSensorsFlex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.sensorsPanel, 0, 1, true).
		AddItem(ui.rawLinePanel, 4, 0, false)
}

func (ui *CursesUIViewImpl) initCoachMode() {
	ui.coachPanel = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetWordWrap(true)
	ui.coachPanel.SetBorder(true).SetTitle(" Coach ")
	ui.coachPanel.SetText(formatCoachState(coach.Collecting()))

	ui.windowPanel = tview.NewTextView().
		SetDynamicColors(true)
	ui.windowPanel.SetBorder(true).SetTitle(" Window ")
	ui.windowPanel.SetText(formatWindowStatus(coach.WindowStatus{}))

	ui.coachFlex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.coachPanel, 0, 1, true).
		AddItem(ui.windowPanel, 5, 0, false)
}

func (ui *CursesUIViewImpl) SetMode(mode UIMode) {
	if ui.currentMode == mode {
		return
	}
	ui.currentMode = mode

	switch mode {
	case UIModeLiveSensors:
		ui.pages.SwitchToPage(pageLiveSensors)
	case UIModeCoach:
		ui.pages.SwitchToPage(pageCoach)
	}
	ui.updateStatusBar()
}

func (ui *CursesUIViewImpl) GetCurrentMode() UIMode {
	return ui.currentMode
}

func (ui *CursesUIViewImpl) SetupKeyboardHandlers(controller *UIController) {
	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEscape:
			controller.OnEscapeKey()
			return nil
		case tcell.KeyRune:
			if mode, ok := GetUIModeByKey(event.Rune()); ok {
				// the controller updates the model, which notifies us
				controller.OnModeChange(mode)
				return nil
			}
			switch event.Rune() {
			case 'c':
				controller.OnConnect()
				return nil
			case 'd':
				controller.OnDisconnect()
				return nil
			case 'm':
				controller.ToggleMute()
				return nil
			}
		}
		return event
	})
}

func (ui *CursesUIViewImpl) GetLogViewHeight() int {
	_, _, _, height := ui.logView.GetInnerRect()
	return height
}

func (ui *CursesUIViewImpl) ClearLogView() {
	ui.logView.Clear()
}

func (ui *CursesUIViewImpl) WriteLogLine(line string) error {
	_, err := fmt.Fprint(ui.logView, tview.Escape(line))
	return err
}

func (ui *CursesUIViewImpl) UpdateConnectionStatus(status sensor.ConnectionStatus) {
	ui.status = status
	ui.updateStatusBar()
}

func (ui *CursesUIViewImpl) UpdateMuted(muted bool) {
	ui.muted = muted
	ui.updateStatusBar()
}

func (ui *CursesUIViewImpl) updateStatusBar() {
	if ui.statusBar == nil {
		return
	}
	ui.statusBar.SetText(formatStatusBar(ui.status, ui.muted, ui.currentMode))
}

func (ui *CursesUIViewImpl) UpdateSensorDisplay(display SensorDisplay) {
	ui.sensorsPanel.SetText(formatSensorDisplay(display))
	ui.rawLinePanel.SetText(display.RawLine)
}

func (ui *CursesUIViewImpl) UpdateCoachState(state coach.PresentationState) {
	ui.coachPanel.SetText(formatCoachState(state))
}

func (ui *CursesUIViewImpl) UpdateWindowStatus(status coach.WindowStatus) {
	ui.windowPanel.SetText(formatWindowStatus(status))
}

func (ui *CursesUIViewImpl) Draw() error {
	ui.app.Draw()
	return nil
}

// Run starts the UI and blocks until it exits
func (ui *CursesUIViewImpl) Run() error {
	ui.app.SetRoot(ui.mainFlex, true)
	return ui.app.Run()
}

func (ui *CursesUIViewImpl) Stop() {
	ui.app.Stop()
}

func statusColor(status sensor.ConnectionStatus) string {
	switch status {
	case sensor.StatusConnected:
		return "green"
	case sensor.StatusScanning, sensor.StatusConnecting:
		return "yellow"
	default:
		return "red"
	}
}

func formatStatusBar(status sensor.ConnectionStatus, muted bool, mode UIMode) string {
	var modes []string
	for _, info := range AllUIModes {
		label := fmt.Sprintf("[yellow]%c[white] %s", info.KeyBinding, info.DisplayName)
		if info.Mode == mode {
			label = fmt.Sprintf("[::r]%c %s[::-]", info.KeyBinding, info.DisplayName)
		}
		modes = append(modes, label)
	}
	speech := "[green]on[white]"
	if muted {
		speech = "[gray]muted[white]"
	}
	return fmt.Sprintf(" Device: [%s]%s[white]  |  Speech: %s\n %s  |  [yellow]C[white] Connect  [yellow]D[white] Disconnect  [yellow]M[white] Mute  [yellow]Esc[white] Quit",
		statusColor(status), status, speech, strings.Join(modes, "  "))
}

func formatSensorDisplay(d SensorDisplay) string {
	var b strings.Builder
	b.WriteString("\n")
	fmt.Fprintf(&b, "  [cyan]Accel[white]     X: [yellow]%8.2f[white]  Y: [yellow]%8.2f[white]  Z: [yellow]%8.2f[white]\n\n", d.AccelX, d.AccelY, d.AccelZ)
	fmt.Fprintf(&b, "  [cyan]Gyro[white]      X: [yellow]%8.2f[white]  Y: [yellow]%8.2f[white]  Z: [yellow]%8.2f[white]\n\n", d.GyroX, d.GyroY, d.GyroZ)
	fmt.Fprintf(&b, "  [purple]Distance[white]  L: [yellow]%6.1f[white] cm   R: [yellow]%6.1f[white] cm\n\n", d.DistanceLeft, d.DistanceRight)
	fmt.Fprintf(&b, "  [red]Heart[white]     [yellow]%d[white] bpm\n", d.BPM)
	return b.String()
}

func formatCoachState(state coach.PresentationState) string {
	switch state.Kind {
	case coach.PresentationAnalyzing:
		return "\n  [yellow]" + TextAnalyzing + "[white]"
	case coach.PresentationResult:
		return "\n  " + tview.Escape(state.Text)
	case coach.PresentationError:
		return "\n  [red]" + tview.Escape(TextErrorPrefix+state.Text) + "[white]"
	default:
		return "\n  [gray]" + TextCollecting + "[white]"
	}
}

func formatWindowStatus(status coach.WindowStatus) string {
	text := fmt.Sprintf(" Readings: [yellow]%d/%d[white]   Mode: [yellow]%s[white]", status.Len, coach.WindowSize, status.Mode)
	if status.Mode == coach.ModeReplenishing {
		text += fmt.Sprintf("\n Replenishing: [yellow]%d/%d[white]   Carried over: [yellow]%d[white]",
			status.ReplenishCount, coach.ReplenishSize, status.CarryOverLen)
	}
	return text
}
