package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/rivo/tview"
	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"
	"tinygo.org/x/bluetooth"

	"github.com/lowaak/cyciot/cyciot-app/internal/bt"
	"github.com/lowaak/cyciot/cyciot-app/internal/coach"
	"github.com/lowaak/cyciot/cyciot-app/internal/companion"
	"github.com/lowaak/cyciot/cyciot-app/internal/config"
	"github.com/lowaak/cyciot/cyciot-app/internal/gemini"
	"github.com/lowaak/cyciot/cyciot-app/internal/go_func_utils"
	"github.com/lowaak/cyciot/cyciot-app/internal/speech"
)

// uiLogWriter feeds log output to the log panel. Lines are dropped when the
// panel falls behind so logging never blocks.
type uiLogWriter struct {
	ch chan<- string
}

func (w uiLogWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		select {
		case w.ch <- line:
		default:
		}
	}
	return len(p), nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "cyciot:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	logFile := &lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	}
	defer logFile.Close()

	uiLogChan := make(chan string, 256)
	logger := log.New(io.MultiWriter(logFile, uiLogWriter{ch: uiLogChan}), "", log.Ltime)

	client := gemini.NewClient(cfg.Gemini.APIKey, cfg.Gemini.Model)
	client.BaseURL = cfg.Gemini.BaseURL
	if cfg.Gemini.APIKey == "" {
		logger.Println("Warning: no Gemini API key configured, analyses will fail")
	}

	session := coach.NewSession(client, logger, coach.SessionConfig{
		AnalysisTimeout: cfg.Analysis.Timeout,
		Language:        cfg.Analysis.Language,
		RebuildPolicy:   cfg.RebuildPolicy(),
	})

	var btManager bt.BTManagerInterface
	if cfg.Mock.Enabled {
		logger.Printf("Using mock sensor, control page on http://localhost:%d/", cfg.Mock.Port)
		btManager = companion.NewMockBTManager(logger, companion.MockConfig{
			Name:     cfg.Device.Name,
			Port:     cfg.Mock.Port,
			Interval: cfg.Mock.Interval,
		})
	} else {
		btManager = bt.NewBTManager(bluetooth.DefaultAdapter, logger, cfg.Device.ScanTimeout)
	}

	model := companion.NewUIModel(session, logger, uiLogChan)
	deviceHandler := companion.NewDeviceHandler(model, btManager, logger, companion.DeviceConfig{
		Name:               cfg.Device.Name,
		ServiceUUID:        cfg.Device.ServiceUUID,
		CharacteristicUUID: cfg.Device.CharacteristicUUID,
		ConnectTimeout:     cfg.Device.ConnectTimeout,
		ScanTimeout:        cfg.Device.ScanTimeout,
	})
	bluetoothReady := true
	if err := deviceHandler.Enable(); err != nil {
		logger.Printf("Bluetooth unavailable: %v", err)
		bluetoothReady = false
	}

	ctx, cancel := context.WithCancel(context.Background())
	lines := make(chan string, 256)
	unregisterLines := deviceHandler.ListenToLines(lines)
	sessionDone := make(chan struct{})
	go_func_utils.SafeGo(logger, func() {
		defer close(sessionDone)
		if err := session.Run(ctx, lines); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("Coach session stopped: %v", err)
		}
	})

	var speaker speech.Speaker = speech.NopSpeaker{}
	if cfg.Speech.Enabled {
		speaker = speech.NewCommandSpeaker(cfg.Speech.Command, cfg.SpeechArgs(), logger)
	}

	controller := companion.NewUIController(model, deviceHandler, speaker, logger)
	app := tview.NewApplication()
	view := companion.NewCursesUIView(logger, app, model)
	baseView := companion.NewBaseUIView(companion.NewBaseUIViewArg{
		UIViewImpl:   view,
		UIModel:      model,
		UIController: controller,
		Logger:       logger,
	})

	if bluetoothReady {
		controller.OnConnect()
	}

	runErr := baseView.Run()

	baseView.Shutdown()
	controller.Shutdown()
	cancel()
	<-sessionDone
	unregisterLines()
	if err := deviceHandler.Disconnect(); err != nil {
		logger.Printf("Disconnect failed: %v", err)
	}
	deviceHandler.Shutdown()
	btManager.Shutdown()
	model.Shutdown()
	return runErr
}
