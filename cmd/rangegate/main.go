// rangegate - range-gated obstacle detection
// Fuses a TFmini ranger with a camera and runs object detection only while
// something is inside the configured distance window.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-rangegate/internal/config"
	"github.com/teslashibe/go-rangegate/internal/log"
)

// options are the command-line flags that are not part of config.Config.
type options struct {
	configPath string
	envPath    string
	dev        bool
	autostart  bool
}

func main() {
	opts, cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}

	log.Init(cfg.Log.Level, cfg.Log.Format)

	a, err := newApp(cfg, opts)
	if err != nil {
		log.Error("initialization failed", "err", err)
		os.Exit(1)
	}
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		log.Error("runtime error", "err", err)
		a.Shutdown()
		os.Exit(1)
	}
}

// parseFlags loads the config file and .env, then applies flag overrides.
func parseFlags(args []string) (options, *config.Config, error) {
	fs := flag.NewFlagSet("rangegate", flag.ContinueOnError)

	var opts options
	fs.StringVar(&opts.configPath, "config", "rangegate.yaml", "YAML config file (missing file uses defaults)")
	fs.StringVar(&opts.envPath, "env", ".env", "dotenv file with RANGEGATE_* overrides")
	fs.BoolVar(&opts.dev, "dev", false, "Run with a simulated ranger, synthetic camera and scripted detector")
	fs.BoolVar(&opts.autostart, "autostart", true, "Start the pipeline immediately instead of waiting for the dashboard")

	port := fs.String("port", "", "Serial device of the ranger (overrides serial.port)")
	baud := fs.Int("baud", 0, "Serial baud rate (overrides serial.baud_rate)")
	device := fs.String("camera", "", "Camera index, device path or URL (overrides camera.device)")
	model := fs.String("model", "", "YOLO ONNX model path (overrides detector.model_path)")
	listen := fs.String("listen", "", "Dashboard listen address (overrides web.listen)")
	minCM := fs.Int("min-cm", -1, "Detection window lower bound in cm")
	maxCM := fs.Int("max-cm", -1, "Detection window upper bound in cm")
	debug := fs.Bool("debug", false, "Enable verbose debug logging")

	if err := fs.Parse(args); err != nil {
		return opts, nil, err
	}

	if err := config.LoadDotEnv(opts.envPath); err != nil {
		return opts, nil, err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return opts, nil, err
	}

	if *port != "" {
		cfg.Serial.Port = *port
	}
	if *baud > 0 {
		cfg.Serial.BaudRate = *baud
	}
	if *device != "" {
		cfg.Camera.Device = *device
	}
	if *model != "" {
		cfg.Detector.ModelPath = *model
	}
	if *listen != "" {
		cfg.Web.Listen = *listen
	}
	if *minCM >= 0 {
		cfg.Fusion.MinCM = *minCM
	}
	if *maxCM >= 0 {
		cfg.Fusion.MaxCM = *maxCM
	}
	if *debug {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return opts, nil, err
	}
	return opts, cfg, nil
}
