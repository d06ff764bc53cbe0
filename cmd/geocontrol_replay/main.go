/*
Run the geometric controller against a recorded flight or a scripted
situation. Every cycle can be logged to CSV, published to a telemetry room
and plotted, and the control-loop metrics can be scraped while it runs.
*/

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ChengChengYang0416/multirotor-geometry-control/config"
	"github.com/ChengChengYang0416/multirotor-geometry-control/geocontrol"
	"github.com/ChengChengYang0416/multirotor-geometry-control/replay"
	"github.com/ChengChengYang0416/multirotor-geometry-control/telemetry"
)

func newLogger(debug bool) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if debug {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return log
}

func main() {
	os.Exit(realMain(os.Args))
}

// realMain returns the process exit code so deferred log flushing runs first.
func realMain(args []string) int {
	var (
		scenario, logFile, plotDir, writeConfig string
		duration                                float64
	)
	fs := flag.NewFlagSet(args[0], flag.ExitOnError)
	config.RegisterFlags(fs)
	fs.StringVarP(&scenario, "scenario", "s", "hover", "Scenario to use: filename or \"hover\" or \"circle\"")
	fs.Float64Var(&duration, "duration", 10, "Length of scripted scenarios, s")
	fs.StringVar(&logFile, "log", "geocontrol.csv", "CSV log of every cycle, empty to disable")
	fs.StringVar(&plotDir, "plots", "", "Directory to save error and rotor plots to, empty to disable")
	fs.StringVar(&writeConfig, "write-config", "", "Write the default configuration to this file and exit")
	_ = fs.Parse(args[1:])
	debug, _ := fs.GetBool("debug")

	log := newLogger(debug)
	defer log.Sync()

	if writeConfig != "" {
		if err := config.WriteDefault(writeConfig); err != nil {
			log.Error("Writing default configuration", zap.Error(err))
			return 1
		}
		return 0
	}

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Error("Bad configuration", zap.Error(err))
		return 1
	}
	if err := run(cfg, scenario, duration, logFile, plotDir, log); err != nil {
		log.Error("Replay failed", zap.Error(err))
		return 1
	}
	return 0
}

func run(cfg *config.Config, scenario string, duration float64, logFile, plotDir string, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var sit replay.Situation
	switch scenario {
	case "hover":
		sit = &replay.Hover{Position: mgl64.Vec3{0, 0, 1}, Start: 1, Duration: duration}
	case "circle":
		sit = &replay.Circle{Center: mgl64.Vec3{0, 0, 2}, Radius: 2, Speed: 1, Lag: 0.1, Duration: duration}
	default:
		log.Info("Loading situation", zap.String("file", scenario))
		s, err := replay.NewSituationFromFile(scenario)
		if err != nil {
			return err
		}
		sit = s
	}

	p, err := cfg.VehicleParameters()
	if err != nil {
		return err
	}
	k, err := cfg.ControlGains()
	if err != nil {
		return err
	}
	metrics := telemetry.NewMetrics()
	ctrl := geocontrol.New(
		geocontrol.WithLogger(log.Named("geocontrol")),
		geocontrol.WithSettings(cfg.Settings()),
		geocontrol.WithObserver(metrics),
	)
	if err := ctrl.Configure(p, k); err != nil {
		return err
	}

	if cfg.Telemetry.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.Telemetry.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Metrics server stopped", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	rec := new(replay.Recorder)
	sinks := []replay.Sink{rec}
	if logFile != "" {
		l, err := replay.NewCSVLogger(logFile, ctrl.Configuration().Allocator.Rotors())
		if err != nil {
			return err
		}
		defer l.Close()
		sinks = append(sinks, l)
	}
	if cfg.Telemetry.URL != "" {
		pub, err := telemetry.Dial(ctx, cfg.Telemetry.URL)
		if err != nil {
			return err
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	if _, err := replay.Run(ctx, sit, ctrl, cfg.Controller.Timestep, log.Named("replay"), sinks...); err != nil {
		return err
	}

	if plotDir != "" {
		if err := os.MkdirAll(plotDir, 0755); err != nil {
			return err
		}
		if err := replay.PlotErrors(rec.Cycles, filepath.Join(plotDir, "errors.png")); err != nil {
			return err
		}
		if err := replay.PlotRotors(rec.Cycles, filepath.Join(plotDir, "rotors.png")); err != nil {
			return err
		}
		log.Info("Saved plots", zap.String("dir", plotDir))
	}
	return nil
}
