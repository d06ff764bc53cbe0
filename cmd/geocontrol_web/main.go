// Command geocontrol_web hosts the telemetry room that replays and flight
// code publish controller diagnostics to, and exposes its own metrics.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ChengChengYang0416/multirotor-geometry-control/config"
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
	fs := flag.NewFlagSet(args[0], flag.ExitOnError)
	config.RegisterFlags(fs)
	_ = fs.Parse(args[1:])
	debug, _ := fs.GetBool("debug")

	log := newLogger(debug)
	defer log.Sync()

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Error("Bad configuration", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	room := telemetry.NewRoom(log.Named("room"))
	go room.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/geocontrol", room)
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.Telemetry.Addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			log.Warn("Shutdown", zap.Error(err))
		}
	}()

	log.Info("Starting web server", zap.String("addr", cfg.Telemetry.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("ListenAndServe", zap.Error(err))
		return 1
	}
	return 0
}
