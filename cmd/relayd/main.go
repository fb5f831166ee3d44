// relayd is the cross-chain relay daemon: it watches every configured
// chain and keeps clients refreshed and packets flowing between them.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	metricsprom "github.com/ethereum/go-ethereum/metrics/prometheus"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/crosschain/relayd/config"
	"github.com/crosschain/relayd/supervisor"
	"github.com/crosschain/relayd/telemetry"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the TOML configuration file",
		Value:   "relayd.toml",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
	metricsFlag = &cli.BoolFlag{
		Name:  "metrics",
		Usage: "Enable the telemetry service and metrics endpoint",
	}
	metricsAddrFlag = &cli.StringFlag{
		Name:  "metrics.addr",
		Usage: "Listen address for the Prometheus metrics endpoint",
		Value: "127.0.0.1:6060",
	}
)

func main() {
	app := &cli.App{
		Name:  "relayd",
		Usage: "cross-chain relay daemon",
		Commands: []*cli.Command{
			{
				Name:   "start",
				Usage:  "Start relaying between all configured chains",
				Flags:  []cli.Flag{configFlag, verbosityFlag, metricsFlag, metricsAddrFlag},
				Action: start,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func start(ctx *cli.Context) error {
	setupLogger(ctx.Int(verbosityFlag.Name))

	cfg, err := config.Load(ctx.String(configFlag.Name))
	if err != nil {
		return err
	}

	var opts []supervisor.Option
	if ctx.Bool(metricsFlag.Name) || cfg.Telemetry.Enabled {
		sink := startTelemetry(ctx, cfg)
		opts = append(opts, supervisor.WithTelemetry(sink))
	}

	sup := supervisor.New(cfg, opts...)
	log.Info("starting supervisor", "chains", len(cfg.Chains))
	return sup.Run()
}

func setupLogger(verbosity int) {
	useColor := isatty.IsTerminal(os.Stderr.Fd())
	handler := log.NewTerminalHandlerWithLevel(os.Stderr, log.FromLegacyLevel(verbosity), useColor)
	log.SetDefault(log.NewLogger(handler))
}

// startTelemetry brings up the counter service and the Prometheus
// endpoint serving the default metrics registry.
func startTelemetry(ctx *cli.Context, cfg *config.Config) telemetry.Sink {
	metrics.Enabled = true

	service := telemetry.NewService(telemetry.NewState())
	go service.Run()

	addr := cfg.Telemetry.ListenAddr
	if ctx.IsSet(metricsAddrFlag.Name) || addr == "" {
		addr = ctx.String(metricsAddrFlag.Name)
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsprom.Handler(metrics.DefaultRegistry))
		log.Info("metrics endpoint listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("metrics endpoint failed", "err", err)
		}
	}()

	return service.Sink()
}
