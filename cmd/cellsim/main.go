// Command cellsim runs one cellular network simulation and prints its
// report.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/cellular-simulator/internal/config"
	"github.com/signalsfoundry/cellular-simulator/internal/logging"
	"github.com/signalsfoundry/cellular-simulator/internal/observability"
	"github.com/signalsfoundry/cellular-simulator/internal/sim"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "cellsim: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	asJSON     bool
}

// parseConfig layers defaults, the optional config file, CELLSIM_*
// variables and finally any flags that were set explicitly.
func parseConfig(args []string, stderr io.Writer) (config.Config, options, error) {
	fs := flag.NewFlagSet("cellsim", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.configPath, "config", "", "path to a .toml or .yaml config file")
	fs.BoolVar(&opts.asJSON, "json", false, "print the report as JSON")
	proto := fs.String("protocol", "", "protocol: 2g, 3g, 4g, 5g or custom")
	messages := fs.Int("messages", 0, "number of messages to generate")
	overhead := fs.Int("overhead", 0, "overhead percentage, clamped to 0-100")
	roster := fs.String("roster", "", "device roster file (id,Type rows)")
	traffic := fs.String("traffic", "", "traffic model: pattern or poisson")
	producers := fs.Int("producers", 0, "concurrent message producers")
	usersPerChannel := fs.Int("users-per-channel", 0, "custom protocol: users per channel")
	bandwidth := fs.Int("bandwidth", 0, "custom protocol: channel bandwidth in kHz")
	spectrum := fs.Int("spectrum", 0, "custom protocol: total spectrum in kHz")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return config.Config{}, opts, err
	}
	if fs.NArg() > 0 {
		return config.Config{}, opts, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return config.Config{}, opts, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return config.Config{}, opts, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "protocol":
			cfg.Simulation.Protocol = *proto
		case "messages":
			cfg.Simulation.Messages = *messages
		case "overhead":
			cfg.Simulation.OverheadPercent = *overhead
		case "roster":
			cfg.Simulation.RosterFile = *roster
		case "traffic":
			cfg.Traffic.Model = strings.ToLower(*traffic)
		case "producers":
			cfg.Traffic.Producers = *producers
		case "users-per-channel":
			cfg.Simulation.Custom.UsersPerChannel = *usersPerChannel
		case "bandwidth":
			cfg.Simulation.Custom.ChannelBandwidth = *bandwidth
		case "spectrum":
			cfg.Simulation.Custom.TotalSpectrum = *spectrum
		case "log-level":
			cfg.Logging.Level = *logLevel
		}
	})

	return cfg, opts, cfg.Validate()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, opts, err := parseConfig(args, stderr)
	if err != nil {
		return err
	}

	logCfg := cfg.Logging
	logCfg.Output = stderr
	log := logging.New(logCfg)

	shutdown, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	collector, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	report, err := sim.Run(ctx, cfg, sim.WithLogger(log), sim.WithMetrics(collector))
	if err != nil {
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return renderReport(stdout, report)
}
