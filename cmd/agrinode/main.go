// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// agrinode samples the humidity, light and soil sensors of a field node and
// sends the telemetry frames on its serial links.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/agrinode/adc"
	"github.com/GermanBionicSystems/agrinode/dht11"
	"github.com/GermanBionicSystems/agrinode/gpioline"
	"github.com/GermanBionicSystems/agrinode/internal/config"
	"github.com/GermanBionicSystems/agrinode/internal/logging"
	"github.com/GermanBionicSystems/agrinode/node"
	"github.com/GermanBionicSystems/agrinode/serialport"
	"github.com/GermanBionicSystems/agrinode/usclock"
)

var version = "dev"

const appName = "agrinode"

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "agrinode: %s.\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	cfgPath := flag.String("config", "", "configuration file, defaults to $AGRINODE_CONFIG or "+config.DefaultPath)
	listPorts := flag.Bool("ports", false, "list the serial ports and exit")
	flag.Parse()
	if flag.NArg() != 0 {
		return errors.New("unexpected argument, try -help")
	}

	if *listPorts {
		ports, err := serialport.Ports()
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	}

	var cfg *config.Config
	var err error
	if *cfgPath != "" {
		cfg, err = config.Load(*cfgPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := logging.New(os.Stderr, cfg, appName, version)
	slog.SetDefault(logger)
	slog.Info("starting", "version", version, "env", cfg.AppEnv, "log_level", cfg.LogLevel)

	if _, err := host.Init(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, cfg, logger)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	line, err := gpioline.ByName(cfg.Node.SensorPin)
	if err != nil {
		return err
	}
	defer line.Halt()
	sensor, err := dht11.New(line, usclock.New(), &dht11.Opts{
		PollInterval: dht11.DefaultOpts.PollInterval,
		EdgeTimeout:  cfg.Node.EdgeTimeout,
	})
	if err != nil {
		return err
	}

	light, soil := adc.Channel(cfg.Node.LightChannel), adc.Channel(cfg.Node.SoilChannel)
	pins := map[adc.Channel]analog.PinADC{}
	for _, ch := range []adc.Channel{light, soil} {
		p, err := adc.OpenIIO(cfg.Node.ADCDevice, int(ch), cfg.Node.ADCBits)
		if err != nil {
			return err
		}
		pins[ch] = p
	}
	conv := adc.NewPinConverter(pins)
	defer conv.Halt()
	sampler := adc.New(conv, &adc.Opts{
		ConversionTimeout: cfg.Node.ConversionTimeout,
		Settle:            cfg.Node.Settle,
	})

	uplink, err := serialport.Open(cfg.Serial.UplinkPort, cfg.Serial.UplinkBaud)
	if err != nil {
		return err
	}
	defer uplink.Close()
	debug, err := serialport.Open(cfg.Serial.DebugPort, cfg.Serial.DebugBaud)
	if err != nil {
		return err
	}
	defer debug.Close()

	var heartbeat gpio.PinOut
	if cfg.Node.HeartbeatPin != "" {
		p := gpioreg.ByName(cfg.Node.HeartbeatPin)
		if p == nil {
			return fmt.Errorf("no heartbeat pin %q", cfg.Node.HeartbeatPin)
		}
		heartbeat = p
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := node.NewMetrics(reg)
	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", "addr", cfg.Metrics.Addr)
	}

	n, err := node.New(sensor, sampler, uplink, debug, &node.Opts{
		Light:     light,
		Soil:      soil,
		Period:    cfg.Node.Period,
		Heartbeat: heartbeat,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		return err
	}
	logger.Info("node ready", "sensor", sensor, "sampler", sampler, "uplink", uplink, "debug", debug)
	if err := n.Run(ctx); err != nil {
		logger.Error("node halted", "error", err)
		return err
	}
	logger.Info("shutting down")
	return nil
}
