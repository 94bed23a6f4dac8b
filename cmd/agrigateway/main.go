// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// agrigateway receives the uplink frames of a sensor node on a serial port
// and publishes them to an MQTT broker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/GermanBionicSystems/agrinode/internal/config"
	"github.com/GermanBionicSystems/agrinode/internal/gateway"
	"github.com/GermanBionicSystems/agrinode/internal/logging"
	"github.com/GermanBionicSystems/agrinode/serialport"
)

var version = "dev"

const appName = "agrigateway"

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "agrigateway: %s.\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	cfgPath := flag.String("config", "", "configuration file, defaults to $AGRINODE_CONFIG or "+config.DefaultPath)
	flag.Parse()
	if flag.NArg() != 0 {
		return errors.New("unexpected argument, try -help")
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
	slog.Info("starting",
		"version", version,
		"env", cfg.AppEnv,
		"mqtt_broker", cfg.MQTT.Broker,
		"mqtt_port", cfg.MQTT.Port,
		"serial_port", cfg.Gateway.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := gateway.NewClient(cfg.MQTT, cfg.Gateway.MaxRetries, logger)
	if err := client.Connect(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	defer client.Disconnect()

	open := func() (gateway.LineSource, error) {
		p, err := serialport.Open(cfg.Gateway.Port, cfg.Gateway.Baud)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	g, err := gateway.New(open, client, &gateway.Opts{
		NodeID:     cfg.MQTT.NodeID,
		MaxRetries: cfg.Gateway.MaxRetries,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	if err := g.Run(ctx); err != nil {
		return err
	}
	s := g.Stats()
	slog.Info("shutting down", "received", s.Received, "published", s.Published, "malformed", s.Malformed, "failed", s.Failed)
	return nil
}
