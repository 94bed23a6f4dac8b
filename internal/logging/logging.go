// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package logging builds the slog.Logger of the binaries: colored text on a
// terminal in dev, JSON lines in prod.
package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"

	"github.com/GermanBionicSystems/agrinode/internal/config"
)

// New returns a logger writing to w, tagged with app and version.
func New(w io.Writer, cfg *config.Config, app, version string) *slog.Logger {
	if cfg.AppEnv != "prod" {
		h := tint.NewHandler(w, &tint.Options{
			Level:      cfg.Level(),
			AddSource:  cfg.Level() == slog.LevelDebug,
			TimeFormat: time.StampMilli,
		})
		return slog.New(h).With("app", app)
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.Level(),
	})
	return slog.New(h).With(
		"app", app,
		"version", version,
		"env", cfg.AppEnv,
	)
}
