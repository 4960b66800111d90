// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gfx

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that discards all records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() { loggerPtr.Store(slog.New(nopHandler{})) }

// SetLogger sets the logger used by the package.
// By default, nothing is logged. Passing nil restores
// the default.
//
// Levels used:
//   - [slog.LevelDebug]: per-frame events (submit, acquire, present)
//   - [slog.LevelInfo]: lifecycle events (device, swapchain creation and resize)
//   - [slog.LevelWarn]: recoverable conditions (out of date swapchain)
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the logger used by the package.
func Logger() *slog.Logger { return loggerPtr.Load() }
