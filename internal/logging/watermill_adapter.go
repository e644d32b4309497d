// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package logging

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// WatermillLogger implements watermill.LoggerAdapter over zerolog so the
// NATS publisher and subscriber log in the same format as everything else.
type WatermillLogger struct {
	logger zerolog.Logger
	fields watermill.LogFields
}

var _ watermill.LoggerAdapter = (*WatermillLogger)(nil)

// NewWatermillLogger wraps the global logger with component=watermill.
func NewWatermillLogger() *WatermillLogger {
	return &WatermillLogger{logger: WithComponent("watermill")}
}

// NewWatermillLoggerWith wraps l.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewWatermillLoggerWith(l zerolog.Logger) *WatermillLogger {
	return &WatermillLogger{logger: l}
}

func (w *WatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.emit(w.logger.Error().Err(err), msg, fields)
}

func (w *WatermillLogger) Info(msg string, fields watermill.LogFields) {
	w.emit(w.logger.Info(), msg, fields)
}

func (w *WatermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.emit(w.logger.Debug(), msg, fields)
}

func (w *WatermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.emit(w.logger.Trace(), msg, fields)
}

// With returns an adapter that adds fields to every entry.
func (w *WatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillLogger{logger: w.logger, fields: w.fields.Add(fields)}
}

func (w *WatermillLogger) emit(ev *zerolog.Event, msg string, fields watermill.LogFields) {
	for k, v := range w.fields {
		ev = ev.Interface(k, v)
	}
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
