// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

package eventprocessor

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"

	"github.com/avelier/umbra/internal/logging"
)

// zerologAdapter bridges Watermill's logger interface to the application's
// zerolog-backed logging package, so transport internals log in the same
// structured format as everything else.
type zerologAdapter struct {
	fields watermill.LogFields
}

// NewLoggerAdapter returns a Watermill logger backed by the global logger.
func NewLoggerAdapter() watermill.LoggerAdapter {
	return &zerologAdapter{}
}

func (a *zerologAdapter) Error(msg string, err error, fields watermill.LogFields) {
	event := logging.Error().Err(err)
	addFields(event, a.fields, fields)
	event.Msg(msg)
}

func (a *zerologAdapter) Info(msg string, fields watermill.LogFields) {
	event := logging.Info()
	addFields(event, a.fields, fields)
	event.Msg(msg)
}

func (a *zerologAdapter) Debug(msg string, fields watermill.LogFields) {
	event := logging.Debug()
	addFields(event, a.fields, fields)
	event.Msg(msg)
}

func (a *zerologAdapter) Trace(msg string, fields watermill.LogFields) {
	event := logging.Debug()
	addFields(event, a.fields, fields)
	event.Msg(msg)
}

func (a *zerologAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &zerologAdapter{fields: a.fields.Add(fields)}
}

func addFields(event *zerolog.Event, groups ...watermill.LogFields) {
	for _, fields := range groups {
		for k, v := range fields {
			event.Interface(k, v)
		}
	}
}
