// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package audit

import (
	"context"
	"time"

	"github.com/tomtom215/fswho/internal/logging"
	"github.com/tomtom215/fswho/internal/models"
)

// Recorder turns delivered changes into audit events. It satisfies the
// correlator's Subscriber interface.
type Recorder struct {
	logger *Logger
	now    func() time.Time
}

// NewRecorder records into logger.
func NewRecorder(logger *Logger) *Recorder {
	return &Recorder{logger: logger, now: time.Now}
}

// Deliver queues the audit event for one change. It does not block.
func (r *Recorder) Deliver(ctx context.Context, path string, rec models.ChangeRecord) error {
	r.logger.Log(FromChange(path, rec, logging.CorrelationIDFromContext(ctx), r.now()))
	return nil
}

// String names the subscriber in logs and metrics.
func (r *Recorder) String() string { return "audit-trail" }
