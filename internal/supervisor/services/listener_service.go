// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package services

import (
	"context"
	"errors"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/fswho/internal/correlator"
	"github.com/tomtom215/fswho/internal/logging"
)

// ChangeListener is satisfied by *correlator.Listener.
type ChangeListener interface {
	Serve(ctx context.Context) error
	Stop() error
}

// ListenerService supervises the correlation listener. Source failures are
// returned for restart; once the listener has been stopped the service asks
// not to be restarted.
type ListenerService struct {
	listener ChangeListener
}

// NewListenerService wraps listener.
func NewListenerService(listener ChangeListener) *ListenerService {
	return &ListenerService{listener: listener}
}

// Serve implements suture.Service.
func (s *ListenerService) Serve(ctx context.Context) error {
	err := s.listener.Serve(ctx)
	switch {
	case errors.Is(err, correlator.ErrStopped):
		logging.Info().Msg("Correlation listener stopped")
		return suture.ErrDoNotRestart
	case err != nil && ctx.Err() == nil:
		logging.Error().Err(err).Msg("Correlation listener failed")
	}
	return err
}

// Stop stops the listener permanently. A running Serve returns and the
// service is not restarted.
func (s *ListenerService) Stop() error {
	return s.listener.Stop()
}

// String implements fmt.Stringer.
func (s *ListenerService) String() string {
	return "correlation-listener"
}
