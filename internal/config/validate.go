// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/tomtom215/fswho/internal/validation"
)

// ValidationError lists every configuration problem found.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

func (e *ValidationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// Validate checks struct tags and then the rules that span fields.
func (c *Config) Validate() error {
	verr := &ValidationError{}

	if reqErr := validation.ValidateStruct(c); reqErr != nil {
		for _, fe := range reqErr.Errors() {
			verr.add("%s (%s)", fe.Error(), strings.TrimPrefix(fe.Field(), "Config."))
		}
	}

	c.validateWatch(verr)
	c.validateEngine(verr)
	c.validateAuditSource(verr)
	c.validateTrail(verr)
	c.validatePublish(verr)
	c.validateServer(verr)

	if len(verr.Problems) > 0 {
		return verr
	}
	return nil
}

func (c *Config) validateWatch(verr *ValidationError) {
	if c.Watch.Root != "" && !filepath.IsAbs(c.Watch.Root) {
		verr.add("watch.root must be an absolute path, got %q", c.Watch.Root)
	}
}

func (c *Config) validateEngine(verr *ValidationError) {
	if c.Engine.Debounce > 0 && c.Engine.Timeout > 0 && c.Engine.Debounce >= c.Engine.Timeout {
		verr.add("engine.debounce (%s) must be shorter than engine.timeout (%s)", c.Engine.Debounce, c.Engine.Timeout)
	}
}

func (c *Config) validateAuditSource(verr *ValidationError) {
	switch c.AuditSource.Type {
	case SourceFile:
		if c.AuditSource.Path == "" {
			verr.add("audit_source.path is required when audit_source.type=file")
		}
	case SourceNATS:
		validateNATSURL(verr, "audit_source.nats_url", c.AuditSource.NATSURL)
		if c.AuditSource.Subject == "" {
			verr.add("audit_source.subject is required when audit_source.type=nats")
		}
	}
}

func (c *Config) validateTrail(verr *ValidationError) {
	if c.AuditTrail.Enabled && c.AuditTrail.Store == StoreBadger && c.AuditTrail.Path == "" {
		verr.add("audit_trail.path is required when audit_trail.store=badger")
	}
}

func (c *Config) validatePublish(verr *ValidationError) {
	if !c.Publish.Enabled {
		return
	}
	validateNATSURL(verr, "publish.nats_url", c.Publish.NATSURL)
	if c.Publish.SubjectPrefix == "" {
		verr.add("publish.subject_prefix is required when publish.enabled=true")
	}
}

func (c *Config) validateServer(verr *ValidationError) {
	if !c.Server.Enabled || c.Server.RelaySubject == "" {
		return
	}
	if !c.Server.WebSocket {
		verr.add("server.relay_subject requires server.websocket=true")
	}
	if c.Publish.NATSURL == "" {
		verr.add("server.relay_subject requires publish.nats_url")
	}
}

func validateNATSURL(verr *ValidationError, name, raw string) {
	if raw == "" {
		verr.add("%s is required", name)
		return
	}
	u, err := url.Parse(raw)
	if err != nil {
		verr.add("%s is invalid: %v", name, err)
		return
	}
	switch u.Scheme {
	case "nats", "tls", "ws", "wss":
	default:
		verr.add("%s must use nats, tls, ws or wss, got %q", name, u.Scheme)
	}
	if u.Host == "" {
		verr.add("%s has no host", name)
	}
}
