// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package correlator

import (
	"strings"

	"github.com/tomtom215/fswho/internal/metrics"
	"github.com/tomtom215/fswho/internal/models"
)

const (
	flushAudit   = "audit"
	flushTimeout = "timeout"
)

// applySignal folds one raw watcher signal into the pending table.
func (e *Engine) applySignal(sig models.FileSignal) {
	metrics.RecordSignal(string(sig.Kind))

	key := models.PathKey(sig.Path)
	now := e.now()

	rec, ok := e.pending[key]
	if !ok {
		rec = &models.ChangeRecord{Path: sig.Path, ObservedAt: now}
		if sig.Kind != models.ActionRemove {
			rec.Identity = e.readIdentity(sig.Path)
		}
		rec.Set(sig.Kind)
		e.pending[key] = rec
	} else {
		rec.Path = sig.Path
		rec.ObservedAt = now
		rec.Action = sig.Kind
		// Deleted and recreated inside one pending window.
		if rec.Identity == 0 && sig.Kind != models.ActionRemove {
			rec.Identity = e.readIdentity(sig.Path)
		}
	}

	if rec.Identity == 0 {
		rec.Set(rec.Action)
		return
	}

	old, known := e.index.Lookup(rec.Identity)
	switch {
	case !known:
		if rec.Action == models.ActionUpdate {
			rec.Set(models.ActionCreate)
		} else {
			rec.Set(models.ActionUpdate)
		}
	case models.PathKey(old) != key:
		e.inheritRename(rec, old)
		rec.Set(models.ActionRename)
	default:
		rec.Set(rec.Action)
	}

	e.index.Set(rec.Identity, sig.Path)
}

// inheritRename moves the history of the record at old onto rec.
func (e *Engine) inheritRename(rec *models.ChangeRecord, old string) {
	oldKey := models.PathKey(old)
	prev, ok := e.pending[oldKey]
	if !ok {
		rec.RenamedFrom = old
		e.warnAnomaly("rename_after_delete", rec.Path, "rename source was already flushed as a delete")
		return
	}

	const history = models.FlagCreated | models.FlagUpdated
	rec.Flags = (rec.Flags &^ history) | (prev.Flags & history)

	rec.RenamedFrom = prev.RenamedFrom
	if rec.RenamedFrom == "" {
		rec.RenamedFrom = old
	}
	if prev.Author != "" {
		rec.Author = prev.Author
	}

	e.ignore[oldKey] = ignoreEntry{at: e.now(), identity: rec.Identity}
	delete(e.pending, oldKey)
}

func (e *Engine) readIdentity(path string) models.Identity {
	id, err := e.identify(path)
	if err != nil {
		e.logger.Debug().Err(err).Str("path", path).Msg("identity unavailable")
		return 0
	}
	return id
}

// applyAudit matches one Security event against the tables.
func (e *Engine) applyAudit(ev models.SecurityEvent) {
	if !ev.Details {
		metrics.RecordAuditEvent(ev.EventID, "no_details")
		return
	}

	key := models.PathKey(ev.ObjectName)
	if !e.inScope(key) {
		metrics.RecordAuditEvent(ev.EventID, "out_of_scope")
		return
	}

	account := ev.Account()
	outcome := "ignored"

	switch ev.EventID {
	case models.EventObjectAccess:
		switch ev.AccessMask {
		case models.AccessWriteData:
			if e.hasFile(key) && e.flushKey(key, account, flushAudit) {
				outcome = "flushed"
			}
		case models.AccessDelete:
			if e.flushKey(key, account, flushAudit) {
				outcome = "flushed"
			}
		default:
			if e.lacksAuthor(key) && e.flushKey(key, account, flushAudit) {
				outcome = "flushed"
			}
		}
	case models.EventDeleteIntent:
		if e.flushKey(key, account, flushAudit) {
			outcome = "flushed"
		}
	}

	metrics.RecordAuditEvent(ev.EventID, outcome)
}

// inScope reports whether key is the root or lies below it.
func (e *Engine) inScope(key string) bool {
	rest, ok := strings.CutPrefix(key, e.rootKey)
	if !ok {
		return false
	}
	return rest == "" || rest[0] == '\\' || rest[0] == '/'
}

func (e *Engine) hasFile(key string) bool {
	if _, ok := e.pending[key]; ok {
		return true
	}
	_, ok := e.flush[key]
	return ok
}

func (e *Engine) lacksAuthor(key string) bool {
	if rec, ok := e.flush[key]; ok && rec.Author == "" {
		return true
	}
	if rec, ok := e.pending[key]; ok && rec.Author == "" {
		return true
	}
	return false
}

// flushKey moves the record at key to the flush table and arms the debounce
// timer. It reports whether a record was flushed.
func (e *Engine) flushKey(key, account, source string) bool {
	if entry, ok := e.ignore[key]; ok {
		delete(e.ignore, key)
		e.dropDuplicate(key, entry)
		metrics.IgnoreConsumed.Inc()
		e.logger.Debug().Str("path", key).Msg("flush swallowed for rename source")
		return false
	}
	return e.flushRecord(key, account, source)
}

// dropDuplicate discards the pending record at a rename source path when it
// was created by a late signal for the moved file. A different file that took
// the path stays pending.
func (e *Engine) dropDuplicate(key string, entry ignoreEntry) bool {
	rec, ok := e.pending[key]
	if !ok {
		return false
	}
	if rec.Identity != 0 && rec.Identity != entry.identity {
		return false
	}
	if rec.Identity == 0 && rec.Action != models.ActionRemove {
		return false
	}
	delete(e.pending, key)
	return true
}

func (e *Engine) flushRecord(key, account, source string) bool {
	if rec, ok := e.pending[key]; ok {
		delete(e.pending, key)
		if account != "" {
			rec.Author = account
		}
		e.flush[key] = rec
	} else if rec, ok := e.flush[key]; ok {
		if account != "" {
			rec.Author = account
		}
	} else {
		e.warnAnomaly("unknown_path", key, "audit event for a path with no detected change")
		return false
	}

	metrics.RecordFlush(source)
	e.armDebounce()
	return true
}

// sweep delivers stale pending records without an author and expires
// ignore entries nobody consumed.
func (e *Engine) sweep() {
	now := e.now()

	for key, rec := range e.pending {
		if now.Sub(rec.ObservedAt) <= e.cfg.Timeout {
			continue
		}
		if entry, ok := e.ignore[key]; ok && e.dropDuplicate(key, entry) {
			delete(e.ignore, key)
			metrics.IgnoreConsumed.Inc()
			continue
		}
		metrics.Timeouts.Inc()
		e.logger.Error().
			Str("path", rec.Path).
			Str("action", string(rec.Action)).
			Time("observed_at", rec.ObservedAt).
			Msg("change not attributed before timeout")
		// Any ignore entry stays for the audit confirmation of the rename.
		e.flushRecord(key, "", flushTimeout)
	}

	for key, entry := range e.ignore {
		if now.Sub(entry.at) > e.cfg.Timeout {
			delete(e.ignore, key)
		}
	}

	if e.suppressed > 0 {
		e.logger.Warn().Int("suppressed", e.suppressed).Msg("anomaly warnings suppressed by rate limit")
		e.suppressed = 0
	}

	e.reportSizes()
}
