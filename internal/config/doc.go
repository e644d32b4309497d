// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

/*
Package config loads fswho configuration with koanf.

Sources are layered, later ones winning:

 1. built-in defaults (defaultConfig)
 2. an optional YAML file: $CONFIG_PATH, ./config.yaml, ./config.yml,
    /etc/fswho/config.yaml
 3. environment variables listed in envMappings, e.g. WATCH_ROOT,
    DEBOUNCE, LOG_LEVEL, AUDIT_SOURCE, PUBLISH_NATS_URL

Unlisted environment variables are ignored. Slice settings (WATCH_IGNORE,
CORS_ORIGINS, AUDIT_EVENT_IDS) are comma separated.

Validation combines validator struct tags with cross-field checks. A failed
load returns a *ValidationError listing every offending field.

WatchLogLevel re-reads the file on change and applies logging.level without
a restart; every other setting needs one.
*/
package config
