// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assembler

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// DriftWatcher turns filesystem changes to schema snapshot files into
// tenant cache invalidations.
//
// Description:
//
//	The ingestion pipeline drops one <tenant>.json snapshot per tenant
//	into a directory; rewriting a snapshot is the drift signal. The
//	watcher maps write/create events on those files to
//	Service.OnSchemaChanged for the file's tenant. Events for other file
//	types are ignored.
//
// Thread Safety: Start once; Close is safe to call once after Start.
type DriftWatcher struct {
	watcher *fsnotify.Watcher
	service *Service
	logger  *slog.Logger
	done    chan struct{}
}

// NewDriftWatcher creates a watcher over the snapshot directory.
func NewDriftWatcher(snapshotDir string, service *Service, logger *slog.Logger) (*DriftWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(snapshotDir); err != nil {
		w.Close()
		return nil, err
	}
	return &DriftWatcher{
		watcher: w,
		service: service,
		logger:  logger.With(slog.String("component", "drift_watcher")),
		done:    make(chan struct{}),
	}, nil
}

// Start runs the event loop until Close.
func (d *DriftWatcher) Start() {
	go d.loop()
}

// Close stops the event loop and releases the watcher.
func (d *DriftWatcher) Close() error {
	close(d.done)
	return d.watcher.Close()
}

func (d *DriftWatcher) loop() {
	for {
		select {
		case <-d.done:
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			tenant := tenantFromSnapshot(event.Name)
			if tenant == "" {
				continue
			}
			d.logger.Info("snapshot change detected",
				slog.String("tenant", tenant),
				slog.String("path", event.Name))
			d.service.OnSchemaChanged(tenant)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warn("drift watcher error", slog.String("error", err.Error()))
		}
	}
}

// tenantFromSnapshot extracts the tenant from a <tenant>.json path, empty
// for non-snapshot files.
func tenantFromSnapshot(path string) string {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, ".json") {
		return ""
	}
	return strings.TrimSuffix(base, ".json")
}
