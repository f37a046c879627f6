// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads r from path every time path changes on disk, until ctx
// is cancelled. A malformed edit is logged and ignored, leaving the
// last-good catalog in place; this never panics the caller, and the
// watcher keeps running after a bad reload attempt.
func Watch(ctx context.Context, r *Registry, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				descriptors, err := LoadCatalogFile(path)
				if err != nil {
					slog.Warn("registry: catalog reload skipped, file unreadable", slog.Any("error", err))
					continue
				}
				if err := r.Reload(descriptors); err != nil {
					slog.Warn("registry: catalog reload rejected", slog.Any("error", err))
					continue
				}
				slog.Info("registry: catalog reloaded from disk", slog.String("path", path))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("registry: catalog watcher error", slog.Any("error", err))
			}
		}
	}()
	return nil
}
