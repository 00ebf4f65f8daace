// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the descriptor when it changes and hands the result to
// onReload. It relies on fsnotify and polls the modification time when no
// notifier is available.
type Watcher struct {
	path     string
	onReload func(*Config)
	interval time.Duration
	debounce time.Duration
	logger   *slog.Logger
	lastMod  time.Time
}

func NewWatcher(path string, onReload func(*Config), logger *slog.Logger) *Watcher {
	w := &Watcher{
		path:     path,
		onReload: onReload,
		interval: 5 * time.Second,
		debounce: 100 * time.Millisecond,
		logger:   logger.With("component", "config"),
	}
	if info, err := os.Stat(path); err == nil {
		w.lastMod = info.ModTime()
	}
	return w
}

func (w *Watcher) Watch(ctx context.Context) {
	fw, err := fsnotify.NewWatcher()
	if err == nil {
		// Watch the directory so editors that replace the file are noticed.
		err = fw.Add(filepath.Dir(w.path))
		if err != nil {
			fw.Close()
		}
	}
	if err != nil {
		w.logger.Warn("fsnotify unavailable, polling config", "path", w.path, "error", err)
		w.poll(ctx)
		return
	}
	defer fw.Close()

	target := filepath.Clean(w.path)
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			pending = time.After(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "path", w.path, "error", err)
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				w.logger.Warn("config stat failed", "path", w.path, "error", err)
				continue
			}
			if !info.ModTime().After(w.lastMod) {
				continue
			}
			w.lastMod = info.ModTime()
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload failed", "path", w.path, "error", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path, "services", len(cfg.Services))
	w.onReload(cfg)
}
