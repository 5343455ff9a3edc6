// Package watch turns files dropped into a local folder into task
// artifacts in the vault's input queue.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/basket/deskhand/internal/vault"
)

// settleDelay gives the producer time to finish writing before the
// drop is ingested.
const settleDelay = 200 * time.Millisecond

// Watcher observes a drop directory and files each new regular file as
// a task artifact in the configured input domain.
type Watcher struct {
	store   *vault.Store
	logger  *slog.Logger
	dropDir string
	domain  string

	ingested chan string
}

// Config wires a Watcher.
type Config struct {
	Store   *vault.Store
	Logger  *slog.Logger
	DropDir string
	Domain  string
}

func NewWatcher(cfg Config) *Watcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		store:    cfg.Store,
		logger:   logger,
		dropDir:  cfg.DropDir,
		domain:   cfg.Domain,
		ingested: make(chan string, 16),
	}
}

// Ingested reports artifact names as they are filed; the channel is
// closed when the watcher stops.
func (w *Watcher) Ingested() <-chan string {
	return w.ingested
}

// Start begins watching. Files already present in the drop directory
// are ingested on startup so nothing dropped while the daemon was down
// is lost.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dropDir, 0o755); err != nil {
		return fmt.Errorf("create drop dir: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	if err := fsw.Add(w.dropDir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", w.dropDir, err)
	}

	entries, err := os.ReadDir(w.dropDir)
	if err != nil {
		fsw.Close()
		return fmt.Errorf("scan drop dir: %w", err)
	}
	for _, ent := range entries {
		if !ent.IsDir() {
			w.ingest(filepath.Join(w.dropDir, ent.Name()))
		}
	}

	go func() {
		defer func() {
			fsw.Close()
			close(w.ingested)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				// Let the producer finish writing first.
				time.Sleep(settleDelay)
				w.ingest(ev.Name)
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Error("drop watcher error", "err", err)
			}
		}
	}()

	w.logger.Info("drop watcher started", "dir", w.dropDir, "domain", w.domain)
	return nil
}

// ingest files one dropped file as a task artifact. Repeat events for
// the same file are idempotent: the artifact name is derived from the
// file name and never overwritten.
func (w *Watcher) ingest(path string) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	stem := strings.TrimSuffix(base, filepath.Ext(base))
	name := "FILE_" + stem + ".md"
	queue := vault.InputQueue(w.domain)
	if w.store.Exists(queue, name) {
		return
	}

	content := fmt.Sprintf(`---
type: file_drop
original_name: %s
path: %s
size: %d
---

New file dropped for processing.
`, base, path, info.Size())

	if err := w.store.Write(queue, name, content); err != nil {
		w.logger.Error("drop ingest failed", "file", base, "err", err)
		return
	}
	w.logger.Info("drop ingested", "file", base, "task", name)
	select {
	case w.ingested <- name:
	default:
	}
}
