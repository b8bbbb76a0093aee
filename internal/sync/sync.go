// Package sync periodically backs up manifests and their volume records as
// JSONL to one or more destinations.
package sync

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/crossdock/internal/store"
)

// Destination is a backup target.
type Destination interface {
	// Write stores one complete JSONL snapshot taken at the given time.
	Write(ctx context.Context, at time.Time, data []byte) error
}

// Scheduler runs periodic backups.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger
	now          func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports from the store to the given
// destinations at the specified interval.
func NewScheduler(s store.Store, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
		now:          time.Now,
	}
}

// Start runs one backup immediately and then one per interval.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for an in-flight backup to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	_ = s.SyncOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.SyncOnce(ctx)
		}
	}
}

// SyncOnce exports the store and writes the snapshot to every destination.
// A failing destination does not stop the others; the first error is
// returned.
func (s *Scheduler) SyncOnce(ctx context.Context) error {
	at := s.now()
	var buf bytes.Buffer
	h, err := ExportJSONL(ctx, s.store, &buf, at)
	if err != nil {
		s.logger.Error("backup export failed", "error", err)
		return err
	}
	data := buf.Bytes()

	var firstErr error
	for i, dest := range s.destinations {
		if err := dest.Write(ctx, at, data); err != nil {
			s.logger.Error("backup destination write failed", "destination", i, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("destination %d: %w", i, err)
			}
		}
	}
	s.logger.Info("backup completed",
		"destinations", len(s.destinations),
		"manifests", h.ManifestCount,
		"volumes", h.VolumeCount,
		"bytes", len(data),
	)
	return firstErr
}
