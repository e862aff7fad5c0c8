package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerGC periodically rewrites badger value-log files with enough
// garbage. Badger does not run this on its own; without it the value
// log only grows.
type BadgerGC struct {
	db       *badger.DB
	log      *slog.Logger
	interval time.Duration
}

func NewBadgerGC(db *badger.DB, log *slog.Logger, interval time.Duration) *BadgerGC {
	return &BadgerGC{db: db, log: log, interval: interval}
}

func (w *BadgerGC) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// RunValueLogGC rewrites at most one file per call; loop
			// until it reports nothing left to rewrite.
			for {
				if err := w.db.RunValueLogGC(0.5); err != nil {
					if err != badger.ErrNoRewrite {
						w.log.Warn("Value log GC failed", "error", err)
					}
					break
				}
				w.log.Debug("Value log file rewritten")
			}
		}
	}
}
