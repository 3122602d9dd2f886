// Package gc provides garbage collection for orphaned blocks.
//
// The garbage collector identifies and releases blocks that are no longer
// referenced by the namespace (orphaned blocks). This can occur due to:
//   - Server crashes between a metadata commit and the block release
//   - Failed release operations
//   - Write handles abandoned by a restart
//
// Orphans can be released after allocation resumes: a block nobody
// references can never become referenced again, since writers always
// allocate fresh handles.
package gc

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/dittons/internal/logger"
	"github.com/marmos91/dittons/internal/ratelimiter"
	"github.com/marmos91/dittons/pkg/metrics"
	"github.com/marmos91/dittons/pkg/store/block"
	"github.com/marmos91/dittons/pkg/store/metadata"
)

var log = logger.With("gc")

// Namespace is the part of the namespace engine the collector needs.
type Namespace interface {
	// Quiesce runs fn with block allocation paused, passing every block
	// the namespace still references.
	Quiesce(ctx context.Context, fn func(referenced map[metadata.BlockHandle]struct{}) error) error
}

// Collector performs periodic garbage collection on a block store.
//
// Thread Safety: Safe for concurrent use.
type Collector struct {
	ns      Namespace
	blocks  block.Store
	lister  block.Lister
	config  Config
	metrics metrics.GCMetrics
	pacer   *ratelimiter.RateLimiter
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Config contains configuration for the garbage collector.
type Config struct {
	// Enabled controls whether background collection runs.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Interval is how often to run garbage collection (default: 24h)
	Interval time.Duration `mapstructure:"interval" yaml:"interval" validate:"omitempty,min=1s"`

	// BatchSize is how many releases run between cancellation checks
	// (default: 1000)
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size" validate:"omitempty,min=1"`

	// DryRun mode logs what would be released without releasing it
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`

	// ReleaseRate caps releases per second so a large collection does not
	// flood a remote block store (default: 0, unlimited)
	ReleaseRate uint `mapstructure:"release_rate" yaml:"release_rate"`
}

// NewCollector creates a new garbage collector.
//
// The collector is initialized but not started. Call Start() to begin
// background collection.
//
// Parameters:
//   - ns: Namespace reporting referenced blocks
//   - blocks: Block store to scan; must implement block.Lister
//   - config: Garbage collection configuration
//   - m: Metrics sink, nil for no-op
func NewCollector(ns Namespace, blocks block.Store, config Config, m metrics.GCMetrics) (*Collector, error) {
	lister, ok := blocks.(block.Lister)
	if !ok {
		return nil, fmt.Errorf("block store %T does not implement block.Lister", blocks)
	}
	if m == nil {
		m = metrics.NoopGCMetrics()
	}

	if config.Interval == 0 {
		config.Interval = 24 * time.Hour
	}
	if config.BatchSize == 0 {
		config.BatchSize = 1000
	}

	return &Collector{
		ns:      ns,
		blocks:  blocks,
		lister:  lister,
		config:  config,
		metrics: m,
		pacer:   ratelimiter.New(config.ReleaseRate, config.ReleaseRate),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins background garbage collection. It is a no-op when the
// collector is disabled.
func (c *Collector) Start() {
	if !c.config.Enabled {
		log.Info("Garbage collection disabled")
		close(c.doneCh)
		return
	}

	log.Info("Starting garbage collector: interval=%s batch_size=%d release_rate=%d dry_run=%v",
		c.config.Interval, c.config.BatchSize, c.config.ReleaseRate, c.config.DryRun)

	go c.worker()
}

// Stop signals the worker to stop and waits for it, bounded by ctx.
// Call at most once, after Start.
func (c *Collector) Stop(ctx context.Context) error {
	close(c.stopCh)

	select {
	case <-c.doneCh:
		return nil
	case <-ctx.Done():
		log.Warn("Garbage collector shutdown timeout")
		return ctx.Err()
	}
}

// RunNow triggers an immediate collection and blocks until it completes.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	log.Info("Running garbage collection (manual trigger)")
	return c.collect(ctx)
}

func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			go func() {
				select {
				case <-c.stopCh:
					cancel()
				case <-ctx.Done():
				}
			}()
			stats, err := c.collect(ctx)
			cancel()

			if err != nil {
				log.Error("Garbage collection failed: %v", err)
			} else {
				log.Info("Garbage collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			log.Info("Garbage collector stopped")
			return
		}
	}
}

// collect performs a single collection run:
//  1. Pause allocation and take the referenced set from the namespace
//  2. List every block in the block store
//  3. orphaned = existing - referenced
//  4. Resume allocation and release orphaned blocks
func (c *Collector) collect(ctx context.Context) (stats *Stats, err error) {
	stats = &Stats{StartTime: time.Now()}
	defer func() {
		stats.EndTime = time.Now()
		c.metrics.RecordRun(stats.Duration(), int(stats.ExistingCount), int(stats.ReleasedCount), err)
	}()

	var orphaned []metadata.BlockHandle
	err = c.ns.Quiesce(ctx, func(referenced map[metadata.BlockHandle]struct{}) error {
		stats.ReferencedCount = uint64(len(referenced))

		existing, err := c.lister.ListAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to list blocks: %w", err)
		}
		stats.ExistingCount = uint64(len(existing))

		for _, h := range existing {
			if _, ok := referenced[h]; !ok {
				orphaned = append(orphaned, h)
			}
		}
		return nil
	})
	if err != nil {
		return stats, err
	}
	stats.OrphanedCount = uint64(len(orphaned))

	if len(orphaned) == 0 {
		log.Debug("No orphaned blocks among %d", stats.ExistingCount)
		return stats, nil
	}

	if c.config.DryRun {
		log.Info("DRY RUN - would release %d blocks:", stats.OrphanedCount)
		for i, h := range orphaned {
			if i == 10 {
				log.Info("  ... and %d more", len(orphaned)-10)
				break
			}
			log.Info("  - %s", h)
		}
		return stats, nil
	}

	for i, h := range orphaned {
		if i%c.config.BatchSize == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}
		if err := c.pacer.Wait(ctx); err != nil {
			return stats, err
		}
		if err := c.blocks.Release(ctx, h); err != nil {
			log.Debug("Failed to release %s: %v", h, err)
			stats.FailedCount++
			continue
		}
		stats.ReleasedCount++
	}

	log.Info("Released %d orphaned blocks, %d failed", stats.ReleasedCount, stats.FailedCount)
	return stats, nil
}

// Stats contains statistics from a garbage collection run.
type Stats struct {
	StartTime       time.Time
	EndTime         time.Time
	ReferencedCount uint64 // Blocks referenced by the namespace
	ExistingCount   uint64 // Blocks present in the block store
	OrphanedCount   uint64 // Existing blocks not referenced
	ReleasedCount   uint64 // Orphans released
	FailedCount     uint64 // Orphans whose release failed
}

// Duration returns the total collection duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the collection.
func (s *Stats) Summary() string {
	return fmt.Sprintf("referenced=%d existing=%d orphaned=%d released=%d failed=%d duration=%s",
		s.ReferencedCount, s.ExistingCount, s.OrphanedCount,
		s.ReleasedCount, s.FailedCount, s.Duration())
}
