package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"nanoweb/pkg/logger"
)

// Compactable is a store that can drop expired entries on demand.
type Compactable interface {
	Compact(ctx context.Context) (int, error)
}

// Compactor runs Compact on a cron schedule.
type Compactor struct {
	log       *logger.Logger
	store     Compactable
	spec      string
	scheduler *cron.Cron

	mu      sync.Mutex
	running bool
	runs    int
}

// NewCompactor creates a compactor. The schedule uses the standard five field
// syntax or a descriptor such as "@every 10m".
func NewCompactor(log *logger.Logger, store Compactable, spec string) (*Compactor, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("compact schedule %q: %w", spec, err)
	}
	return &Compactor{
		log:       log,
		store:     store,
		spec:      spec,
		scheduler: cron.New(),
	}, nil
}

// Start schedules compaction.
func (c *Compactor) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	if _, err := c.scheduler.AddFunc(c.spec, c.RunOnce); err != nil {
		return fmt.Errorf("scheduling compaction: %w", err)
	}
	c.scheduler.Start()
	c.running = true
	c.log.Info("State compaction scheduled", zap.String("schedule", c.spec))
	return nil
}

// Stop halts the scheduler and waits for a running compaction or ctx.
func (c *Compactor) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.mu.Unlock()

	select {
	case <-c.scheduler.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce compacts immediately.
func (c *Compactor) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dropped, err := c.store.Compact(ctx)

	c.mu.Lock()
	c.runs++
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("State compaction failed", zap.Error(err))
		return
	}
	if dropped > 0 {
		c.log.Debug("Compacted state", zap.Int("dropped", dropped))
	}
}

// Runs reports how many compactions have run.
func (c *Compactor) Runs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs
}
