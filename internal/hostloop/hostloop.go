// Package hostloop drives trees from wall-clock time, using go-behaviortree
// tickers to call Root.Tick at a fixed interval.
//
// A tree is single threaded. Driver is the one place that adds a lock, so
// that a ticker goroutine, a UI and blackboard writers elsewhere can share a
// tree safely, as long as they all go through the Driver.
package hostloop

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joeycumines/behave/internal/tree"
	bt "github.com/joeycumines/go-behaviortree"
)

// Driver serializes access to a Root.
type Driver struct {
	mu     sync.Mutex
	root   *tree.Root
	logger *slog.Logger
	ticks  int
}

// NewDriver wraps root. The caller must not touch root directly afterwards.
func NewDriver(root *tree.Root) *Driver {
	return &Driver{root: root, logger: root.Logger()}
}

// Do runs fn with exclusive access to the tree.
func (d *Driver) Do(fn func(root *tree.Root)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.root)
}

// Start starts the tree unless it is already running.
func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.start()
}

func (d *Driver) start() error {
	if d.root.IsActive() {
		return nil
	}
	return d.root.Start()
}

// Cancel cancels the tree.
func (d *Driver) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.root.Cancel()
}

// Close closes the tree.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.root.Close()
}

// Set writes a blackboard value, running any aborts it triggers.
func (d *Driver) Set(key string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.root.Blackboard().Set(key, value)
}

// Unset removes a blackboard value, running any aborts it triggers.
func (d *Driver) Unset(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.root.Blackboard().Unset(key)
}

// Tick advances the tree by one tick and reports whether it is still
// running.
func (d *Driver) Tick() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.root.IsActive() {
		return false
	}
	d.root.Tick()
	d.ticks++
	return d.root.IsActive()
}

// Ticks returns the number of ticks delivered through the driver.
func (d *Driver) Ticks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ticks
}

// Node adapts the driver to go-behaviortree. Each tick of the node ticks the
// tree; it reports Running while the tree runs, then Success or Failure
// according to the tree's result.
func (d *Driver) Node() bt.Node {
	return bt.New(func([]bt.Node) (bt.Status, error) {
		if d.Tick() {
			return bt.Running, nil
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.root.CurrentState() == tree.StateSucceeded {
			return bt.Success, nil
		}
		return bt.Failure, nil
	})
}

// RunOption configures Run and RunAll.
type RunOption func(*runConfig)

type runConfig struct {
	maxTicks int
}

// WithMaxTicks stops the loop after n ticks. Zero means no limit.
func WithMaxTicks(n int) RunOption {
	return func(c *runConfig) { c.maxTicks = n }
}

// loop is the node a ticker drives: a tick budget followed by the tree,
// wrapped so the ticker stops as soon as either is no longer running.
func (d *Driver) loop(cfg runConfig) bt.Node {
	node := d.Node()
	if cfg.maxTicks > 0 {
		var spent int
		budget := bt.New(func([]bt.Node) (bt.Status, error) {
			if spent >= cfg.maxTicks {
				return bt.Failure, nil
			}
			spent++
			return bt.Success, nil
		})
		node = bt.New(bt.Sequence, budget, node)
	}
	return bt.New(func(children []bt.Node) (bt.Status, error) {
		status, err := children[0].Tick()
		if err != nil || status == bt.Running {
			return status, err
		}
		return bt.Failure, nil
	}, node)
}

// Run starts the tree if needed and ticks it every interval until it stops,
// the tick budget is spent or ctx is done.
func (d *Driver) Run(ctx context.Context, interval time.Duration, opts ...RunOption) error {
	return RunAll(ctx, interval, []*Driver{d}, opts...)
}

// RunAll runs several drivers concurrently under one go-behaviortree Manager,
// each on its own ticker. It returns once every ticker has stopped.
func RunAll(ctx context.Context, interval time.Duration, drivers []*Driver, opts ...RunOption) error {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	manager := bt.NewManager()
	tickers := make([]bt.Ticker, 0, len(drivers))
	for _, d := range drivers {
		if err := d.Start(); err != nil {
			manager.Stop()
			return err
		}
		ticker := bt.NewTickerStopOnFailure(ctx, interval, d.loop(cfg))
		if err := manager.Add(ticker); err != nil {
			ticker.Stop()
			manager.Stop()
			return err
		}
		tickers = append(tickers, ticker)
	}
	for i, ticker := range tickers {
		<-ticker.Done()
		drivers[i].logger.Debug("[BT] host loop stopped", "ticks", drivers[i].Ticks(), "error", ticker.Err())
	}
	manager.Stop()
	<-manager.Done()
	if err := manager.Err(); err != nil {
		return err
	}
	return ctx.Err()
}
