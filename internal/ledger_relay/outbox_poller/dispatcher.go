package outbox_poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"github.com/garage-erp/check-lifecycle/internal/domain/outbox"
)

// HandleFunc processes one outbox message. A non-nil error stops the rest of
// that check's messages in the batch.
type HandleFunc func(ctx context.Context, message *outbox.Message) error

// Dispatcher runs a batch on a bounded worker pool. Messages of one check run
// sequentially in outbox order; different checks run in parallel.
type Dispatcher struct {
	pool   *ants.Pool
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher backed by a pool of size workers
func NewDispatcher(size int, logger *slog.Logger) (*Dispatcher, error) {
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	return &Dispatcher{pool: pool, logger: logger}, nil
}

// Dispatch runs handle over messages and blocks until the batch is done.
// It returns how many messages were handled successfully and how many were
// left for the next poll.
func (d *Dispatcher) Dispatch(ctx context.Context, messages []*outbox.Message, handle HandleFunc) (succeeded, deferred int, err error) {
	groups := groupByCheck(messages)

	var (
		wg         sync.WaitGroup
		okCount    atomic.Int64
		leftCount  atomic.Int64
		submitErrs []error
	)

	for _, group := range groups {
		group := group
		wg.Add(1)
		submitErr := d.pool.Submit(func() {
			defer wg.Done()
			for i, msg := range group {
				if ctx.Err() != nil {
					leftCount.Add(int64(len(group) - i))
					return
				}
				if err := handle(ctx, msg); err != nil {
					leftCount.Add(int64(len(group) - i))
					if skipped := len(group) - i - 1; skipped > 0 {
						d.logger.Debug("Holding back later intents of check",
							"check_token", msg.CheckToken, "held_back", skipped)
					}
					return
				}
				okCount.Add(1)
			}
		})
		if submitErr != nil {
			wg.Done()
			leftCount.Add(int64(len(group)))
			submitErrs = append(submitErrs, submitErr)
		}
	}

	wg.Wait()

	if len(submitErrs) > 0 {
		err = fmt.Errorf("failed to submit %d check groups to worker pool: %w", len(submitErrs), submitErrs[0])
	}
	return int(okCount.Load()), int(leftCount.Load()), err
}

// Running returns the number of running workers in the pool.
func (d *Dispatcher) Running() int {
	return d.pool.Running()
}

// Capacity returns the capacity of the worker pool.
func (d *Dispatcher) Capacity() int {
	return d.pool.Cap()
}

// Shutdown releases the pool's workers.
func (d *Dispatcher) Shutdown() {
	d.logger.Info("Shutting down worker pool", "running_workers", d.pool.Running())
	d.pool.Release()
}

// groupByCheck splits messages per check token, keeping the order in which
// each check first appears and the outbox order inside every group.
func groupByCheck(messages []*outbox.Message) [][]*outbox.Message {
	index := make(map[string]int)
	var groups [][]*outbox.Message
	for _, msg := range messages {
		i, ok := index[msg.CheckToken]
		if !ok {
			i = len(groups)
			index[msg.CheckToken] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], msg)
	}
	return groups
}
