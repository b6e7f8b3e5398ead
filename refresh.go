package corpmap

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/opencorpdata/corpmap/pkg/errors"
	"github.com/opencorpdata/corpmap/pkg/logging"
)

// refreshRunTimeout bounds one periodic refresh pass.
const refreshRunTimeout = 5 * time.Minute

// Compile-time interface check to ensure proper implementation.
var _ Refresher = (*client)(nil)

// Refresher provides controls for periodic staleness refresh.
type Refresher interface {
	// RefreshOn begins the periodic refresh loop.
	RefreshOn() error

	// RefreshOff stops the periodic refresh loop.
	RefreshOff() error
}

// RefreshOn begins the periodic refresh loop.
func (c *client) RefreshOn() error {
	if c.store == nil {
		return errors.ErrStoreUnavailable
	}
	if c.options.refreshCheckInterval <= 0 {
		return &errors.ValidationError{
			Field:   "refreshCheckInterval",
			Value:   c.options.refreshCheckInterval,
			Message: "refresh check interval must be positive",
		}
	}

	// Stop any existing loop to prevent resource leaks.
	if err := c.RefreshOff(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopCh = make(chan struct{})
	c.refreshTicker = time.NewTicker(c.options.refreshCheckInterval)

	ctx, cancel := context.WithCancel(context.Background())
	c.refreshCancel = cancel

	ticker := c.refreshTicker
	stop := c.stopCh
	go func(parentCtx context.Context) {
		for {
			select {
			case <-ticker.C:
				runCtx, runCancel := context.WithTimeout(parentCtx, refreshRunTimeout)
				_, err := c.RefreshStale(runCtx)
				runCancel()

				if err != nil {
					if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
						return
					}
					logging.Error().Err(err).Msg("Periodic refresh failed")
				}
			case <-parentCtx.Done():
				return
			case <-stop:
				return
			}
		}
	}(ctx)

	return nil
}

// RefreshOff stops the periodic refresh loop.
func (c *client) RefreshOff() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refreshTicker != nil {
		c.refreshTicker.Stop()
		c.refreshTicker = nil
	}
	if c.refreshCancel != nil {
		c.refreshCancel()
		c.refreshCancel = nil
	}
	select {
	case <-c.stopCh:
		// Already closed
	default:
		close(c.stopCh)
	}
	return nil
}
