package confdb

import (
	"github.com/online-daq/goconf/change"
	"github.com/online-daq/goconf/dispatch"
	"github.com/online-daq/goconf/metrics"
)

// Subscribe registers cb for changes matching criteria and returns a
// handle for Unsubscribe. An empty criteria subscribes to everything.
func (c *Configuration) Subscribe(criteria dispatch.Criteria, userPtr any, cb dispatch.Callback) (uint64, error) {
	id := c.subs.Subscribe(criteria, userPtr, cb)
	metrics.SubscriberCount.Set(float64(c.subs.Count()))
	if err := c.resetBackendSubscription(); err != nil {
		c.subs.Unsubscribe(id)
		return 0, err
	}
	return id, nil
}

func (c *Configuration) Unsubscribe(id uint64) error {
	c.subs.Unsubscribe(id)
	metrics.SubscriberCount.Set(float64(c.subs.Count()))
	return c.resetBackendSubscription()
}

// SubscribePreChange registers cb to run immediately before every change
// batch is delivered. Pre-change callbacks must not call Subscribe or
// Unsubscribe.
func (c *Configuration) SubscribePreChange(userPtr any, cb dispatch.PreChangeCallback) uint64 {
	return c.preChange.Subscribe(userPtr, cb)
}

func (c *Configuration) UnsubscribePreChange(id uint64) {
	c.preChange.Unsubscribe(id)
}

// RegisterAction installs an internal ConfigAction observer, notified
// first and unconditionally on every change batch.
func (c *Configuration) RegisterAction(a dispatch.Action) {
	c.actions.Register(a)
}

// resetBackendSubscription recomputes the union of every subscriber's
// criteria and reinstalls it as this Configuration's single backend-level
// subscription.
func (c *Configuration) resetBackendSubscription() error {
	c.implMu.Lock()
	defer c.implMu.Unlock()
	if err := c.requireLoaded(); err != nil {
		return err
	}

	bc := c.subs.ComputeBackendCriteria()
	if err := c.be.Unsubscribe(); err != nil {
		c.log.Warn("unsubscribe before resubscribe failed", "error", err)
	}
	if bc.All {
		return c.be.Subscribe(nil, nil, c.onBackendChange, c.onBackendPreChange)
	}
	return c.be.Subscribe(bc.Classes, bc.Objects, c.onBackendChange, c.onBackendPreChange)
}

// onBackendChange runs on the backend's own goroutine. It only enqueues
// the batch; the notify loop does the real work with no facade locks held
// on the backend's thread.
func (c *Configuration) onBackendChange(batch []change.Change) {
	select {
	case c.notifyCh <- batch:
	case <-c.stopCh:
	}
}

func (c *Configuration) onBackendPreChange() {
	c.preChange.Fire(func(id uint64, err any) {
		c.log.Error("pre-change callback panicked", "subscriber", id, "panic", err)
	})
}

func (c *Configuration) notifyLoop() {
	for {
		select {
		case batch := <-c.notifyCh:
			c.dispatchBatch(batch)
		case <-c.stopCh:
			return
		}
	}
}

// dispatchBatch runs the full notification pipeline: internal actions,
// cache coherence under template-then-implementation locks, then
// subscriber delivery with no facade locks held.
func (c *Configuration) dispatchBatch(batch []change.Change) {
	metrics.DispatchBatches.Inc()

	c.actions.NotifyAll(batch)

	c.templateMu.Lock()
	c.implMu.Lock()
	dispatch.ApplyCoherence(c.registry, c.oc, c.hooks, batch)
	c.implMu.Unlock()
	c.templateMu.Unlock()

	if c.subs.Count() == 0 {
		return
	}

	c.subs.Deliver(batch, func(id uint64, err any) {
		metrics.DispatchCallbackFailures.Inc()
		c.log.Error("subscriber callback panicked", "subscriber", id, "panic", err)
	})
}
