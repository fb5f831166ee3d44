package chain

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/crosschain/relayd/ibc"
)

// runMonitor polls the driver for new blocks and publishes one event
// batch per height on the runtime's feed. Every batch leads with the
// NewBlock marker. Poll failures back off exponentially and reset on the
// first success; the monitor only stops when the runtime does.
func (rt *Runtime) runMonitor(pollInterval time.Duration) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = pollInterval
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var next ibc.Height

	for {
		select {
		case <-rt.quit:
			return
		case <-ticker.C:
		}

		latest, err := rt.latestHeight()
		if err != nil {
			if err == ErrRuntimeStopped {
				return
			}
			rt.lg.Warn("event monitor: height query failed", "err", err)
			if !rt.sleep(bo.NextBackOff()) {
				return
			}
			continue
		}

		if next.IsZero() {
			next = latest
		}

		for ; next.Compare(latest) <= 0; next = next.Increment() {
			events, err := rt.blockEvents(next)
			if err != nil {
				if err == ErrRuntimeStopped {
					return
				}
				rt.lg.Warn("event monitor: block query failed", "height", next, "err", err)
				if !rt.sleep(bo.NextBackOff()) {
					return
				}
				break
			}
			bo.Reset()

			batch := ibc.EventBatch{
				ChainID: rt.id,
				Height:  next,
				Events:  append([]ibc.Event{ibc.NewBlock{Height: next}}, events...),
			}
			rt.feed.Send(batch)
		}
	}
}

func (rt *Runtime) latestHeight() (ibc.Height, error) {
	v, err := rt.call(func(d Driver) (interface{}, error) { return d.LatestHeight() })
	if err != nil {
		return ibc.Height{}, err
	}
	return v.(ibc.Height), nil
}

func (rt *Runtime) blockEvents(height ibc.Height) ([]ibc.Event, error) {
	v, err := rt.call(func(d Driver) (interface{}, error) { return d.BlockEvents(height) })
	if err != nil {
		return nil, err
	}
	return v.([]ibc.Event), nil
}

// sleep waits d or until shutdown, reporting whether the runtime is
// still live.
func (rt *Runtime) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-rt.quit:
		return false
	case <-timer.C:
		return true
	}
}
