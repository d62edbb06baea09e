package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/countershard/countershard/internal/apierr"
)

// replicateDeadline bounds every outbound replication/reconciliation
// request, per the fixed 1-second deadline the design requires.
const replicateDeadline = time.Second

// sendQueueDepth bounds how many pending mutations a single secondary's
// sender can fall behind by before the oldest pending send is dropped.
// Replication is fire-and-forget and must never apply back-pressure to a
// mutation's critical section, so this channel is drained by dropping, not
// by blocking the enqueuer.
const sendQueueDepth = 256

// replicationEvent is one mutation to fan out to secondaries.
type replicationEvent struct {
	key   string
	value string
	at    time.Time
}

// replicator owns one bounded FIFO channel and one dedicated sender
// goroutine per secondary, so that per-secondary ordering is preserved
// even though fan-out across secondaries is concurrent. This replaces a
// goroutine-per-event pattern, which can reorder requests against a single
// secondary under load. Events reach a secondary in the order they were
// enqueued; Store enqueues after releasing its lock, so two concurrent
// mutations can be enqueued in the opposite order to their log records.
type replicator struct {
	client *http.Client
	logger zerolog.Logger

	group   errgroup.Group
	senders []*secondarySender
}

type secondarySender struct {
	addr string
	ch   chan replicationEvent
}

func newReplicator(secondaries []string, logger zerolog.Logger) *replicator {
	r := &replicator{
		client: &http.Client{Timeout: replicateDeadline},
		logger: logger,
	}
	for _, addr := range secondaries {
		s := &secondarySender{addr: addr, ch: make(chan replicationEvent, sendQueueDepth)}
		r.senders = append(r.senders, s)
		r.group.Go(func() error {
			r.run(s)
			return nil
		})
	}
	return r
}

// enqueue schedules ev for delivery to every secondary. Non-blocking: if a
// secondary's channel is full, the oldest pending send for that secondary
// is dropped (with a warning log) to make room, since a fire-and-forget
// replication stream must never stall the primary's mutation path.
func (r *replicator) enqueue(ev replicationEvent) {
	for _, s := range r.senders {
		select {
		case s.ch <- ev:
		default:
			select {
			case dropped := <-s.ch:
				apierr.New(apierr.Transport, "replication queue full, dropping oldest pending send").
					WithKey(dropped.key).WithRemote(s.addr).Log(r.logger)
			default:
			}
			select {
			case s.ch <- ev:
			default:
				apierr.New(apierr.Transport, "replication queue full, dropping newest send").
					WithKey(ev.key).WithRemote(s.addr).Log(r.logger)
			}
		}
	}
}

func (r *replicator) run(s *secondarySender) {
	for ev := range s.ch {
		if err := r.send(s.addr, ev); err != nil {
			apierr.Wrap(apierr.Transport, "replicate to secondary", err).
				WithKey(ev.key).WithRemote(s.addr).Log(r.logger)
		}
	}
}

func (r *replicator) send(addr string, ev replicationEvent) error {
	body, err := json.Marshal(map[string]string{"value": ev.value})
	if err != nil {
		return fmt.Errorf("marshal replication body: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), replicateDeadline)
	defer cancel()

	url := addr + "/store/" + ev.key
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build replication request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("send replication request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("secondary %s responded %d", addr, resp.StatusCode)
	}
	return nil
}

// close stops accepting new sends and waits for in-flight ones to drain.
func (r *replicator) close() {
	for _, s := range r.senders {
		close(s.ch)
	}
	_ = r.group.Wait()
}
