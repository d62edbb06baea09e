// Package queue implements the queue service (QS): admission control,
// back-pressure, and best-effort ordered dispatch of increment jobs to
// store nodes, routed through a consistent-hash ring.
package queue

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/countershard/countershard/internal/apierr"
	"github.com/countershard/countershard/internal/ratelimit"
	"github.com/countershard/countershard/internal/ring"
)

const (
	rateWindowPeriod   = 10 * time.Second
	mainPollInterval   = 50 * time.Millisecond
	excessTickInterval = 50 * time.Millisecond
	stalePollInterval  = 100 * time.Millisecond
	staleBackoff       = 200 * time.Millisecond
	dispatchDeadline   = time.Second
)

// Config configures a new Engine. Fields mirror the environment variables
// documented for the queue service.
type Config struct {
	MaxQueueSize       int
	SpilloverQueueSize int
	MaxKeyRate         int
	StaleThreshold     time.Duration
	MaxStaleRetries    int
	WorkerCount        int
	Ring               *ring.Ring
	Logger             zerolog.Logger
}

// Engine is the queue service's admission control, bounded queues, and
// worker pool. mu (QLOCK in the design vocabulary) guards main, excess,
// stale, and the rate window as one atomic group; network dispatch always
// happens outside mu.
type Engine struct {
	mu     sync.Mutex
	main   []*Job
	excess []*Job
	stale  []*Job

	rateWindow *ratelimit.Window

	cfg    Config
	ring   *ring.Ring
	client *http.Client
	logger zerolog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds an Engine and starts its worker pool (WorkerCount main
// workers, one excess worker, one stale worker). Call Close to stop them.
func New(cfg Config) *Engine {
	if cfg.WorkerCount < 0 {
		cfg.WorkerCount = 0
	}
	e := &Engine{
		rateWindow: ratelimit.NewWindow(rateWindowPeriod, cfg.MaxKeyRate),
		cfg:        cfg,
		ring:       cfg.Ring,
		client:     &http.Client{Timeout: dispatchDeadline},
		logger:     cfg.Logger,
		stop:       make(chan struct{}),
	}

	for i := 0; i < cfg.WorkerCount; i++ {
		e.wg.Add(1)
		go e.mainWorker()
	}
	e.wg.Add(1)
	go e.excessWorker()
	e.wg.Add(1)
	go e.staleWorker()

	return e
}

// Enqueue runs admission control for one increment job against key and
// returns the status string to report to the caller, or an *apierr.Error
// (always Overloaded) if the job was rejected outright.
//
// The per-key rate window only admits a timestamp for jobs that are
// accepted into EXCESS or MAIN; a rejected 429 never counts toward it,
// which falls out here from checking capacity before the window lookup
// result is allowed to place the job.
func (e *Engine) Enqueue(key string) (string, error) {
	job := &Job{Action: "increment", Key: key, Timestamp: time.Now()}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.rateWindow.Allow(key) {
		if len(e.excess) >= e.cfg.SpilloverQueueSize {
			return "", apierr.New(apierr.Overloaded, "excess queue is full").WithKey(key)
		}
		e.excess = append(e.excess, job)
		return "sidelined:rate", nil
	}

	if len(e.main) >= e.cfg.MaxQueueSize {
		return "", apierr.New(apierr.Overloaded, "queue is full").WithKey(key)
	}
	e.main = append(e.main, job)
	return "enqueued", nil
}

// Lengths reports the current size of each queue, for tests and metrics.
func (e *Engine) Lengths() (main, excess, stale int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.main), len(e.excess), len(e.stale)
}

func (e *Engine) popMain() *Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.main) == 0 {
		return nil
	}
	job := e.main[0]
	e.main = e.main[1:]
	return job
}

func (e *Engine) sidelineStale(job *Job) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.stale) >= e.cfg.SpilloverQueueSize {
		e.logger.Warn().Str("key", job.Key).Msg("stale queue full, dropping job")
		return
	}
	e.stale = append(e.stale, job)
}

func (e *Engine) popStale() *Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.stale) == 0 {
		return nil
	}
	job := e.stale[0]
	e.stale = e.stale[1:]
	return job
}

func (e *Engine) moveExcessToMain() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.main) < e.cfg.MaxQueueSize && len(e.excess) > 0 {
		job := e.excess[0]
		e.excess = e.excess[1:]
		e.main = append(e.main, job)
	}
}

// mainWorker repeatedly pops MAIN, sidelines aged jobs to STALE, and
// otherwise applies the job directly.
func (e *Engine) mainWorker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			return
		default:
		}

		job := e.popMain()
		if job == nil {
			sleepOrStop(e.stop, mainPollInterval)
			continue
		}

		age := time.Since(job.Timestamp)
		if age > e.cfg.StaleThreshold {
			e.sidelineStale(job)
			continue
		}
		e.apply(job)
	}
}

// excessWorker moves one job from EXCESS to MAIN whenever MAIN has room.
// Excess jobs keep their original timestamp, so sustained rate violation
// surfaces as staleness instead of unbounded queueing.
func (e *Engine) excessWorker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			return
		default:
		}
		e.moveExcessToMain()
		sleepOrStop(e.stop, excessTickInterval)
	}
}

// staleWorker retries aged jobs with backoff, up to MaxStaleRetries times,
// before dropping them with a warning log (the advertised trade-off for
// staleness).
func (e *Engine) staleWorker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			return
		default:
		}

		job := e.popStale()
		if job == nil {
			sleepOrStop(e.stop, stalePollInterval)
			continue
		}

		job.Retries++
		if job.Retries > e.cfg.MaxStaleRetries {
			e.logger.Warn().Str("key", job.Key).Int("retries", job.Retries).Msg("dropping job after exhausting retries")
			continue
		}
		if !sleepOrStop(e.stop, staleBackoff) {
			return
		}
		e.apply(job)
	}
}

// apply dispatches job to the store node responsible for its key. Errors
// are logged; the main worker never requeues from here, trading loss under
// upstream failure for simplicity, since reconciliation bounds divergence.
func (e *Engine) apply(job *Job) {
	node, ok := e.ring.Lookup(job.Key)
	if !ok {
		apierr.New(apierr.Upstream, "no store node available for key").WithKey(job.Key).Log(e.logger)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchDeadline)
	defer cancel()

	url := fmt.Sprintf("%s/store/%s/increment", node, job.Key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		apierr.Wrap(apierr.Upstream, "build increment request", err).WithKey(job.Key).WithRemote(node).Log(e.logger)
		return
	}

	resp, err := e.client.Do(req)
	if err != nil {
		apierr.Wrap(apierr.Transport, "dispatch increment", err).WithKey(job.Key).WithRemote(node).Log(e.logger)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		apierr.New(apierr.Upstream, fmt.Sprintf("store node responded %d", resp.StatusCode)).
			WithKey(job.Key).WithRemote(node).Log(e.logger)
	}
}

// sleepOrStop sleeps for d, or returns false early if stop is closed.
func sleepOrStop(stop chan struct{}, d time.Duration) bool {
	select {
	case <-stop:
		return false
	case <-time.After(d):
		return true
	}
}

// Close signals every background worker to exit and waits for them to
// drain their current iteration before returning.
func (e *Engine) Close() {
	close(e.stop)
	e.wg.Wait()
}
