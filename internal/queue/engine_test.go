package queue

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/countershard/countershard/internal/logging"
	"github.com/countershard/countershard/internal/ring"
)

func testConfig(t *testing.T, nodeURL string) Config {
	t.Helper()
	logging.Init(logging.Config{Level: logging.ErrorLevel})
	r := ring.Build([]string{nodeURL}, 10)
	return Config{
		MaxQueueSize:       100,
		SpilloverQueueSize: 100,
		MaxKeyRate:         50,
		StaleThreshold:     5 * time.Second,
		MaxStaleRetries:    3,
		WorkerCount:        0,
		Ring:               r,
		Logger:             logging.WithComponent("queue-test"),
	}
}

func TestEnqueueBasicAccept(t *testing.T) {
	cfg := testConfig(t, "http://unused")
	e := New(cfg)
	defer e.Close()

	status, err := e.Enqueue("k")
	require.NoError(t, err)
	assert.Equal(t, "enqueued", status)

	main, excess, stale := e.Lengths()
	assert.Equal(t, 1, main)
	assert.Equal(t, 0, excess)
	assert.Equal(t, 0, stale)
}

func TestQueueBoundsEnforced(t *testing.T) {
	cfg := testConfig(t, "http://unused")
	cfg.MaxQueueSize = 2
	cfg.WorkerCount = 0
	e := New(cfg)
	defer e.Close()

	for i := 0; i < 2; i++ {
		status, err := e.Enqueue("k")
		require.NoError(t, err)
		assert.Equal(t, "enqueued", status)
	}

	_, err := e.Enqueue("k")
	require.Error(t, err)

	main, _, _ := e.Lengths()
	assert.Equal(t, 2, main)
}

func TestRateLimitSidelinesExcess(t *testing.T) {
	cfg := testConfig(t, "http://unused")
	cfg.MaxKeyRate = 3
	cfg.MaxQueueSize = 1000
	cfg.SpilloverQueueSize = 1000
	cfg.WorkerCount = 0
	e := New(cfg)
	defer e.Close()

	var enqueued, sidelined int
	for i := 0; i < 10; i++ {
		status, err := e.Enqueue("hot-key")
		require.NoError(t, err)
		if status == "sidelined:rate" {
			sidelined++
		} else {
			enqueued++
		}
	}

	assert.Equal(t, 3, enqueued)
	assert.Equal(t, 7, sidelined)

	main, excess, _ := e.Lengths()
	assert.Equal(t, 3, main)
	assert.Equal(t, 7, excess)
}

func TestRejectedRequestsDoNotCountTowardWindow(t *testing.T) {
	cfg := testConfig(t, "http://unused")
	cfg.MaxKeyRate = 2
	cfg.MaxQueueSize = 2
	cfg.SpilloverQueueSize = 0
	cfg.WorkerCount = 0
	e := New(cfg)
	defer e.Close()

	_, err := e.Enqueue("k")
	require.NoError(t, err)
	_, err = e.Enqueue("k")
	require.NoError(t, err)

	// Third request puts the key's window at 3, over MaxKeyRate=2, so it
	// takes the EXCESS path; EXCESS has zero capacity, so it is rejected as
	// Overloaded, and must not be counted toward the rate window.
	_, err = e.Enqueue("k")
	require.Error(t, err)

	main, excess, _ := e.Lengths()
	assert.Equal(t, 2, main)
	assert.Equal(t, 0, excess)
}

func TestStaleJobsSidelinedInsteadOfAppliedDirectly(t *testing.T) {
	var applied int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&applied, 1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.StaleThreshold = 10 * time.Millisecond
	cfg.WorkerCount = 1
	e := New(cfg)
	defer e.Close()

	e.mu.Lock()
	e.main = append(e.main, &Job{Action: "increment", Key: "k", Timestamp: time.Now().Add(-time.Second)})
	e.mu.Unlock()

	require.Eventually(t, func() bool {
		_, _, stale := e.Lengths()
		return stale == 1
	}, time.Second, 5*time.Millisecond)

	assert.EqualValues(t, 0, atomic.LoadInt32(&applied))
}

func TestStaleWorkerDropsAfterRetryBudget(t *testing.T) {
	var applied int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&applied, 1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.MaxStaleRetries = 1
	cfg.WorkerCount = 0
	e := New(cfg)
	defer e.Close()

	e.mu.Lock()
	e.stale = append(e.stale, &Job{Action: "increment", Key: "k", Timestamp: time.Now()})
	e.mu.Unlock()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&applied) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// second retry attempt would exceed MaxStaleRetries=1, so it must be
	// dropped without a second apply.
	e.mu.Lock()
	e.stale = append(e.stale, &Job{Action: "increment", Key: "k", Retries: 1, Timestamp: time.Now()})
	e.mu.Unlock()

	time.Sleep(300 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&applied))
}

func TestExcessWorkerMovesJobsToMainWhenRoomAvailable(t *testing.T) {
	cfg := testConfig(t, "http://unused")
	cfg.MaxQueueSize = 5
	cfg.WorkerCount = 0
	e := New(cfg)
	defer e.Close()

	e.mu.Lock()
	e.excess = append(e.excess, &Job{Action: "increment", Key: "k", Timestamp: time.Now()})
	e.mu.Unlock()

	require.Eventually(t, func() bool {
		main, excess, _ := e.Lengths()
		return main == 1 && excess == 0
	}, time.Second, 5*time.Millisecond)
}

func TestConcurrentEnqueueRespectsBounds(t *testing.T) {
	cfg := testConfig(t, "http://unused")
	cfg.MaxQueueSize = 50
	cfg.MaxKeyRate = 1_000_000
	cfg.WorkerCount = 0
	e := New(cfg)
	defer e.Close()

	var wg sync.WaitGroup
	var accepted, rejected int32
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Enqueue("k")
			if err != nil {
				atomic.AddInt32(&rejected, 1)
			} else {
				atomic.AddInt32(&accepted, 1)
			}
		}()
	}
	wg.Wait()

	main, _, _ := e.Lengths()
	assert.LessOrEqual(t, main, 50)
	assert.EqualValues(t, 50, accepted)
	assert.EqualValues(t, 150, rejected)
}
