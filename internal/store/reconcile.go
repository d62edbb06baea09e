package store

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/countershard/countershard/internal/apierr"
)

// reconcileInterval is how often a secondary polls its primary for drift.
const reconcileInterval = 10 * time.Second

// reconcileLoop runs for the lifetime of the store whenever PrimaryURL is
// configured. Every tick it pulls the primary's value for each locally
// known key and adopts it if strictly greater, since these are monotone
// counters and values never legitimately decrease. Any other response or a
// transport error is logged and the key is skipped; a primary value that
// does not parse as an integer is skipped without a log line. This is a
// safety net against replication drift, not correctness-critical.
func (s *Store) reconcileLoop() {
	defer s.reconWG.Done()

	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	client := &http.Client{Timeout: replicateDeadline}

	for {
		select {
		case <-s.stopRecon:
			return
		case <-ticker.C:
			s.reconcileOnce(client)
		}
	}
}

func (s *Store) reconcileOnce(client *http.Client) {
	for _, key := range s.snapshotKeys() {
		primaryValue, ok := s.fetchPrimaryValue(client, key)
		if !ok {
			continue
		}

		localValue, _ := s.localValue(key)
		localInt, _ := strconv.ParseInt(localValue, 10, 64)
		primaryInt, err := strconv.ParseInt(primaryValue, 10, 64)
		if err != nil {
			continue
		}
		if primaryInt <= localInt {
			continue
		}

		if err := s.applyLocal(key, primaryValue); err != nil {
			apierr.Wrap(apierr.Durability, "reconcile: apply primary value", err).
				WithKey(key).WithRemote(s.primaryURL).Log(s.logger)
		}
	}
}

func (s *Store) fetchPrimaryValue(client *http.Client, key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), replicateDeadline)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.primaryURL+"/store/"+key, nil)
	if err != nil {
		return "", false
	}
	resp, err := client.Do(req)
	if err != nil {
		apierr.Wrap(apierr.Transport, "reconcile: fetch primary value", err).
			WithKey(key).WithRemote(s.primaryURL).Log(s.logger)
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		apierr.New(apierr.Upstream, "reconcile: primary responded "+strconv.Itoa(resp.StatusCode)).
			WithKey(key).WithRemote(s.primaryURL).Log(s.logger)
		return "", false
	}

	var payload struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		apierr.Wrap(apierr.Transport, "reconcile: decode primary response", err).
			WithKey(key).WithRemote(s.primaryURL).Log(s.logger)
		return "", false
	}
	return payload.Value, true
}
