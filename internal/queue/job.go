package queue

import "time"

// Job is one queued increment request. It moves between the main, excess,
// and stale queues until it is applied or its retry budget runs out.
type Job struct {
	Action    string
	Key       string
	Timestamp time.Time
	Retries   int
}
