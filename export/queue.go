package export

import (
	"log"
	"sync"
	"time"
)

// Retry tells the queue to re-run a job after an exponential-backoff delay.
type Retry struct {
	Attempt int
	Base    time.Duration
}

// Delay is base·(attempt+1): 60s, 120s, 180s with the default base.
func (r Retry) Delay() time.Duration {
	return r.Base * time.Duration(r.Attempt+1)
}

type jobKind int

const (
	kindExport jobKind = iota
	kindRegenerate
)

func (k jobKind) String() string {
	if k == kindRegenerate {
		return "regenerate_or_cleanup"
	}
	return "export_overtime"
}

type job struct {
	kind    jobKind
	date    time.Time
	attempt int
}

// flight is the per-date single-flight state: one run in progress, at most
// one coalesced follow-up.
type flight struct {
	running     bool
	pending     bool
	pendingKind jobKind
}

// Queue feeds date-keyed jobs through a worker pool. Jobs for the same date
// serialize: while one runs, later arrivals collapse into a single follow-up
// run, so a burst of N enqueues costs at most two runs.
type Queue struct {
	run         func(j job) error
	retryable   func(error) bool
	onExhausted func(j job, err error)
	maxAttempts int
	retryBase   time.Duration

	mu      sync.Mutex
	flights map[string]*flight
	tasks   chan job
	stop    chan struct{}
	wg      sync.WaitGroup
}

func newQueue(workers, maxAttempts int, retryBase time.Duration) *Queue {
	q := &Queue{
		maxAttempts: maxAttempts,
		retryBase:   retryBase,
		flights:     make(map[string]*flight),
		tasks:       make(chan job, 256),
		stop:        make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Stop drains the workers. Pending retry timers are abandoned.
func (q *Queue) Stop() {
	close(q.stop)
	q.wg.Wait()
}

func (q *Queue) enqueue(kind jobKind, date time.Time) {
	key := date.Format("2006-01-02")

	q.mu.Lock()
	f, ok := q.flights[key]
	if !ok {
		f = &flight{}
		q.flights[key] = f
	}
	if f.running {
		// Coalesce. Regenerate subsumes export, so it wins when kinds mix.
		if kind == kindRegenerate {
			f.pendingKind = kindRegenerate
		} else if !f.pending {
			f.pendingKind = kindExport
		}
		f.pending = true
		q.mu.Unlock()
		return
	}
	f.running = true
	q.mu.Unlock()

	q.dispatch(job{kind: kind, date: date})
}

func (q *Queue) dispatch(j job) {
	select {
	case q.tasks <- j:
	case <-q.stop:
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.stop:
			return
		case j := <-q.tasks:
			q.runOne(j)
		}
	}
}

func (q *Queue) runOne(j job) {
	err := q.run(j)
	if err == nil {
		q.finish(j)
		return
	}

	if q.retryable(err) && j.attempt+1 < q.maxAttempts {
		retry := Retry{Attempt: j.attempt, Base: q.retryBase}
		log.Printf("[export] %s %s attempt %d failed, retrying in %s: %v",
			j.kind, j.date.Format("2006-01-02"), j.attempt+1, retry.Delay(), err)
		time.AfterFunc(retry.Delay(), func() {
			select {
			case <-q.stop:
			default:
				q.dispatch(job{kind: j.kind, date: j.date, attempt: j.attempt + 1})
			}
		})
		return
	}

	log.Printf("[export] %s %s failed permanently: %v", j.kind, j.date.Format("2006-01-02"), err)
	if q.onExhausted != nil {
		q.onExhausted(j, err)
	}
	q.finish(j)
}

// finish closes the flight and launches the coalesced follow-up, if any.
func (q *Queue) finish(j job) {
	key := j.date.Format("2006-01-02")

	q.mu.Lock()
	f := q.flights[key]
	if f == nil {
		q.mu.Unlock()
		return
	}
	if f.pending {
		kind := f.pendingKind
		f.pending = false
		q.mu.Unlock()
		q.dispatch(job{kind: kind, date: j.date})
		return
	}
	delete(q.flights, key)
	q.mu.Unlock()
}
