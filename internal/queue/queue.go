// Package queue serializes crawl-and-analyze jobs behind a single-slot
// FIFO, broadcasting lifecycle events to every attached listener.
package queue

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Payload is the input a job's execution function needs.
type Payload struct {
	StorageKey  string
	Credentials Credentials
	Days        int
}

// Credentials are the source-site login the crawl step uses.
type Credentials struct {
	Username string
	Password string
}

// Event is one SSE-shaped message emitted to a job's listeners.
// Exactly one of the payload fields is meaningful, selected by Kind.
type Event struct {
	Kind     string // "queue", "progress", "done", "error"
	Queue    *QueueEvent
	Progress *ProgressEvent
	Done     *DoneEvent
	Error    *ErrorEvent
}

type QueueEvent struct {
	AheadCount int `json:"aheadCount"`
}

type ProgressEvent struct {
	Phase            string `json:"phase"`
	MatchesTotal     int    `json:"matchesTotal"`
	ProcessedMatches int    `json:"processedMatches"`
	QuizzesAdded     int    `json:"quizzesAdded"`
	LastPositionID   string `json:"lastPositionId,omitempty"`
}

type DoneEvent struct {
	Added        int `json:"added"`
	Total        int `json:"total"`
	MatchesTotal int `json:"matchesTotal"`
}

type ErrorEvent struct {
	Error string `json:"error"`
}

// Job is one crawl-and-analyze request in the queue.
type Job struct {
	ID      string
	Payload Payload

	mu        sync.Mutex
	status    Status
	listeners map[chan Event]struct{}
	lastEvent []Event // replayed synchronously to a newly attached listener
}

func newJob(payload Payload) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Payload:   payload,
		status:    StatusQueued,
		listeners: make(map[chan Event]struct{}),
	}
}

func (j *Job) setStatus(s Status) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

func (j *Job) emit(ev Event) {
	j.mu.Lock()
	j.lastEvent = append(j.lastEvent, ev)
	listeners := make([]chan Event, 0, len(j.listeners))
	for ch := range j.listeners {
		listeners = append(listeners, ch)
	}
	j.mu.Unlock()

	for _, ch := range listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Attach registers a listener channel and synchronously replays every
// event emitted so far, so a listener joining mid-job still sees the
// current queue position and progress. The caller must call Detach when
// done reading.
func (j *Job) Attach() chan Event {
	ch := make(chan Event, 32)
	j.mu.Lock()
	j.listeners[ch] = struct{}{}
	backlog := append([]Event(nil), j.lastEvent...)
	j.mu.Unlock()

	for _, ev := range backlog {
		select {
		case ch <- ev:
		default:
		}
	}
	return ch
}

// Detach removes and closes a listener channel.
func (j *Job) Detach(ch chan Event) {
	j.mu.Lock()
	delete(j.listeners, ch)
	j.mu.Unlock()
	close(ch)
}

// Status returns the job's current lifecycle state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Runner executes a job's payload, reporting progress through onProgress.
type Runner func(payload Payload, onProgress func(ProgressEvent)) (DoneEvent, error)

// Queue is the single-slot FIFO crawl job scheduler: at most one job runs
// at a time, globally, and later submissions wait their turn.
type Queue struct {
	run Runner
	log *slog.Logger

	mu      sync.Mutex
	pending []*Job
	running *Job
	jobs    map[string]*Job
}

// New returns a Queue that executes accepted jobs with run.
func New(run Runner, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{run: run, log: log, jobs: make(map[string]*Job)}
}

// Enqueue appends a new job to the queue and returns it along with its
// ahead-count at the moment of submission. If no job is currently
// running, the new job starts immediately in its own goroutine.
func (q *Queue) Enqueue(payload Payload) (*Job, int) {
	job := newJob(payload)

	q.mu.Lock()
	q.jobs[job.ID] = job
	q.pending = append(q.pending, job)
	q.mu.Unlock()

	q.broadcastAhead()
	q.maybeStart()

	return job, q.aheadCountFor(job)
}

// Get returns a previously submitted job by id, or nil if unknown.
func (q *Queue) Get(id string) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.jobs[id]
}

// aheadCountFor reports how many jobs (plus the running one, if any) sit
// ahead of job in the queue.
func (q *Queue) aheadCountFor(job *Job) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running == job {
		return 0
	}
	ahead := 0
	if q.running != nil {
		ahead++
	}
	for _, p := range q.pending {
		if p == job {
			break
		}
		ahead++
	}
	return ahead
}

// broadcastAhead emits a "queue" event with the current ahead-count to
// every pending job's listeners.
func (q *Queue) broadcastAhead() {
	q.mu.Lock()
	pending := append([]*Job(nil), q.pending...)
	q.mu.Unlock()

	for _, job := range pending {
		ahead := q.aheadCountFor(job)
		job.emit(Event{Kind: "queue", Queue: &QueueEvent{AheadCount: ahead}})
	}
}

// maybeStart begins the next pending job if the queue is idle.
func (q *Queue) maybeStart() {
	q.mu.Lock()
	if q.running != nil || len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	q.running = job
	q.mu.Unlock()

	job.setStatus(StatusRunning)
	job.emit(Event{Kind: "queue", Queue: &QueueEvent{AheadCount: 0}})
	q.broadcastAhead()

	go q.execute(job)
}

func (q *Queue) execute(job *Job) {
	onProgress := func(ev ProgressEvent) {
		job.emit(Event{Kind: "progress", Progress: &ev})
	}

	done, err := q.run(job.Payload, onProgress)
	if err != nil {
		job.setStatus(StatusError)
		job.emit(Event{Kind: "error", Error: &ErrorEvent{Error: err.Error()}})
		q.log.Error("crawl job failed", "jobId", job.ID, "err", err)
	} else {
		job.setStatus(StatusDone)
		job.emit(Event{Kind: "done", Done: &done})
		q.log.Info("crawl job finished", "jobId", job.ID, "added", done.Added, "total", done.Total)
	}

	q.mu.Lock()
	q.running = nil
	q.mu.Unlock()

	q.maybeStart()
}
