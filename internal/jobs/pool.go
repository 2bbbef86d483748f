// Package jobs implements the Worker Pool & Progress Monitor (§4.D): the
// concurrency backbone shared by the Download and Flash state machines.
// Each job gets a worker goroutine doing the actual I/O and a monitor
// goroutine polling its progress, both supervised by a gopkg.in/tomb.v2
// Tomb — the same vehicle the teacher uses to give a long-running task its
// own cancellable goroutine tree (internal/overlord/fwstate/fwmgr.go,
// internals/overlord/fwstate/handler.go). Tomb.Kill/Dying implements the
// cooperative cancel_flag of §4.D and §5; Tomb.Wait is the bounded join the
// spec requires before a job is declared terminal.
package jobs

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gopkg.in/tomb.v2"

	"github.com/rdkcentral/rdkfwupdater-sub002/internal/rfwerr"
)

// Kind distinguishes the two job families that share this pool. Each kind
// has its own "at most one active globally" slot (§3).
type Kind string

const (
	KindDownload Kind = "download"
	KindFlash    Kind = "flash"
)

// WorkFunc is a job body. It must poll t.Dying() at every network chunk
// boundary and before any blocking syscall (§5), and report progress via
// setProgress as it goes. Returning a non-nil error marks the job Error;
// returning nil marks it Completed.
type WorkFunc func(t *tomb.Tomb, setProgress func(pct int)) error

// ProgressFunc is invoked by the monitor goroutine, rate-limited to once
// per second and additionally whenever pct crosses a reporting boundary
// (0, 25, 50, 75, 100), per §4.D.
type ProgressFunc func(pct int)

// TerminalFunc is invoked exactly once when a job reaches a terminal state.
type TerminalFunc func(finalPct int, err error)

// Job is an in-flight unit of work. Once its worker has returned and its
// monitor has joined (§4.D), the pool removes it from the active tables and
// then invokes the terminal callback, so Active and CancelForHandle no
// longer find it by then; the Job value stays reachable until that
// callback returns.
type Job struct {
	Kind     Kind
	HandleID uint64
	Key      string // e.g. firmware name, for logging/identification only

	tomb     tomb.Tomb
	progress int32 // atomic, percent 0-100

	monitorJoined chan struct{}
}

func (j *Job) setProgress(pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	atomic.StoreInt32(&j.progress, int32(pct))
}

// Progress returns the job's current progress percent.
func (j *Job) Progress() int {
	return int(atomic.LoadInt32(&j.progress))
}

// Cancel requests cooperative cancellation; the worker observes it at its
// next chunk boundary or blocking call (§5).
func (j *Job) Cancel() {
	j.tomb.Kill(errCancelled)
}

var errCancelled = fmt.Errorf("cancelled")

// IsCancelled reports whether Cancel was called for this job.
func (j *Job) IsCancelled() bool {
	return j.tomb.Err() == errCancelled
}

// Pool tracks the singleton active job per Kind and the active jobs per
// handle, enforcing §3's "at most one active job globally, at most one per
// handle" invariants.
type Pool struct {
	log *zap.SugaredLogger

	pollInterval   time.Duration // monitor poll cadence, 250ms per §4.D
	reportInterval time.Duration // minimum spacing between progress reports, 1s per §4.D

	mu           sync.Mutex
	activeByKind map[Kind]*Job
	byHandle     map[uint64]map[Kind]*Job
}

// New constructs a Pool. Zero pollInterval/reportInterval fall back to the
// spec's defaults (250ms / 1s).
func New(log *zap.SugaredLogger, pollInterval, reportInterval time.Duration) *Pool {
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}
	if reportInterval <= 0 {
		reportInterval = time.Second
	}
	return &Pool{
		log:            log,
		pollInterval:   pollInterval,
		reportInterval: reportInterval,
		activeByKind:   make(map[Kind]*Job),
		byHandle:       make(map[uint64]map[Kind]*Job),
	}
}

// Active returns the currently active job for Kind, if any.
func (p *Pool) Active(kind Kind) (*Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.activeByKind[kind]
	return j, ok
}

// Start launches a new job of the given kind for handleID, enforcing the
// single-active-job invariant. It spawns the worker and its monitor and
// returns immediately; onProgress/onTerminal are invoked from the pool's
// own goroutines, never from the caller's.
func (p *Pool) Start(kind Kind, handleID uint64, key string, work WorkFunc, onProgress ProgressFunc, onTerminal TerminalFunc) (*Job, error) {
	p.mu.Lock()
	if _, busy := p.activeByKind[kind]; busy {
		p.mu.Unlock()
		return nil, &rfwerr.AlreadyInProgressError{Kind: string(kind)}
	}

	job := &Job{
		Kind:          kind,
		HandleID:      handleID,
		Key:           key,
		monitorJoined: make(chan struct{}),
	}
	p.activeByKind[kind] = job
	if p.byHandle[handleID] == nil {
		p.byHandle[handleID] = make(map[Kind]*Job)
	}
	p.byHandle[handleID][kind] = job
	p.mu.Unlock()

	p.log.Infow("job started", "kind", kind, "handleId", handleID, "key", key)

	workerDone := make(chan struct{})
	go p.runMonitor(job, onProgress, workerDone)
	go p.runWorker(job, work, onTerminal, workerDone)

	return job, nil
}

func (p *Pool) runWorker(job *Job, work WorkFunc, onTerminal TerminalFunc, workerDone chan struct{}) {
	job.tomb.Go(func() error {
		return work(&job.tomb, job.setProgress)
	})
	err := job.tomb.Wait()

	// Signal the monitor to stop, then wait (bounded by the monitor's own
	// poll interval) for it to actually join before freeing anything —
	// freeing without this join is the bug called out in §4.D.
	close(workerDone)
	<-job.monitorJoined

	p.finish(job)

	finalPct := job.Progress()
	if err == nil {
		finalPct = 100
	}
	onTerminal(finalPct, err)
	p.log.Infow("job terminal", "kind", job.Kind, "handleId", job.HandleID, "key", job.Key, "err", err)
}

func (p *Pool) runMonitor(job *Job, onProgress ProgressFunc, workerDone <-chan struct{}) {
	defer close(job.monitorJoined)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	lastReported := -1
	var lastReportTime time.Time
	boundaries := [...]int{0, 25, 50, 75, 100}

	for {
		select {
		case <-workerDone:
			return
		case <-ticker.C:
			pct := job.Progress()
			if pct == lastReported {
				continue
			}
			crossed := false
			for _, b := range boundaries {
				if pct == b {
					crossed = true
					break
				}
			}
			if crossed || time.Since(lastReportTime) >= p.reportInterval {
				onProgress(pct)
				lastReported = pct
				lastReportTime = time.Now()
			}
		}
	}
}

func (p *Pool) finish(job *Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.activeByKind[job.Kind] == job {
		delete(p.activeByKind, job.Kind)
	}
	if byKind, ok := p.byHandle[job.HandleID]; ok {
		if byKind[job.Kind] == job {
			delete(byKind, job.Kind)
		}
		if len(byKind) == 0 {
			delete(p.byHandle, job.HandleID)
		}
	}
}

// CancelForHandle cancels every active job owned by handleID (download
// and/or flash), used by the registry's unregister path (§5 "Cancellation").
// It does not block for job completion; the caller observes completion via
// the terminal signal as usual.
func (p *Pool) CancelForHandle(handleID uint64) {
	p.mu.Lock()
	byKind := p.byHandle[handleID]
	jobsToCancel := make([]*Job, 0, len(byKind))
	for _, j := range byKind {
		jobsToCancel = append(jobsToCancel, j)
	}
	p.mu.Unlock()

	for _, j := range jobsToCancel {
		j.Cancel()
	}
}
