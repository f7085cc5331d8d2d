package schedule

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/raulk/clock"
	"go.uber.org/zap"

	"github.com/subscription-escrow/escrowdex/chain/walk"
	"github.com/subscription-escrow/escrowdex/chain/watch"
	"github.com/subscription-escrow/escrowdex/metrics"
	"github.com/subscription-escrow/escrowdex/storage"
	"github.com/subscription-escrow/escrowdex/wait"
)

var log = logging.Logger("escrowdex/schedule")

type Job interface {
	// Run starts running the task and blocks until the context is done or
	// an error occurs. Run may be called again after an error or timeout to
	// retry the job so implementations must ensure that Run resets any
	// necessary state.
	Run(context.Context) error
}

type JobConfig struct {
	lk sync.Mutex
	// ID of the task
	id JobID

	// running is true if the job is executing, false otherwise.
	running bool

	// errorMsg will contain a (helpful) string iff a jobs execution has halted due to an error.
	errorMsg string

	log *zap.SugaredLogger

	// Name is a human readable name for the job for use in logging
	Name string

	// Job is the job that will be executed.
	Job Job

	// Locker is an optional lock that must be taken before the job can execute.
	Locker Locker

	// RestartOnFailure controls whether the job should be restarted if it stops with an error.
	RestartOnFailure bool

	// RestartOnCompletion controls whether the job should be restarted if it stops without an error.
	RestartOnCompletion bool

	// RestartDelay is the amount of time to wait before restarting a stopped job
	RestartDelay time.Duration
}

func (jc *JobConfig) setError(msg string) {
	jc.lk.Lock()
	jc.errorMsg = msg
	jc.lk.Unlock()
}

// Locker represents a general lock that a job may need to take before operating.
type Locker interface {
	Lock(context.Context) error
	Unlock(context.Context) error
}

type SchedulerOpt func(s *Scheduler)

// WithClock sets the clock used for delays between job starts and restarts.
func WithClock(clk clock.Clock) SchedulerOpt {
	return func(s *Scheduler) {
		s.clock = clk
	}
}

func NewScheduler(jobDelay time.Duration, scheduledJobs []*JobConfig, opts ...SchedulerOpt) *Scheduler {
	// Enforce a minimum delay
	if jobDelay == 0 {
		jobDelay = 100 * time.Millisecond
	}
	s := &Scheduler{
		jobDelay: jobDelay,
		jobs:     make(map[JobID]*JobConfig),
		clock:    clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	// scheduled jobs added here will be started when Scheduler.Run is called.
	for _, st := range scheduledJobs {
		s.jobID++
		st.id = s.jobID
		st.log = log.With("id", st.id, "name", st.Name)
		s.jobs[s.jobID] = st
	}
	return s
}

// Scheduler runs a fixed set of jobs and exits when all of them have stopped.
type Scheduler struct {
	jobs   map[JobID]*JobConfig
	jobsMu sync.Mutex
	jobID  JobID

	jobDelay time.Duration
	clock    clock.Clock
}

// Run starts every job and blocks until they have all stopped or the context is done.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info("Starting Scheduler")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.jobsMu.Lock()
	ids := make([]JobID, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	s.jobsMu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if len(ids) == 0 {
		log.Info("no scheduled jobs, scheduler exiting")
		return nil
	}

	complete := make(chan struct{}, len(ids))
	for i, id := range ids {
		if i > 0 {
			// A little jitter between scheduled jobs to reduce thundering herd effects on the rpc endpoint.
			if err := wait.SleepWithJitter(ctx, s.clock, s.jobDelay, 2); err != nil {
				return err
			}
		}
		go s.execute(ctx, s.jobs[id], complete)
	}

	running := len(ids)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-complete:
			running--
			if running == 0 {
				log.Info("all scheduled jobs complete, scheduler exiting")
				return nil
			}
		}
	}
}

type JobResult struct {
	ID    JobID
	Name  string
	Type  string
	Error string

	Running bool

	RestartOnFailure    bool
	RestartOnCompletion bool
	RestartDelay        time.Duration

	Params map[string]interface{}
}

var InvalidJobID = JobID(0)

type JobID int

// Jobs returns the state of every job, ordered by id.
func (s *Scheduler) Jobs() []JobResult {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if len(s.jobs) == 0 {
		return nil
	}
	var out []JobResult
	for _, j := range s.jobs {
		j.lk.Lock()
		jobType, jobParams := jobDetails(j)
		out = append(out, JobResult{
			ID:                  j.id,
			Name:                j.Name,
			Type:                jobType,
			Error:               j.errorMsg,
			Running:             j.running,
			RestartOnFailure:    j.RestartOnFailure,
			RestartOnCompletion: j.RestartOnCompletion,
			RestartDelay:        j.RestartDelay,
			Params:              jobParams,
		})
		j.lk.Unlock()
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

func (s *Scheduler) execute(ctx context.Context, jc *JobConfig, complete chan struct{}) {
	ctx, cancel := context.WithCancel(ctx)
	ctx = metrics.WithTagValue(ctx, metrics.Job, jc.Name)

	jc.lk.Lock()
	jc.running = true
	jc.lk.Unlock()

	// Report job is complete when this goroutine exits
	defer func() {
		jc.lk.Lock()
		jc.running = false
		jc.lk.Unlock()
		cancel()

		jc.log.Info("job execution ended")
		complete <- struct{}{}
	}()

	// Attempt to get the job lock if specified
	if jc.Locker != nil {
		if err := jc.Locker.Lock(ctx); err != nil {
			jc.setError(err.Error())
			if errors.Is(err, storage.ErrLockNotAcquired) {
				jc.log.Infow("job not started: lock not acquired")
				return
			}
			jc.log.Errorw("job not started: lock not acquired", "error", err.Error())
			return
		}
		defer func() {
			// the job context is usually canceled by now
			unlockCtx, unlockCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer unlockCancel()
			if err := jc.Locker.Unlock(unlockCtx); err != nil {
				jc.setError(err.Error())
				jc.log.Errorw("failed to unlock job", "error", err.Error())
			}
		}()
	}

	// Keep this job running forever
	doneFirstRun := false
	for {

		// Is the context done?
		select {
		case <-ctx.Done():
			return
		default:
		}

		if doneFirstRun {
			jc.log.Infow("restarting job", "delay", jc.RestartDelay)
			if err := wait.Sleep(ctx, s.clock, jc.RestartDelay); err != nil {
				return
			}
		} else {
			jc.log.Info("running job")
			doneFirstRun = true
		}

		metrics.RecordInc(ctx, metrics.JobStart)
		err := jc.Job.Run(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			metrics.RecordInc(ctx, metrics.JobError)
			jc.log.Errorw("job exited with failure", "error", err.Error())
			jc.setError(err.Error())

			if !jc.RestartOnFailure {
				// Exit the job
				break
			}
		} else {
			metrics.RecordInc(ctx, metrics.JobComplete)
			jc.log.Info("job exited cleanly")
			jc.setError("")

			if !jc.RestartOnCompletion {
				// Exit the job
				break
			}
		}
	}
}

func jobDetails(j *JobConfig) (string, map[string]interface{}) {
	switch job := j.Job.(type) {
	case *walk.Walker:
		return "walker", job.Params()
	case *watch.Watcher:
		return "watcher", job.Params()
	default:
		return "unknown", nil
	}
}
