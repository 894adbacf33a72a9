package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "zeitslot/pkg/logx"
)

// DefaultSpec fires once per minute, matching the minute granularity of
// schedule evaluation.
const DefaultSpec = "* * * * *"

// Config controls the trigger.
type Config struct {
	Enabled  bool
	Spec     string        // cron or interval, see ParseSchedule
	Timezone string        // IANA TZ, e.g. "Europe/Berlin"
	Timeout  time.Duration // per run; 0 means none
}

// Job is one triggered run.
type Job func(ctx context.Context) error

// Snapshot is a point-in-time view for status output.
type Snapshot struct {
	Enabled  bool
	Spec     string
	Timezone string
	Next     time.Time
	Prev     time.Time
	Runs     uint64
	Skipped  uint64
	Failures uint64
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	job    Job
	parser cron.Parser

	c       *cron.Cron
	loc     *time.Location
	entryID cron.EntryID
	baseCtx context.Context

	// state is what run reads; it never takes mu so Apply and Stop can
	// drain cron while holding it.
	state    atomic.Pointer[runState]
	running  atomic.Bool
	runs     atomic.Uint64
	skipped  atomic.Uint64
	failures atomic.Uint64
}

type runState struct {
	ctx     context.Context
	timeout time.Duration
	job     Job
}

func New(cfg Config, job Job, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		job: job,
		log: log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Validate checks spec and timezone without starting anything.
func (s *Service) Validate(cfg Config) error {
	if _, err := s.schedule(cfg, time.Now()); err != nil {
		return err
	}
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler timezone %q: %w", tz, err)
		}
	}
	return nil
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps the config and restarts cron when spec, timezone or the
// enabled flag changed.
func (s *Service) Apply(cfg Config) error {
	if err := s.Validate(cfg); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cfg
	s.cfg = cfg
	if s.baseCtx == nil {
		return nil
	}
	s.publishLocked()
	if old.Spec == cfg.Spec && strings.TrimSpace(old.Timezone) == strings.TrimSpace(cfg.Timezone) && old.Enabled == cfg.Enabled {
		return nil
	}
	s.stopCronLocked()
	return s.startCronLocked()
}

// Start registers the job and starts cron. Runs receive a context derived
// from ctx.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx != nil {
		return nil
	}
	s.baseCtx = ctx
	s.publishLocked()
	return s.startCronLocked()
}

// Stop stops triggering and waits for a running job until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.baseCtx = nil
	s.state.Store(nil)
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Enabled:  s.cfg.Enabled,
		Spec:     s.cfg.Spec,
		Timezone: strings.TrimSpace(s.cfg.Timezone),
		Runs:     s.runs.Load(),
		Skipped:  s.skipped.Load(),
		Failures: s.failures.Load(),
	}
	if s.c != nil {
		e := s.c.Entry(s.entryID)
		snap.Next, snap.Prev = e.Next, e.Prev
	}
	return snap
}

func (s *Service) startCronLocked() error {
	cfg := s.cfg
	if !cfg.Enabled {
		s.log.Info("scheduler disabled")
		return nil
	}
	s.loc = s.loadLocationLocked()
	now := time.Now().In(s.loc)
	sched, err := s.schedule(cfg, now)
	if err != nil {
		return err
	}

	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLogger{log: s.log}),
		cron.WithChain(cron.Recover(cronLogger{log: s.log})),
	)
	s.entryID = s.c.Schedule(sched, cron.FuncJob(s.run))
	s.c.Start()

	args := []logx.Field{logx.String("spec", specOrDefault(cfg.Spec)), logx.String("tz", s.loc.String())}
	if next := previewNextRuns(sched, now, 3); next != "" {
		args = append(args, logx.String("next", next))
	}
	s.log.Info("service started", args...)
	return nil
}

func (s *Service) publishLocked() {
	s.state.Store(&runState{ctx: s.baseCtx, timeout: s.cfg.Timeout, job: s.job})
}

func (s *Service) stopCronLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
		s.c = nil
	}
}

// run executes the job unless the previous run is still in flight.
func (s *Service) run() {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.log.Warn("previous run still active; skipping")
		return
	}
	defer s.running.Store(false)

	st := s.state.Load()
	if st == nil || st.ctx == nil || st.job == nil {
		return
	}
	ctx, timeout, job := st.ctx, st.timeout, st.job
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	s.runs.Add(1)
	if err := job(ctx); err != nil {
		s.failures.Add(1)
		s.log.Warn("run failed", logx.Err(err))
	}
}

func (s *Service) schedule(cfg Config, now time.Time) (cron.Schedule, error) {
	ps, err := ParseSchedule(specOrDefault(cfg.Spec))
	if err != nil {
		return nil, err
	}
	if ps.Kind == SpecInterval {
		sched, jitter := withStartupSpread(ps.Every, now)
		if jitter > 0 {
			s.log.Debug("interval startup spread", logx.Duration("every", ps.Every), logx.Duration("jitter", jitter))
		}
		return sched, nil
	}
	sched, err := s.parser.Parse(ps.Cron)
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", ps.Cron, err)
	}
	return sched, nil
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func specOrDefault(spec string) string {
	if strings.TrimSpace(spec) == "" {
		return DefaultSpec
	}
	return spec
}

// previewNextRuns lists upcoming activations for the startup log line.
func previewNextRuns(sched cron.Schedule, from time.Time, n int) string {
	var b strings.Builder
	t := from
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

// cronLogger routes cron's internal logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Trace("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
