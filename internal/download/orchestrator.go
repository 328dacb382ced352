package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/hogliux/collect/internal/domain"
	"github.com/hogliux/collect/internal/platform/correlation"
)

// DefaultDeadline is how long a sequence may run before the watchdog
// cancels it.
const DefaultDeadline = 12 * time.Second

// Recorder receives orchestration metrics. Nil disables recording.
type Recorder interface {
	SequenceStarted()
	SequenceFinished(outcome string, d time.Duration)
	WatchdogFired()
}

type Config struct {
	Connectivity domain.Connectivity
	Manifest     domain.ManifestFetcher
	Downloader   domain.FormDownloader
	Clock        clockwork.Clock
	Deadline     time.Duration
	Logger       *slog.Logger
	Metrics      Recorder
}

// sequence is the single-owner handle of one running download. Only the
// orchestrator touches it, always under o.mu.
type sequence struct {
	id        string
	startedAt time.Time
	phase     Phase
	cancel    context.CancelFunc
	watchdog  clockwork.Timer
	timedOut  bool
}

// State is a point-in-time view of the orchestrator.
type State struct {
	Running    bool      `json:"running"`
	SequenceID string    `json:"sequence_id,omitempty"`
	Phase      Phase     `json:"phase,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	Last       *Result   `json:"last,omitempty"`
}

type Orchestrator struct {
	conn       domain.Connectivity
	manifest   domain.ManifestFetcher
	downloader domain.FormDownloader
	clock      clockwork.Clock
	deadline   time.Duration
	logger     *slog.Logger
	metrics    Recorder

	mu      sync.Mutex
	current *sequence
	last    *Result
	subs    map[int]func(Event)
	nextSub int

	wg sync.WaitGroup
}

func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		conn:       cfg.Connectivity,
		manifest:   cfg.Manifest,
		downloader: cfg.Downloader,
		clock:      cfg.Clock,
		deadline:   cfg.Deadline,
		logger:     cfg.Logger.With("component", "download"),
		metrics:    cfg.Metrics,
		subs:       make(map[int]func(Event)),
	}
}

// Subscribe registers fn for every event until the returned function is
// called. fn runs on the sequence goroutine and must not block.
func (o *Orchestrator) Subscribe(fn func(Event)) (unsubscribe func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			delete(o.subs, id)
		})
	}
}

// Start begins a new sequence. Offline it returns ErrNoConnection without
// creating anything. While a sequence is in flight it returns that
// sequence's state together with ErrAlreadyRunning.
func (o *Orchestrator) Start(ctx context.Context) (State, error) {
	if !o.conn.Available(ctx) {
		o.logger.InfoContext(ctx, "Form download not started, no connection")
		return o.State(), domain.ErrNoConnection
	}

	o.mu.Lock()
	if o.current != nil {
		state := o.stateLocked()
		o.mu.Unlock()
		return state, domain.ErrAlreadyRunning
	}

	id := uuid.NewString()
	seqCtx, cancel := context.WithCancel(correlation.WithID(context.Background(), id[:8]))
	seq := &sequence{
		id:        id,
		startedAt: o.clock.Now(),
		phase:     PhaseList,
		cancel:    cancel,
	}
	seq.watchdog = o.clock.AfterFunc(o.deadline, func() { o.expire(seq) })
	o.current = seq
	state := o.stateLocked()
	o.wg.Add(1)
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.SequenceStarted()
	}
	o.logger.InfoContext(seqCtx, "Form download started", "sequence_id", id, "deadline", o.deadline)
	o.publish(Event{Type: EventStarted, SequenceID: id})

	go o.run(seqCtx, seq)
	return state, nil
}

// Cancel cancels the active phase of the running sequence. It reports
// whether there was one.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil {
		return false
	}
	o.logger.Info("Form download cancelled by user", "sequence_id", o.current.id, "phase", o.current.phase)
	o.current.cancel()
	return true
}

// expire is the watchdog callback. It only acts on the sequence it was
// armed for, and only while that sequence is still the current one.
func (o *Orchestrator) expire(seq *sequence) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current != seq {
		return
	}
	seq.timedOut = true
	seq.cancel()
	if o.metrics != nil {
		o.metrics.WatchdogFired()
	}
	o.logger.Warn("Form download deadline passed, cancelling", "sequence_id", seq.id, "phase", seq.phase, "deadline", o.deadline)
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stateLocked()
}

func (o *Orchestrator) stateLocked() State {
	s := State{Last: o.last}
	if o.current != nil {
		s.Running = true
		s.SequenceID = o.current.id
		s.Phase = o.current.phase
		s.StartedAt = o.current.startedAt
	}
	return s
}

// Shutdown cancels any running sequence and waits for it to wind down.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.Cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for form download to stop: %w", ctx.Err())
	}
}

func (o *Orchestrator) run(ctx context.Context, seq *sequence) {
	defer o.wg.Done()

	manifest, err := o.manifest.FetchManifest(ctx)
	if err != nil {
		o.finish(ctx, seq, o.listFailure(ctx, err))
		return
	}

	forms := BuildFormList(manifest)
	o.logger.InfoContext(ctx, "Form list downloaded", "forms", len(forms))
	o.publish(Event{Type: EventListReady, SequenceID: seq.id, Forms: forms})

	if len(forms) == 0 {
		o.finish(ctx, seq, Result{Outcome: OutcomeEmpty, Phase: PhaseList})
		return
	}
	if !o.enterContentPhase(ctx, seq) {
		o.finish(ctx, seq, Result{Outcome: OutcomeCancelled, Phase: PhaseList, Forms: forms})
		return
	}

	selected := make([]domain.FormDetails, 0, len(forms))
	for _, item := range forms {
		selected = append(selected, manifest[item.Key])
	}

	downloads, err := o.downloader.DownloadForms(ctx, selected, func(p domain.Progress) {
		o.publish(Event{Type: EventProgress, SequenceID: seq.id, Progress: &p})
	})
	result := Result{Outcome: OutcomeCompleted, Phase: PhaseContent, Forms: forms, Downloads: downloads}
	if err != nil && ctx.Err() != nil {
		result.Outcome = OutcomeCancelled
	} else if err != nil {
		o.logger.WarnContext(ctx, "Form content download reported an error", "error", err)
	}
	o.finish(ctx, seq, result)
}

func (o *Orchestrator) listFailure(ctx context.Context, err error) Result {
	if ctx.Err() != nil {
		return Result{Outcome: OutcomeCancelled, Phase: PhaseList}
	}

	msg := err.Error()
	var manifestErr *domain.ManifestError
	if errors.As(err, &manifestErr) {
		msg = manifestErr.Message
	}
	o.logger.WarnContext(ctx, "Form list download failed", "error", err)
	return Result{Outcome: OutcomeListFailed, Phase: PhaseList, ErrorMessage: msg}
}

// enterContentPhase moves seq to the content phase unless it was cancelled
// while the list was being processed.
func (o *Orchestrator) enterContentPhase(ctx context.Context, seq *sequence) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	seq.phase = PhaseContent
	return true
}

// finish releases seq and publishes its result. Once this returns, neither
// the watchdog nor Cancel can reach seq.
func (o *Orchestrator) finish(ctx context.Context, seq *sequence, result Result) {
	o.mu.Lock()
	seq.watchdog.Stop()
	result.SequenceID = seq.id
	result.TimedOut = seq.timedOut
	result.FinishedAt = o.clock.Now()
	if o.current == seq {
		o.current = nil
	}
	o.last = &result
	o.mu.Unlock()

	seq.cancel()

	if o.metrics != nil {
		o.metrics.SequenceFinished(string(result.Outcome), result.FinishedAt.Sub(seq.startedAt))
	}
	o.logger.InfoContext(ctx, "Form download finished",
		"outcome", result.Outcome, "phase", result.Phase, "timed_out", result.TimedOut)
	o.publish(Event{Type: EventFinished, SequenceID: seq.id, Result: &result})
}

func (o *Orchestrator) publish(ev Event) {
	o.mu.Lock()
	subs := make([]func(Event), 0, len(o.subs))
	for _, fn := range o.subs {
		subs = append(subs, fn)
	}
	o.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}
