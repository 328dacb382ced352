package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hogliux/collect/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeConnectivity struct{ available bool }

func (f fakeConnectivity) Available(context.Context) bool { return f.available }

type mockManifest struct {
	calls   atomic.Int32
	fetchFn func(ctx context.Context) (map[string]domain.FormDetails, error)
}

func (m *mockManifest) FetchManifest(ctx context.Context) (map[string]domain.FormDetails, error) {
	m.calls.Add(1)
	return m.fetchFn(ctx)
}

type mockDownloader struct {
	mu         sync.Mutex
	calls      int
	received   []domain.FormDetails
	downloadFn func(ctx context.Context, forms []domain.FormDetails, progress func(domain.Progress)) (map[string]string, error)
}

func (m *mockDownloader) DownloadForms(ctx context.Context, forms []domain.FormDetails, progress func(domain.Progress)) (map[string]string, error) {
	m.mu.Lock()
	m.calls++
	m.received = forms
	m.mu.Unlock()
	if m.downloadFn != nil {
		return m.downloadFn(ctx, forms, progress)
	}
	out := make(map[string]string, len(forms))
	for i, f := range forms {
		progress(domain.Progress{CurrentFile: f.Name, Done: i, Total: len(forms)})
		out[f.FormID] = "Success"
	}
	return out, nil
}

func (m *mockDownloader) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type recordingMetrics struct {
	started, watchdog atomic.Int32
	mu                sync.Mutex
	outcomes          []string
}

func (r *recordingMetrics) SequenceStarted() { r.started.Add(1) }
func (r *recordingMetrics) WatchdogFired()   { r.watchdog.Add(1) }
func (r *recordingMetrics) SequenceFinished(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

type harness struct {
	orch       *Orchestrator
	clock      *clockwork.FakeClock
	manifest   *mockManifest
	downloader *mockDownloader
	metrics    *recordingMetrics
	events     chan Event
}

func newHarness(t *testing.T, online bool, fetch func(ctx context.Context) (map[string]domain.FormDetails, error)) *harness {
	t.Helper()
	h := &harness{
		clock:      clockwork.NewFakeClock(),
		manifest:   &mockManifest{fetchFn: fetch},
		downloader: &mockDownloader{},
		metrics:    &recordingMetrics{},
		events:     make(chan Event, 64),
	}
	h.orch = NewOrchestrator(Config{
		Connectivity: fakeConnectivity{available: online},
		Manifest:     h.manifest,
		Downloader:   h.downloader,
		Clock:        h.clock,
		Deadline:     12 * time.Second,
		Logger:       slog.New(slog.DiscardHandler),
		Metrics:      h.metrics,
	})
	unsubscribe := h.orch.Subscribe(func(ev Event) { h.events <- ev })
	t.Cleanup(func() {
		unsubscribe()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, h.orch.Shutdown(ctx))
	})
	return h
}

func (h *harness) waitFor(t *testing.T, typ EventType) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.events:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func staticManifest(forms map[string]domain.FormDetails) func(context.Context) (map[string]domain.FormDetails, error) {
	return func(context.Context) (map[string]domain.FormDetails, error) { return forms, nil }
}

// blockUntilCancelled simulates a server that never answers.
func blockUntilCancelled(ctx context.Context) (map[string]domain.FormDetails, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStart_OfflineCreatesNothing(t *testing.T) {
	h := newHarness(t, false, staticManifest(nil))

	state, err := h.orch.Start(context.Background())

	require.ErrorIs(t, err, domain.ErrNoConnection)
	assert.False(t, state.Running)
	assert.False(t, h.orch.State().Running)
	assert.Zero(t, h.manifest.calls.Load())
	assert.Zero(t, h.metrics.started.Load())
	assert.Empty(t, h.events)
}

func TestStart_SecondStartWhileRunningReusesSequence(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, true, func(ctx context.Context) (map[string]domain.FormDetails, error) {
		select {
		case <-release:
			return map[string]domain.FormDetails{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	first, err := h.orch.Start(context.Background())
	require.NoError(t, err)
	second, err := h.orch.Start(context.Background())

	require.ErrorIs(t, err, domain.ErrAlreadyRunning)
	assert.Equal(t, first.SequenceID, second.SequenceID)
	assert.True(t, second.Running)

	close(release)
	h.waitFor(t, EventFinished)
	assert.Equal(t, int32(1), h.manifest.calls.Load())
	assert.Equal(t, int32(1), h.metrics.started.Load())
}

func TestStart_AfterFinishStartsFreshSequence(t *testing.T) {
	h := newHarness(t, true, staticManifest(map[string]domain.FormDetails{}))

	first, err := h.orch.Start(context.Background())
	require.NoError(t, err)
	h.waitFor(t, EventFinished)

	second, err := h.orch.Start(context.Background())
	require.NoError(t, err)
	h.waitFor(t, EventFinished)

	assert.NotEqual(t, first.SequenceID, second.SequenceID)
}

func TestSequence_ListSortedThenContentDownloaded(t *testing.T) {
	manifest := map[string]domain.FormDetails{
		"k-water":  {FormID: "water", Name: "Water Point", Version: "3"},
		"k-house":  {FormID: "household", Name: "Household Survey"},
		"k-agri":   {FormID: "agri", Name: "Agriculture", Version: "2024"},
		"k-health": {FormID: "health", Name: "Health Facility"},
	}
	h := newHarness(t, true, staticManifest(manifest))

	_, err := h.orch.Start(context.Background())
	require.NoError(t, err)

	ready := h.waitFor(t, EventListReady)
	require.Len(t, ready.Forms, len(manifest))
	names := make([]string, 0, len(ready.Forms))
	keys := make(map[string]bool)
	for _, item := range ready.Forms {
		names = append(names, item.Name)
		keys[item.Key] = true
	}
	assert.IsIncreasing(t, names)
	assert.Len(t, keys, len(manifest))
	assert.Equal(t, "Version 2024 ID: agri", ready.Forms[0].Label)

	progress := h.waitFor(t, EventProgress)
	assert.Equal(t, "Agriculture", progress.Progress.CurrentFile)
	assert.Equal(t, 4, progress.Progress.Total)

	finished := h.waitFor(t, EventFinished)
	require.NotNil(t, finished.Result)
	assert.Equal(t, OutcomeCompleted, finished.Result.Outcome)
	assert.False(t, finished.Result.ShowsError())
	assert.Len(t, finished.Result.Downloads, 4)

	h.downloader.mu.Lock()
	defer h.downloader.mu.Unlock()
	require.Len(t, h.downloader.received, 4)
	assert.Equal(t, "agri", h.downloader.received[0].FormID)
	assert.Equal(t, "water", h.downloader.received[3].FormID)
}

func TestSequence_ManifestErrorEndsInErrorDialog(t *testing.T) {
	h := newHarness(t, true, func(context.Context) (map[string]domain.FormDetails, error) {
		return nil, &domain.ManifestError{Message: "Authentication failed for formList"}
	})

	_, err := h.orch.Start(context.Background())
	require.NoError(t, err)

	finished := h.waitFor(t, EventFinished)
	assert.Equal(t, OutcomeListFailed, finished.Result.Outcome)
	assert.Equal(t, PhaseList, finished.Result.Phase)
	assert.Equal(t, "Authentication failed for formList", finished.Result.ErrorMessage)
	assert.True(t, finished.Result.ShowsError())
	assert.Zero(t, h.downloader.callCount())
	assert.False(t, h.orch.State().Running)
	assert.Equal(t, finished.Result, h.orch.State().Last)
}

func TestSequence_TransportErrorUsesErrorText(t *testing.T) {
	h := newHarness(t, true, func(context.Context) (map[string]domain.FormDetails, error) {
		return nil, fmt.Errorf("fetch form list: %w", errors.New("connection reset by peer"))
	})

	_, err := h.orch.Start(context.Background())
	require.NoError(t, err)

	finished := h.waitFor(t, EventFinished)
	assert.Equal(t, OutcomeListFailed, finished.Result.Outcome)
	assert.Contains(t, finished.Result.ErrorMessage, "connection reset by peer")
}

func TestSequence_EmptyListSkipsContentPhase(t *testing.T) {
	h := newHarness(t, true, staticManifest(map[string]domain.FormDetails{}))

	_, err := h.orch.Start(context.Background())
	require.NoError(t, err)

	finished := h.waitFor(t, EventFinished)
	assert.Equal(t, OutcomeEmpty, finished.Result.Outcome)
	assert.False(t, finished.Result.ShowsError())
	assert.Zero(t, h.downloader.callCount())
}

func TestWatchdog_CancelsListPhase(t *testing.T) {
	h := newHarness(t, true, blockUntilCancelled)

	_, err := h.orch.Start(context.Background())
	require.NoError(t, err)

	h.clock.Advance(11 * time.Second)
	assert.True(t, h.orch.State().Running)

	h.clock.Advance(time.Second)
	finished := h.waitFor(t, EventFinished)
	assert.Equal(t, OutcomeCancelled, finished.Result.Outcome)
	assert.Equal(t, PhaseList, finished.Result.Phase)
	assert.True(t, finished.Result.TimedOut)
	assert.False(t, finished.Result.ShowsError())
	assert.Equal(t, int32(1), h.metrics.watchdog.Load())
}

func TestWatchdog_CancelsContentPhase(t *testing.T) {
	h := newHarness(t, true, staticManifest(map[string]domain.FormDetails{"k": {FormID: "f", Name: "F"}}))
	entered := make(chan struct{})
	h.downloader.downloadFn = func(ctx context.Context, _ []domain.FormDetails, _ func(domain.Progress)) (map[string]string, error) {
		close(entered)
		<-ctx.Done()
		return map[string]string{"f": "cancelled"}, ctx.Err()
	}

	_, err := h.orch.Start(context.Background())
	require.NoError(t, err)
	<-entered
	assert.Equal(t, PhaseContent, h.orch.State().Phase)

	h.clock.Advance(12 * time.Second)

	finished := h.waitFor(t, EventFinished)
	assert.Equal(t, OutcomeCancelled, finished.Result.Outcome)
	assert.Equal(t, PhaseContent, finished.Result.Phase)
	assert.True(t, finished.Result.TimedOut)
}

func TestWatchdog_StaleExpiryIsNoOp(t *testing.T) {
	h := newHarness(t, true, staticManifest(map[string]domain.FormDetails{}))

	_, err := h.orch.Start(context.Background())
	require.NoError(t, err)
	h.orch.mu.Lock()
	stale := h.orch.current
	h.orch.mu.Unlock()
	h.waitFor(t, EventFinished)

	// Expiry after the sequence was released does nothing.
	h.orch.expire(stale)
	assert.False(t, stale.timedOut)

	// Nor does it touch a newer sequence.
	h.manifest.fetchFn = blockUntilCancelled
	_, err = h.orch.Start(context.Background())
	require.NoError(t, err)
	h.orch.expire(stale)
	assert.True(t, h.orch.State().Running)
	assert.Zero(t, h.metrics.watchdog.Load())

	assert.True(t, h.orch.Cancel())
	h.waitFor(t, EventFinished)
}

func TestCancel_UserSkipDuringContent(t *testing.T) {
	h := newHarness(t, true, staticManifest(map[string]domain.FormDetails{"k": {FormID: "f", Name: "F"}}))
	entered := make(chan struct{})
	h.downloader.downloadFn = func(ctx context.Context, _ []domain.FormDetails, _ func(domain.Progress)) (map[string]string, error) {
		close(entered)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	assert.False(t, h.orch.Cancel(), "nothing to cancel yet")

	_, err := h.orch.Start(context.Background())
	require.NoError(t, err)
	<-entered
	assert.True(t, h.orch.Cancel())

	finished := h.waitFor(t, EventFinished)
	assert.Equal(t, OutcomeCancelled, finished.Result.Outcome)
	assert.False(t, finished.Result.TimedOut)
	assert.False(t, h.orch.Cancel())
}

func TestSequence_ContentErrorWithoutCancelStillCompletes(t *testing.T) {
	h := newHarness(t, true, staticManifest(map[string]domain.FormDetails{"k": {FormID: "f", Name: "F"}}))
	h.downloader.downloadFn = func(context.Context, []domain.FormDetails, func(domain.Progress)) (map[string]string, error) {
		return map[string]string{"f": "Error: 404"}, errors.New("1 of 1 forms failed")
	}

	_, err := h.orch.Start(context.Background())
	require.NoError(t, err)

	finished := h.waitFor(t, EventFinished)
	assert.Equal(t, OutcomeCompleted, finished.Result.Outcome)
	assert.Equal(t, "Error: 404", finished.Result.Downloads["f"])
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	h := newHarness(t, true, staticManifest(map[string]domain.FormDetails{}))
	var count atomic.Int32
	unsubscribe := h.orch.Subscribe(func(Event) { count.Add(1) })
	unsubscribe()
	unsubscribe()

	_, err := h.orch.Start(context.Background())
	require.NoError(t, err)
	h.waitFor(t, EventFinished)

	assert.Zero(t, count.Load())
}

func TestShutdown_StopsRunningSequence(t *testing.T) {
	h := newHarness(t, true, blockUntilCancelled)

	_, err := h.orch.Start(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.orch.Shutdown(ctx))
	assert.False(t, h.orch.State().Running)
}
