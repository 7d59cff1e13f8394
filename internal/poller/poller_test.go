package poller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/ashureev/maturity-report/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type step struct {
	status string
	result string
	errMsg string
	err    error
}

// scriptedFetcher replays steps in order and repeats the last one.
type scriptedFetcher struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (f *scriptedFetcher) GetJob(_ context.Context, id string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	f.calls++
	s := f.steps[i]
	if s.err != nil {
		return nil, s.err
	}
	job := &domain.Job{ID: id, Status: s.status, ErrorMessage: s.errMsg}
	if s.result != "" {
		job.Result = json.RawMessage(s.result)
	}
	return job, nil
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig() Config {
	return Config{Interval: time.Millisecond, Deadline: time.Second, TargetAttempts: 4, MaxConsecutiveErrors: 5}
}

func run(t *testing.T, f JobFetcher, cfg Config) []Event {
	t.Helper()
	var events []Event
	p := New(f, cfg, quietLogger())
	if err := p.Poll(context.Background(), "job-1", func(ev Event) { events = append(events, ev) }); err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	return events
}

func terminal(events []Event) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Kind.Terminal() {
			out = append(out, ev)
		}
	}
	return out
}

func TestPollCompletesAfterProcessing(t *testing.T) {
	f := &scriptedFetcher{steps: []step{
		{status: "processing"},
		{status: "processing"},
		{status: "processing"},
		{status: "completed", result: `{"scores":{"overall":72}}`},
	}}
	events := run(t, f, fastConfig())

	term := terminal(events)
	if len(term) != 1 || term[0].Kind != EventCompleted {
		t.Fatalf("expected exactly one completed event, got %+v", term)
	}
	if term[0].Result == nil || term[0].Result.Scores.Overall.Score != 72 {
		t.Errorf("expected normalized result with overall 72, got %+v", term[0].Result)
	}
	if term[0].Progress != 100 {
		t.Errorf("completed progress = %d, want 100", term[0].Progress)
	}
	if f.Calls() != 4 {
		t.Errorf("fetches = %d, want 4", f.Calls())
	}

	last := 0
	for _, ev := range events {
		if ev.Progress < last {
			t.Fatalf("progress went backwards: %d after %d", ev.Progress, last)
		}
		last = ev.Progress
		if ev.Kind == EventProgress && ev.Progress >= 100 {
			t.Fatalf("progress event reached %d before terminal", ev.Progress)
		}
	}
}

func TestPollUnreachableAfterConsecutiveErrors(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{err: errors.New("connection refused")}}}
	events := run(t, f, fastConfig())

	term := terminal(events)
	if len(term) != 1 || term[0].Kind != EventUnreachable {
		t.Fatalf("expected unreachable, got %+v", events)
	}
	if f.Calls() != 5 {
		t.Errorf("fetches = %d, want 5", f.Calls())
	}
}

func TestPollErrorCounterResetsOnSuccess(t *testing.T) {
	boom := errors.New("boom")
	f := &scriptedFetcher{steps: []step{
		{err: boom}, {err: boom}, {err: boom}, {err: boom},
		{status: "processing"},
		{err: boom}, {err: boom}, {err: boom}, {err: boom},
		{status: "done", result: `{"firma_adi":"Acme"}`},
	}}
	events := run(t, f, fastConfig())

	term := terminal(events)
	if len(term) != 1 || term[0].Kind != EventCompleted {
		t.Fatalf("expected completed, got %+v", term)
	}
}

func TestPollFailed(t *testing.T) {
	tests := []struct {
		name   string
		status string
		errMsg string
		want   string
	}{
		{"with message", "failed", "crawler blocked", "crawler blocked"},
		{"generic message", " ERROR ", "", "analysis failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &scriptedFetcher{steps: []step{{status: tt.status, errMsg: tt.errMsg}}}
			term := terminal(run(t, f, fastConfig()))
			if len(term) != 1 || term[0].Kind != EventFailed {
				t.Fatalf("expected failed, got %+v", term)
			}
			if term[0].Error != tt.want {
				t.Errorf("error = %q, want %q", term[0].Error, tt.want)
			}
		})
	}
}

func TestPollCompletedWithoutPayloadKeepsPolling(t *testing.T) {
	f := &scriptedFetcher{steps: []step{
		{status: "completed"},
		{status: "completed", result: `{}`},
		{status: "completed", result: `{"scores":{"overall":10}}`},
	}}
	term := terminal(run(t, f, fastConfig()))
	if len(term) != 1 || term[0].Kind != EventCompleted {
		t.Fatalf("expected completed, got %+v", term)
	}
	if f.Calls() != 3 {
		t.Errorf("fetches = %d, want 3", f.Calls())
	}
}

func TestPollLenientCompletion(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{status: "ready", result: `{"scores":{"overall":50}}`}}}
	term := terminal(run(t, f, fastConfig()))
	if len(term) != 1 || term[0].Kind != EventCompleted || !term[0].Lenient {
		t.Fatalf("expected lenient completion, got %+v", term)
	}
}

func TestPollPendingWithPayloadIsNotTerminal(t *testing.T) {
	f := &scriptedFetcher{steps: []step{
		{status: "running", result: `{"scores":{"overall":50}}`},
		{status: "completed", result: `{"scores":{"overall":50}}`},
	}}
	term := terminal(run(t, f, fastConfig()))
	if len(term) != 1 || term[0].Attempt != 2 {
		t.Fatalf("expected completion on attempt 2, got %+v", term)
	}
}

func TestPollTimesOut(t *testing.T) {
	cfg := fastConfig()
	cfg.Deadline = 5 * time.Millisecond
	f := &scriptedFetcher{steps: []step{{status: "pending"}}}
	term := terminal(run(t, f, cfg))
	if len(term) != 1 || term[0].Kind != EventTimedOut {
		t.Fatalf("expected timed out, got %+v", term)
	}
	if f.Calls() != 5 {
		t.Errorf("fetches = %d, want 5", f.Calls())
	}
}

func TestStopHaltsFetching(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{status: "processing"}}}
	p := New(f, Config{Interval: 2 * time.Millisecond, Deadline: time.Hour}, quietLogger())
	h := p.Start(context.Background(), "job-1")

	deadline := time.After(2 * time.Second)
	for f.Calls() < 3 {
		select {
		case <-h.Events():
		case <-deadline:
			t.Fatal("poller did not make progress")
		}
	}

	h.Stop()
	after := f.Calls()
	time.Sleep(20 * time.Millisecond)
	if f.Calls() != after {
		t.Errorf("fetches continued after Stop: %d -> %d", after, f.Calls())
	}
	if !errors.Is(h.Err(), context.Canceled) {
		t.Errorf("Err() = %v, want context.Canceled", h.Err())
	}
	h.Stop()
}

func TestStartDeliversTerminalAndCloses(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{status: "success", result: `{"scores":{"overall":1}}`}}}
	h := New(f, fastConfig(), quietLogger()).Start(context.Background(), "job-1")

	var kinds []EventKind
	for ev := range h.Events() {
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) != 1 || kinds[0] != EventCompleted {
		t.Fatalf("events = %v, want [completed]", kinds)
	}
	if h.Err() != nil {
		t.Errorf("Err() = %v, want nil", h.Err())
	}
}

func TestEstimate(t *testing.T) {
	tests := []struct{ attempts, target, want int }{
		{0, 36, 0},
		{18, 36, 50},
		{36, 36, 95},
		{500, 36, 95},
		{3, 0, 0},
	}
	for _, tt := range tests {
		if got := estimate(tt.attempts, tt.target); got != tt.want {
			t.Errorf("estimate(%d, %d) = %d, want %d", tt.attempts, tt.target, got, tt.want)
		}
	}
}

func TestMaxAttempts(t *testing.T) {
	if got := (Config{}).MaxAttempts(); got != 180 {
		t.Errorf("default MaxAttempts = %d, want 180", got)
	}
}
