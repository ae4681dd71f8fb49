package usecase

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rocketscienceinc/rps-online/internal/entity"
	"github.com/rocketscienceinc/rps-online/internal/gesture"
	"github.com/rocketscienceinc/rps-online/internal/repository/storage"
)

const waitFor = 3 * time.Second

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testTimings() Timings {
	return Timings{
		CountdownStart: 3,
		CountdownTick:  5 * time.Millisecond,
		GoHold:         5 * time.Millisecond,

		LocalSettle: time.Millisecond,
		HostSettle:  5 * time.Millisecond,
		GuestSettle: time.Millisecond,

		ReconcileInitial:  10 * time.Millisecond,
		ReconcileMax:      20 * time.Millisecond,
		ReconcileDeadline: 300 * time.Millisecond,

		ClearDelay:       50 * time.Millisecond,
		RoomInactivity:   30 * time.Minute,
		OperationTimeout: 2 * time.Second,
		RoomCodeRetries:  5,
	}
}

// fakeOracle shows the same gesture on every frame.
type fakeOracle struct {
	mu     sync.Mutex
	ready  bool
	shown  entity.Gesture
	err    error
	frames int
}

func newFakeOracle(shown entity.Gesture) *fakeOracle {
	return &fakeOracle{ready: true, shown: shown}
}

func (that *fakeOracle) Ready(context.Context) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.ready
}

func (that *fakeOracle) Classify(context.Context) ([]gesture.Prediction, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.frames++
	if that.err != nil {
		return nil, that.err
	}

	return []gesture.Prediction{{Label: string(that.shown), Confidence: 0.9}}, nil
}

func (that *fakeOracle) show(shown entity.Gesture) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.shown = shown
}

func (that *fakeOracle) setReady(ready bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.ready = ready
}

type recordingPresenter struct {
	mu     sync.Mutex
	events []Event
}

func (that *recordingPresenter) Present(event Event) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.events = append(that.events, event)
}

func (that *recordingPresenter) ofType(eventType string) []Event {
	that.mu.Lock()
	defer that.mu.Unlock()

	var found []Event
	for _, event := range that.events {
		if event.Type == eventType {
			found = append(found, event)
		}
	}

	return found
}

func (that *recordingPresenter) count(eventType string) int {
	return len(that.ofType(eventType))
}

func (that *recordingPresenter) countdown() []int {
	var values []int
	for _, event := range that.ofType(EventCountdown) {
		values = append(values, event.Payload.(CountdownPayload).Value)
	}

	return values
}

func (that *recordingPresenter) lastCanStart() (bool, bool) {
	events := that.ofType(EventCanStart)
	if len(events) == 0 {
		return false, false
	}

	return events[len(events)-1].Payload.(CanStartPayload).Enabled, true
}

type recordingNarrator struct {
	mu    sync.Mutex
	texts []string
}

func (that *recordingNarrator) Say(text string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.texts = append(that.texts, text)
}

func (that *recordingNarrator) said() []string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return append([]string(nil), that.texts...)
}

// recordingTree remembers every path a client wrote.
type recordingTree struct {
	storage.Tree

	mu     sync.Mutex
	writes []string
}

func (that *recordingTree) record(paths ...string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.writes = append(that.writes, paths...)
}

func (that *recordingTree) written() []string {
	that.mu.Lock()
	defer that.mu.Unlock()

	paths := append([]string(nil), that.writes...)
	sort.Strings(paths)

	return paths
}

func (that *recordingTree) Set(ctx context.Context, path string, value any) error {
	that.record(path)
	return that.Tree.Set(ctx, path, value)
}

func (that *recordingTree) Update(ctx context.Context, path string, children map[string]any) error {
	for key := range children {
		that.record(path + "/" + key)
	}
	return that.Tree.Update(ctx, path, children)
}

func (that *recordingTree) Remove(ctx context.Context, path string) error {
	that.record(path)
	return that.Tree.Remove(ctx, path)
}

type client struct {
	oracle    *fakeOracle
	presenter *recordingPresenter
	narrator  *recordingNarrator
	deps      Deps
}

func newClient(shown entity.Gesture, clock clockwork.Clock) *client {
	oracle := newFakeOracle(shown)
	presenter := &recordingPresenter{}
	narrator := &recordingNarrator{}
	logger := testLogger()

	return &client{
		oracle:    oracle,
		presenter: presenter,
		narrator:  narrator,
		deps: Deps{
			Logger:    logger,
			Oracle:    oracle,
			Capturer:  gesture.NewCapturer(logger, oracle, clock, gesture.DefaultThreshold, 2, 5*time.Millisecond),
			Narrator:  narrator,
			Presenter: presenter,
			Clock:     clock,
			Timings:   testTimings(),
		},
	}
}
