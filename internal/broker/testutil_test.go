package broker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeRunner is a scripted in-memory backendRunner. Each call consumes the
// next step; the last step repeats once the script is exhausted.
type fakeRunner struct {
	mu    sync.Mutex
	steps []fakeStep
	calls []fakeCall
	// gate, when set, is received from at the start of every call so tests
	// can hold the worker mid-request.
	gate chan struct{}
	// concurrent tracks overlapping run calls.
	inflight    int
	maxInflight int
}

type fakeStep struct {
	stdout string
	err    error
}

type fakeCall struct {
	args  []string
	stdin string
}

func (f *fakeRunner) run(_ context.Context, args []string, stdin string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	f.calls = append(f.calls, fakeCall{args: append([]string(nil), args...), stdin: stdin})
	var step fakeStep
	if len(f.steps) > 0 {
		step = f.steps[0]
		if len(f.steps) > 1 {
			f.steps = f.steps[1:]
		}
	}
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	f.inflight--
	f.mu.Unlock()
	return []byte(step.stdout), nil, step.err
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRunner) call(i int) fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

// stream builds a minimal backend NDJSON stdout: one assistant record and
// one terminal result record.
func stream(sessionID, text string) string {
	return fmt.Sprintf(`{"type":"system","subtype":"init","session_id":%q}
{"type":"assistant","session_id":%q,"message":{"content":[{"type":"text","text":%q}]}}
{"type":"result","subtype":"success","session_id":%q,"result":%q,"is_error":false}
`, sessionID, sessionID, text, sessionID, text)
}

// newTestBroker builds a Broker around the given runner with retry sleeps
// elided, and starts its worker.
func newTestBroker(t *testing.T, cfg BrokerConfig, runner backendRunner) *Broker {
	t.Helper()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.DisallowedTools == nil {
		cfg.DisallowedTools = defaultDisallowedTools
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	b := &Broker{
		cfg:       cfg,
		log:       zerolog.Nop(),
		breaker:   newCircuitBreaker(cfg.FailureThreshold, cfg.Cooldown),
		session:   &sessionTracker{},
		publisher: cfg.Publisher,
		runner:    runner,
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		sleep:     func(time.Duration) {},
		startTime: time.Now(),
	}
	go b.workLoop()
	t.Cleanup(b.Close)
	return b
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

func hasArg(args []string, flag, value string) bool {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}
