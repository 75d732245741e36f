package broker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatd/pkg/types"
)

// Broker owns the backend. All chat requests pass through its FIFO queue
// and are executed one at a time by a single worker goroutine; the backend
// CLI cannot interleave conversations, so serialization is the correctness
// mechanism, not just a throttle.
type Broker struct {
	cfg       BrokerConfig
	log       zerolog.Logger
	breaker   *circuitBreaker
	session   *sessionTracker
	publisher EventPublisher
	runner    backendRunner
	sleep     func(time.Duration)
	startTime time.Time

	mu       sync.Mutex
	queue    []*request
	inflight bool
	closed   bool

	requestsTotal uint64
	failuresTotal uint64

	wake chan struct{}
	quit chan struct{}
	once sync.Once
}

// Chat submits a message and blocks until the broker produces a response,
// the context is cancelled, or the queue rejects it. resumeSessionID and
// topic are optional; see sessionTracker for how they interact.
func (b *Broker) Chat(ctx context.Context, message, resumeSessionID, topic string) (Response, error) {
	req := &request{
		id:      uuid.NewString(),
		message: message,
		resume:  resumeSessionID,
		topic:   topic,
		done:    make(chan result, 1),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return Response{}, closedError{}
	}
	if b.cfg.MaxQueueDepth > 0 && len(b.queue) >= b.cfg.MaxQueueDepth {
		b.mu.Unlock()
		b.publisher.Publish(Event{Name: "request_rejected", RequestID: req.id,
			Fields: map[string]any{"reason": "overloaded"}})
		return Response{}, overloadedError{depth: b.cfg.MaxQueueDepth}
	}
	b.queue = append(b.queue, req)
	b.requestsTotal++
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}

	select {
	case res := <-req.done:
		return res.resp, res.err
	case <-ctx.Done():
		// The worker will still run the request and deliver into the
		// buffered channel; the result is simply discarded.
		return Response{}, ctx.Err()
	}
}

// ResetSession clears the live conversation. The next request starts a new
// backend session even if it carries a resume id.
func (b *Broker) ResetSession() {
	b.session.reset()
	b.log.Info().Msg("session reset")
	b.publisher.Publish(Event{Name: "session_reset"})
}

// CircuitState returns the breaker's current state.
func (b *Broker) CircuitState() CircuitState {
	return b.breaker.currentState()
}

// Status reports a point-in-time snapshot for the status endpoint.
func (b *Broker) Status() types.StatusResponse {
	b.mu.Lock()
	queueLen := len(b.queue)
	inflight := b.inflight
	requests := b.requestsTotal
	failures := b.failuresTotal
	b.mu.Unlock()
	sessionID, topic := b.session.current()
	now := time.Now()
	return types.StatusResponse{
		CircuitState:   string(b.breaker.currentState()),
		QueueLen:       queueLen,
		Inflight:       inflight,
		SessionID:      sessionID,
		Topic:          topic,
		RequestsTotal:  requests,
		FailuresTotal:  failures,
		UptimeSeconds:  int64(now.Sub(b.startTime).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
}

// Ready reports whether the broker accepts requests.
func (b *Broker) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed
}

// Close stops the worker. Queued requests receive a shutdown error.
func (b *Broker) Close() {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		pending := b.queue
		b.queue = nil
		b.mu.Unlock()
		close(b.quit)
		for _, req := range pending {
			req.done <- result{err: closedError{}}
		}
	})
}

// workLoop is the single worker goroutine: it drains the queue in FIFO
// order, one backend invocation at a time, until Close.
func (b *Broker) workLoop() {
	for {
		select {
		case <-b.quit:
			return
		case <-b.wake:
		}
		for {
			b.mu.Lock()
			if len(b.queue) == 0 || b.closed {
				b.mu.Unlock()
				break
			}
			req := b.queue[0]
			b.queue = b.queue[1:]
			b.inflight = true
			b.mu.Unlock()

			res := b.process(req)
			req.done <- res

			b.mu.Lock()
			b.inflight = false
			b.mu.Unlock()
		}
	}
}

// process executes one request end to end: circuit gate, session decision,
// backend invocation with retries, then session/transcript/memory updates.
func (b *Broker) process(req *request) result {
	if !b.breaker.canExecute() {
		b.log.Warn().Str("request_id", req.id).Msg("circuit open, returning degraded response")
		b.publisher.Publish(Event{Name: "request_degraded", RequestID: req.id})
		return result{resp: Response{Text: degradedText, IsError: true}}
	}

	resumeID := b.session.resumeID(req.resume, req.topic)
	var instructions string
	if resumeID == "" {
		instructions = b.instructionsFor(req.topic)
	}
	args := b.buildArgs(resumeID, instructions)

	start := time.Now()
	text, sessionID, err := b.invokeWithRetry(context.Background(), req, args)
	if err != nil {
		b.breaker.recordFailure()
		b.mu.Lock()
		b.failuresTotal++
		b.mu.Unlock()
		b.publisher.Publish(Event{Name: "request_failed", RequestID: req.id,
			Fields: map[string]any{"error": err.Error()}})
		return result{err: err}
	}
	b.breaker.recordSuccess()

	if b.cfg.Memory != nil {
		clean, updates := b.cfg.Memory.Extract(text)
		text = clean
		if len(updates) > 0 {
			go func() {
				if applyErr := b.cfg.Memory.Apply(updates); applyErr != nil {
					b.log.Error().Err(applyErr).Msg("persisting memory updates failed")
				}
			}()
		}
	}

	b.recordTranscript(req, resumeID, sessionID, text)
	b.session.set(sessionID, req.topic)

	b.log.Info().Str("request_id", req.id).Str("session_id", sessionID).
		Dur("duration", time.Since(start)).Msg("request completed")
	b.publisher.Publish(Event{Name: "request_completed", RequestID: req.id,
		Fields: map[string]any{"session_id": sessionID}})
	return result{resp: Response{Text: text, SessionID: sessionID}}
}

// instructionsFor assembles the new-session system prompt: topic
// instructions followed by the remembered-facts section.
func (b *Broker) instructionsFor(topic string) string {
	var instructions string
	if b.cfg.Prompts != nil {
		instructions = b.cfg.Prompts.Instructions(topic)
	}
	if b.cfg.Memory != nil {
		if section := b.cfg.Memory.ContextSection(); section != "" {
			if instructions != "" {
				instructions += "\n\n"
			}
			instructions += section
		}
	}
	return instructions
}

// recordTranscript appends the exchange; transcript failures are logged,
// never surfaced to the caller.
func (b *Broker) recordTranscript(req *request, resumeID, sessionID, text string) {
	if b.cfg.Transcripts == nil {
		return
	}
	id := sessionID
	if id == "" {
		// The backend did not report a session id; file under a generated
		// one so the exchange is still recorded.
		id = uuid.NewString()
	}
	if resumeID == "" {
		if err := b.cfg.Transcripts.StartSession(id, req.topic); err != nil {
			b.log.Error().Err(err).Str("session_id", id).Msg("starting transcript failed")
		}
	}
	if err := b.cfg.Transcripts.AppendMessage(id, "user", req.message); err != nil {
		b.log.Error().Err(err).Str("session_id", id).Msg("appending transcript failed")
	}
	if err := b.cfg.Transcripts.AppendMessage(id, "assistant", text); err != nil {
		b.log.Error().Err(err).Str("session_id", id).Msg("appending transcript failed")
	}
}
