package broker

import (
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied when corresponding BrokerConfig fields are unset.
const (
	defaultFailureThreshold = 3
	defaultCooldown         = 30 * time.Second
	defaultMaxRetries       = 2
	defaultRetryDelay       = 1 * time.Second
	defaultInvokeTimeout    = 60 * time.Second
	defaultKillGrace        = 5 * time.Second
	defaultModel            = "sonnet"
)

// defaultDisallowedTools is the deny list passed to the backend so it runs
// with zero side-effect capabilities: nothing that touches the filesystem,
// network, or shell.
var defaultDisallowedTools = []string{
	"Bash", "Edit", "MultiEdit", "Write", "NotebookEdit",
	"Read", "Glob", "Grep", "LS",
	"WebFetch", "WebSearch", "Task",
}

// degradedText is returned synchronously while the circuit is open.
const degradedText = "I'm having trouble reaching my reasoning backend right now. " +
	"Please try again in a moment."

// BrokerConfig encapsulates all tunables for Broker construction.
type BrokerConfig struct {
	// BackendBin is the backend executable. Required.
	BackendBin string
	// Model selects the backend model (passed as --model).
	Model string

	FailureThreshold int
	Cooldown         time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	InvokeTimeout    time.Duration
	KillGrace        time.Duration
	// MaxQueueDepth bounds the request queue; 0 means unbounded.
	MaxQueueDepth int
	// DisallowedTools overrides the default backend capability deny list.
	DisallowedTools []string

	// Collaborators. All optional; nil disables the concern.
	Prompts     PromptStore
	Memory      MemoryStore
	Transcripts TranscriptStore
	Publisher   EventPublisher

	Logger zerolog.Logger
}

// NewWithConfig constructs a Broker from BrokerConfig and starts its worker.
func NewWithConfig(cfg BrokerConfig) *Broker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.InvokeTimeout <= 0 {
		cfg.InvokeTimeout = defaultInvokeTimeout
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = defaultKillGrace
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
		log:       cfg.Logger,
		breaker:   newCircuitBreaker(cfg.FailureThreshold, cfg.Cooldown),
		session:   &sessionTracker{},
		publisher: cfg.Publisher,
		runner: &cliRunner{
			bin:     cfg.BackendBin,
			timeout: cfg.InvokeTimeout,
			grace:   cfg.KillGrace,
		},
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		sleep:     time.Sleep,
		startTime: time.Now(),
	}
	go b.workLoop()
	return b
}
