package publisher

import (
	"context"
	"fmt"
	"sync"

	"github.com/Johnr24/neso-octowatch/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// Sink delivers a published state mapping to the external consumer.
type Sink interface {
	Publish(ctx context.Context, states types.States) error
	Close() error
}

// Publisher holds the externally-visible state mapping. Each cycle's output
// is merged onto the retained mapping so the key set stays complete even
// when one dataset fails: its keys keep the last good value. Replacement is
// atomic under the lock, readers never see a partial interleaving.
type Publisher struct {
	mu      sync.RWMutex
	current types.States
}

// New creates an empty Publisher.
func New() *Publisher {
	return &Publisher{current: types.States{}}
}

// Seed installs a previously-persisted mapping, used at startup so keys
// published before a restart stay available.
func (p *Publisher) Seed(states types.States) {
	p.mu.Lock()
	defer p.mu.Unlock()
	merged := p.current.Clone()
	for k, v := range states {
		merged[k] = v
	}
	p.current = merged
}

// Apply merges the given updates onto the current mapping in order (the
// later-computed value wins on collision) and returns the full merged
// mapping.
func (p *Publisher) Apply(updates ...types.States) types.States {
	p.mu.Lock()
	defer p.mu.Unlock()
	merged := p.current.Clone()
	for _, u := range updates {
		for k, v := range u {
			merged[k] = v
		}
	}
	p.current = merged
	return merged.Clone()
}

// Current returns the full current mapping.
func (p *Publisher) Current() types.States {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current.Clone()
}

// Get returns one sensor's state.
func (p *Publisher) Get(key string) (types.SensorState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.current[key]
	return s, ok
}

// ConfiguredSink sets up the publish sink based on flags.
func ConfiguredSink() Sink {
	sinkName := lflag.String("publish-sink", "file", "Sink for published states (available: file, redis, none)")

	var s struct{ Sink }

	fs := configuredFileSink()
	rs := configuredRedisSink()

	lflag.Do(func() {
		switch *sinkName {
		case "file":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("file sink validation failed: %v", err))
			}
			s.Sink = fs
		case "redis":
			if err := rs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("redis sink init failed: %v", err))
			}
			s.Sink = rs
		case "none":
			s.Sink = &MemorySink{}
		default:
			panic(fmt.Sprintf("unknown publish sink: %s", *sinkName))
		}
	})

	return &s
}

// MemorySink retains the last published mapping in memory. It backs the
// "none" sink option and tests.
type MemorySink struct {
	mu   sync.Mutex
	last types.States
}

func (m *MemorySink) Publish(_ context.Context, states types.States) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = states.Clone()
	return nil
}

// Last returns the most recently published mapping.
func (m *MemorySink) Last() types.States {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last.Clone()
}

func (m *MemorySink) Close() error { return nil }
