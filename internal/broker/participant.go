package broker

import (
	"context"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Participant batches records for one topic and flushes them as a single
// produce burst on Commit, the way a two-phase participant would flush a
// staged write only once told to commit.
type Participant struct {
	name   string
	topic  string
	client *kgo.Client

	mu      sync.Mutex
	pending []*kgo.Record
}

// New builds a broker Participant for topic, using an already-configured
// franz-go client.
func New(name, topic string, client *kgo.Client) *Participant {
	return &Participant{name: name, topic: topic, client: client}
}

func (p *Participant) Name() string { return p.name }

// Stage appends a record to the pending batch without producing it yet.
func (p *Participant) Stage(key, value []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, &kgo.Record{Topic: p.topic, Key: key, Value: value})
}

// Prepare is a no-op: franz-go has no server-side prepare phase, so
// readiness is simply "the client is configured".
func (p *Participant) Prepare(context.Context) error {
	return nil
}

// Commit produces every staged record and waits for acknowledgement.
func (p *Participant) Commit(ctx context.Context) error {
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	results := p.client.ProduceSync(ctx, batch...)
	return results.FirstErr()
}

// Rollback discards the staged batch without producing anything.
func (p *Participant) Rollback(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
	return nil
}
