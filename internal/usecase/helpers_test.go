package usecase

import (
	"sync"

	"github.com/fairyhunter13/pdf-ingest/internal/domain"
)

// capturePub records published messages in order; Err makes every publish
// fail.
type capturePub struct {
	mu   sync.Mutex
	Err  error
	msgs []domain.Message
}

func (p *capturePub) Publish(_ domain.Context, m domain.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.msgs = append(p.msgs, m)
	return nil
}

func (p *capturePub) all() []domain.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Message(nil), p.msgs...)
}

func (p *capturePub) byType(t domain.EventType) []domain.Message {
	var out []domain.Message
	for _, m := range p.all() {
		if m.Env().EventType == t {
			out = append(out, m)
		}
	}
	return out
}

func (p *capturePub) one(t domain.EventType) domain.Message {
	msgs := p.byType(t)
	if len(msgs) != 1 {
		return nil
	}
	return msgs[0]
}
