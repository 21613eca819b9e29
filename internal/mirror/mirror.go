// Package mirror keeps an in-memory copy of the surgery collection, fed by
// full reloads and by change-feed deltas. The backend remains the source
// of truth; the mirror only follows it, applying deltas in arrival order
// with last writer wins.
package mirror

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/surgiplan/surgery-scheduling/internal/surgery"
)

type Mirror struct {
	mu        sync.RWMutex
	surgeries []surgery.Surgery
	index     map[uuid.UUID]int
}

func New() *Mirror {
	return &Mirror{
		index: make(map[uuid.UUID]int),
	}
}

// Load replaces the whole collection, e.g. after the initial read or when
// the feed had to be re-established.
func (m *Mirror) Load(surgeries []surgery.Surgery) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.surgeries = make([]surgery.Surgery, 0, len(surgeries))
	for i := range surgeries {
		m.surgeries = append(m.surgeries, surgeries[i].Clone())
	}
	m.reindex()
}

// Apply folds one delta into the collection: insert appends if absent,
// update replaces by id (inserting if the insert delta was missed), delete
// removes by id. Every mutation goes through here or Load; there is no
// second write path.
func (m *Mirror) Apply(d surgery.Delta) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch d.Op {
	case surgery.OpInsert:
		if d.Surgery == nil {
			return
		}
		if _, ok := m.index[d.ID]; ok {
			return
		}
		m.surgeries = append(m.surgeries, d.Surgery.Clone())
		m.index[d.ID] = len(m.surgeries) - 1

	case surgery.OpUpdate:
		if d.Surgery == nil {
			return
		}
		if i, ok := m.index[d.ID]; ok {
			m.surgeries[i] = d.Surgery.Clone()
			return
		}
		m.surgeries = append(m.surgeries, d.Surgery.Clone())
		m.index[d.ID] = len(m.surgeries) - 1

	case surgery.OpDelete:
		i, ok := m.index[d.ID]
		if !ok {
			return
		}
		m.surgeries = append(m.surgeries[:i], m.surgeries[i+1:]...)
		m.reindex()
	}
}

func (m *Mirror) reindex() {
	m.index = make(map[uuid.UUID]int, len(m.surgeries))
	for i := range m.surgeries {
		m.index[m.surgeries[i].ID] = i
	}
}

// Snapshot returns a deep copy of the collection for the pure
// calendar/report functions to chew on; mutating it cannot reach the
// mirror's backing state.
func (m *Mirror) Snapshot() []surgery.Surgery {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]surgery.Surgery, 0, len(m.surgeries))
	for i := range m.surgeries {
		out = append(out, m.surgeries[i].Clone())
	}
	return out
}

func (m *Mirror) Get(id uuid.UUID) (*surgery.Surgery, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.index[id]
	if !ok {
		return nil, false
	}
	sg := m.surgeries[i].Clone()
	return &sg, true
}

func (m *Mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.surgeries)
}

// Follow consumes raw feed payloads until the channel closes or ctx is
// cancelled. Undecodable payloads are logged and skipped rather than
// stalling the feed.
func (m *Mirror) Follow(ctx context.Context, payloads <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-payloads:
			if !ok {
				return
			}
			d, err := surgery.DecodeDelta(payload)
			if err != nil {
				log.Warn().Err(err).Msg("skip malformed delta")
				continue
			}
			m.Apply(d)
		}
	}
}
