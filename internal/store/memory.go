package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/partydeck/hangout-backend/internal/game"
)

// Memory is an in-process Store used for development and tests. A single
// mutex serializes all transactions, which trivially satisfies the
// entity-group isolation contract; writes are staged per transaction and
// only applied on success, so a failed transaction leaves no trace.
type Memory struct {
	mu           sync.Mutex
	hangouts     map[string]*game.Hangout
	games        map[string]*game.Game
	participants map[string]map[string]*game.Participant // gameID -> plusID
}

func NewMemory() *Memory {
	return &Memory{
		hangouts:     make(map[string]*game.Hangout),
		games:        make(map[string]*game.Game),
		participants: make(map[string]map[string]*game.Participant),
	}
}

func (m *Memory) Update(ctx context.Context, hangoutID string, fn func(tx game.Tx) error) error {
	return m.run(ctx, fn, false)
}

func (m *Memory) View(ctx context.Context, hangoutID string, fn func(tx game.Tx) error) error {
	return m.run(ctx, fn, true)
}

func (m *Memory) run(ctx context.Context, fn func(tx game.Tx) error, readOnly bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{store: m, readOnly: readOnly}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (m *Memory) ExpiredHangouts(ctx context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, h := range m.hangouts {
		g, ok := m.games[h.CurrentGameID]
		if !ok || g.TimeoutAt == nil || g.TimeoutAt.After(now) {
			continue
		}
		if g.State == game.PhaseStartRound || g.State == game.PhaseVoting {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// memTx stages writes until commit. Reads see staged writes first, then the
// committed maps, always through deep copies.
type memTx struct {
	store    *Memory
	readOnly bool

	hangouts     map[string]*game.Hangout
	games        map[string]*game.Game
	participants map[string]*game.Participant // gameID + "/" + plusID
}

func (t *memTx) Hangout(id string) (*game.Hangout, error) {
	if h, ok := t.hangouts[id]; ok {
		c := *h
		return &c, nil
	}
	if h, ok := t.store.hangouts[id]; ok {
		c := *h
		return &c, nil
	}
	return nil, game.ErrNotFound
}

func (t *memTx) PutHangout(h *game.Hangout) error {
	if t.readOnly {
		return errReadOnly
	}
	if t.hangouts == nil {
		t.hangouts = make(map[string]*game.Hangout)
	}
	c := *h
	t.hangouts[h.ID] = &c
	return nil
}

func (t *memTx) Game(id string) (*game.Game, error) {
	if g, ok := t.games[id]; ok {
		return g.Clone(), nil
	}
	if g, ok := t.store.games[id]; ok {
		return g.Clone(), nil
	}
	return nil, game.ErrNotFound
}

func (t *memTx) PutGame(g *game.Game) error {
	if t.readOnly {
		return errReadOnly
	}
	if t.games == nil {
		t.games = make(map[string]*game.Game)
	}
	t.games[g.ID] = g.Clone()
	return nil
}

func (t *memTx) Participant(gameID, plusID string) (*game.Participant, error) {
	if p, ok := t.participants[gameID+"/"+plusID]; ok {
		return p.Clone(), nil
	}
	if p, ok := t.store.participants[gameID][plusID]; ok {
		return p.Clone(), nil
	}
	return nil, game.ErrNotFound
}

func (t *memTx) Participants(gameID string) ([]*game.Participant, error) {
	byID := make(map[string]*game.Participant)
	for plusID, p := range t.store.participants[gameID] {
		byID[plusID] = p
	}
	for _, p := range t.participants {
		if p.GameID == gameID {
			byID[p.PlusID] = p
		}
	}
	out := make([]*game.Participant, 0, len(byID))
	for _, p := range byID {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlusID < out[j].PlusID })
	return out, nil
}

func (t *memTx) PutParticipant(p *game.Participant) error {
	if t.readOnly {
		return errReadOnly
	}
	if t.participants == nil {
		t.participants = make(map[string]*game.Participant)
	}
	t.participants[p.GameID+"/"+p.PlusID] = p.Clone()
	return nil
}

func (t *memTx) commit() {
	for id, h := range t.hangouts {
		t.store.hangouts[id] = h
	}
	for id, g := range t.games {
		t.store.games[id] = g
	}
	for _, p := range t.participants {
		byID := t.store.participants[p.GameID]
		if byID == nil {
			byID = make(map[string]*game.Participant)
			t.store.participants[p.GameID] = byID
		}
		byID[p.PlusID] = p
	}
}
