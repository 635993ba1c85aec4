package states

import "sync"

// selectionCache maps a round's selected card numbers back to the players
// who selected them, so a vote (expressed as a card number) can be resolved
// to its target. It is a non-authoritative accelerator keyed by
// (game id, round): entries may be missing at any time and are rebuilt from
// the persisted SelectedCard fields on miss. It is never the source of
// truth.
type selectionCache struct {
	mu     sync.Mutex
	rounds map[selectionKey]map[int]string // card number -> plus id
}

type selectionKey struct {
	gameID string
	round  int
}

func newSelectionCache() *selectionCache {
	return &selectionCache{rounds: make(map[selectionKey]map[int]string)}
}

func (c *selectionCache) record(gameID string, round, card int, plusID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := selectionKey{gameID, round}
	m := c.rounds[key]
	if m == nil {
		m = make(map[int]string)
		c.rounds[key] = m
	}
	m[card] = plusID
}

func (c *selectionCache) lookup(gameID string, round, card int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	plusID, ok := c.rounds[selectionKey{gameID, round}][card]
	return plusID, ok
}

func (c *selectionCache) replace(gameID string, round int, selections map[int]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rounds[selectionKey{gameID, round}] = selections
}

func (c *selectionCache) dropGame(gameID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.rounds {
		if key.gameID == gameID {
			delete(c.rounds, key)
		}
	}
}
