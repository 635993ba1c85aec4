package game

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Config carries the tunable game rules. Decks are index ranges into the
// static card catalog, so only the counts are needed here.
type Config struct {
	HandSize      int
	RoundsPerGame int
	QuestionCount int
	AnswerCount   int
	RoundTimeout  time.Duration
}

// Tx is the view of a store transaction the lifecycle operations need. All
// records reachable through one Tx belong to a single hangout's entity
// group; the store guarantees the whole transaction commits atomically.
type Tx interface {
	Hangout(id string) (*Hangout, error)
	PutHangout(h *Hangout) error
	Game(id string) (*Game, error)
	PutGame(g *Game) error
	Participant(gameID, plusID string) (*Participant, error)
	Participants(gameID string) ([]*Participant, error)
	PutParticipant(p *Participant) error
}

// CurrentGame resolves the hangout's active game. Returns ErrNotFound when
// the hangout does not exist or has no game yet.
func CurrentGame(tx Tx, hangoutID string) (*Game, error) {
	h, err := tx.Hangout(hangoutID)
	if err != nil {
		return nil, err
	}
	if h.CurrentGameID == "" {
		return nil, ErrNotFound
	}
	return tx.Game(h.CurrentGameID)
}

// GetOrCreateCurrentGame resolves the hangout's active game, lazily creating
// the hangout and its first game on first contact.
func GetOrCreateCurrentGame(tx Tx, hangoutID string, cfg Config, now time.Time) (*Game, error) {
	h, err := tx.Hangout(hangoutID)
	if errors.Is(err, ErrNotFound) {
		h = &Hangout{ID: hangoutID, CreatedAt: now}
	} else if err != nil {
		return nil, err
	}
	if h.CurrentGameID != "" {
		return tx.Game(h.CurrentGameID)
	}
	g, err := newGame(hangoutID, cfg, now)
	if err != nil {
		return nil, err
	}
	if err := tx.PutGame(g); err != nil {
		return nil, err
	}
	h.CurrentGameID = g.ID
	if err := tx.PutHangout(h); err != nil {
		return nil, err
	}
	return g, nil
}

// JoinGame adds the player to the game, dealing a hand on first contact.
// Rejoining only flips the participant back to playing; the existing hand,
// channel handles, selection and scores are untouched. The minted channel
// must be registered with the notification hub after the transaction
// commits; minting is pure id generation so a retried transaction leaks
// nothing.
func JoinGame(tx Tx, g *Game, plusID string, cfg Config) (*Participant, error) {
	p, err := tx.Participant(g.ID, plusID)
	if errors.Is(err, ErrNotFound) {
		p = &Participant{
			GameID:       g.ID,
			PlusID:       plusID,
			ChannelID:    uuid.NewString(),
			ChannelToken: uuid.NewString(),
		}
		if err := g.DealHand(p, cfg.HandSize); err != nil {
			return nil, err
		}
		if err := tx.PutGame(g); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	p.Playing = true
	if err := tx.PutParticipant(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Leave marks the participant as no longer playing, excluding them from
// quorum checks, scoring and fanout. The channel token must match the one
// issued at join.
func Leave(tx Tx, g *Game, plusID, channelToken string) error {
	p, err := tx.Participant(g.ID, plusID)
	if err != nil {
		return err
	}
	if p.ChannelToken != channelToken {
		return ErrTokenMismatch
	}
	p.Playing = false
	return tx.PutParticipant(p)
}

// StartNewRound begins the next round in place: new question, round counter
// advanced, per-round selections, votes and scores cleared for every
// participant. Fails with ErrRoundLimit once the game has used up its
// configured rounds.
func StartNewRound(tx Tx, g *Game, cfg Config, now time.Time) error {
	if g.CurrentRound+1 >= cfg.RoundsPerGame {
		return ErrRoundLimit
	}
	participants, err := tx.Participants(g.ID)
	if err != nil {
		return err
	}
	for _, p := range participants {
		p.resetForRound()
		if err := tx.PutParticipant(p); err != nil {
			return err
		}
	}
	if _, err := g.SelectNewQuestion(); err != nil {
		return err
	}
	g.State = PhaseStartRound
	g.CurrentRound++
	deadline := now.Add(cfg.RoundTimeout)
	g.TimeoutAt = &deadline
	return tx.PutGame(g)
}

// StartNewGame ends the hangout's current game and replaces it with a fresh
// one. Active participants migrate: a new record per player with the same
// PlusID, carried-over channel handles and hangout score, and a newly dealt
// hand. Returns the new game and its participants.
func StartNewGame(tx Tx, hangoutID string, cfg Config, now time.Time) (*Game, []*Participant, error) {
	h, err := tx.Hangout(hangoutID)
	if err != nil {
		return nil, nil, err
	}
	old, err := tx.Game(h.CurrentGameID)
	if err != nil {
		return nil, nil, err
	}
	old.EndTime = &now
	if err := tx.PutGame(old); err != nil {
		return nil, nil, err
	}
	ng, err := newGame(hangoutID, cfg, now)
	if err != nil {
		return nil, nil, err
	}
	oldParticipants, err := tx.Participants(old.ID)
	if err != nil {
		return nil, nil, err
	}
	var migrated []*Participant
	for _, op := range oldParticipants {
		if !op.Playing {
			continue
		}
		p := &Participant{
			GameID:       ng.ID,
			PlusID:       op.PlusID,
			ChannelID:    op.ChannelID,
			ChannelToken: op.ChannelToken,
			Playing:      true,
			HangoutScore: op.HangoutScore,
		}
		if err := ng.DealHand(p, cfg.HandSize); err != nil {
			return nil, nil, err
		}
		if err := tx.PutParticipant(p); err != nil {
			return nil, nil, err
		}
		migrated = append(migrated, p)
	}
	if err := tx.PutGame(ng); err != nil {
		return nil, nil, err
	}
	h.CurrentGameID = ng.ID
	if err := tx.PutHangout(h); err != nil {
		return nil, nil, err
	}
	return ng, migrated, nil
}

// newGame builds a game with full shuffled-by-draw decks, the first question
// already drawn, and round 0 open for card selection.
func newGame(hangoutID string, cfg Config, now time.Time) (*Game, error) {
	g := &Game{
		ID:           uuid.NewString(),
		HangoutID:    hangoutID,
		State:        PhaseStartRound,
		QuestionDeck: sequence(cfg.QuestionCount),
		AnswerDeck:   sequence(cfg.AnswerCount),
		StartTime:    now,
	}
	if _, err := g.SelectNewQuestion(); err != nil {
		return nil, err
	}
	deadline := now.Add(cfg.RoundTimeout)
	g.TimeoutAt = &deadline
	return g, nil
}
