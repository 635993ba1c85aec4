package game

import (
	"math/rand"
	"time"
)

// Phase is the authoritative logical state of a Game. "scores" is transient:
// the scores transition immediately rolls over into the next round or game,
// so clients never observe it at rest.
type Phase string

const (
	PhaseNew        Phase = "new"
	PhaseStartRound Phase = "start_round"
	PhaseVoting     Phase = "voting"
	PhaseScores     Phase = "scores"
)

// Hangout is the root entity of one multiplayer session. It outlives any
// single game and only ever points at the active one.
type Hangout struct {
	ID            string `gorm:"primaryKey;size:64"`
	CurrentGameID string `gorm:"size:64"`
	CreatedAt     time.Time
}

// Game is one playthrough within a hangout, composed of up to
// Config.RoundsPerGame rounds. Decks hold card indices into the static
// catalog; dealt or drawn indices are removed, so an index never appears
// twice within the same game.
type Game struct {
	ID              string `gorm:"primaryKey;size:64"`
	HangoutID       string `gorm:"index;size:64;not null"`
	State           Phase  `gorm:"size:16;not null"`
	QuestionDeck    IntList
	AnswerDeck      IntList
	CurrentQuestion *int
	CurrentRound    int
	TimeoutAt       *time.Time
	StartTime       time.Time
	EndTime         *time.Time
}

// DealHand draws handSize cards from the answer deck into the participant's
// hand, without replacement. Callers must not re-deal a live hand.
func (g *Game) DealHand(p *Participant, handSize int) error {
	if len(p.Cards) > 0 {
		return ErrHandAlreadyDealt
	}
	if len(g.AnswerDeck) < handSize {
		return ErrInsufficientCards
	}
	hand := make(IntList, 0, handSize)
	for i := 0; i < handSize; i++ {
		n := rand.Intn(len(g.AnswerDeck))
		hand = append(hand, g.AnswerDeck[n])
		g.AnswerDeck = append(g.AnswerDeck[:n], g.AnswerDeck[n+1:]...)
	}
	p.Cards = hand
	return nil
}

// SelectNewQuestion draws a random question card, sets it as the current
// prompt and removes it from the deck.
func (g *Game) SelectNewQuestion() (int, error) {
	if len(g.QuestionDeck) == 0 {
		return 0, ErrEmptyDeck
	}
	n := rand.Intn(len(g.QuestionDeck))
	q := g.QuestionDeck[n]
	g.QuestionDeck = append(g.QuestionDeck[:n], g.QuestionDeck[n+1:]...)
	g.CurrentQuestion = &q
	return q, nil
}

// Clone returns a deep copy. The in-memory store hands copies to transaction
// bodies so a failed transaction never leaks partial mutations.
func (g *Game) Clone() *Game {
	c := *g
	c.QuestionDeck = append(IntList(nil), g.QuestionDeck...)
	c.AnswerDeck = append(IntList(nil), g.AnswerDeck...)
	if g.CurrentQuestion != nil {
		q := *g.CurrentQuestion
		c.CurrentQuestion = &q
	}
	if g.TimeoutAt != nil {
		t := *g.TimeoutAt
		c.TimeoutAt = &t
	}
	if g.EndTime != nil {
		t := *g.EndTime
		c.EndTime = &t
	}
	return &c
}

// sequence returns [0, n) in order; decks start as the full catalog and
// shrink as cards are drawn at random.
func sequence(n int) IntList {
	deck := make(IntList, n)
	for i := range deck {
		deck[i] = i
	}
	return deck
}
