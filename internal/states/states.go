// Package states implements the game state machine. Each resting phase has
// an ordered list of candidate transitions, each a guard/effect pair. A
// TryTransition call evaluates guards and applies at most one effect inside
// a single store transaction, so two concurrent callers can never both
// observe a satisfied guard and both fire its effect. Notifications and
// selection-cache writes produced by an effect are queued and applied only
// after the transaction commits.
package states

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/partydeck/hangout-backend/internal/game"
	"github.com/partydeck/hangout-backend/internal/store"
	"github.com/partydeck/hangout-backend/pkg/types"
)

// Action names the client (or sweeper) intent driving a transition attempt.
type Action string

const (
	ActionSelectCard Action = "select_card"
	ActionVote       Action = "vote"
	ActionTimeout    Action = "timeout_advance"
)

// Kind discriminates transition outcomes. Skipped means no guard matched:
// preconditions were not met, which is not an error.
type Kind string

const (
	KindSuccess  Kind = "success"
	KindRejected Kind = "rejected"
	KindSkipped  Kind = "skipped"
)

type Result struct {
	Kind    Kind
	Reason  string         // human-readable rejection reason
	Payload map[string]any // accumulated success payload
}

func success(payload map[string]any) Result {
	return Result{Kind: KindSuccess, Payload: payload}
}

func reject(format string, args ...any) Result {
	return Result{Kind: KindRejected, Reason: fmt.Sprintf(format, args...)}
}

var skipped = Result{Kind: KindSkipped}

// rollback aborts the surrounding store transaction after a rejected or
// skipped transition, guaranteeing no partial mutation survives.
var rollback = errors.New("transition did not fire")

// Request carries one inbound action. CardNumber doubles as the card being
// selected (select_card) and the card being voted for (vote); card 0 is
// valid, absence is the nil pointer.
type Request struct {
	HangoutID  string
	PlusID     string
	CardNumber *int
	Action     Action
}

type guardFunc func(m *Machine, tx game.Tx, g *game.Game, req Request) (bool, error)
type effectFunc func(m *Machine, tx game.Tx, g *game.Game, req Request, pending *pending) (Result, error)

type transition struct {
	target game.Phase
	guard  guardFunc
	effect effectFunc
}

// nextStates encodes, per resting phase, the candidate transitions in probe
// order. Guards are mutually exclusive by construction: the action-driven
// self-loops match on the action name, the timeout transitions additionally
// require an expired deadline, and the quorum transitions require every
// active participant to have completed the round's action.
var nextStates = map[game.Phase][]transition{
	game.PhaseStartRound: {
		{target: game.PhaseStartRound, guard: guardSelectCard, effect: effectSelectCard},
		{target: game.PhaseStartRound, guard: guardSelectTimeout, effect: effectSelectTimeout},
		{target: game.PhaseVoting, guard: guardAllSelected, effect: effectToVoting},
	},
	game.PhaseVoting: {
		{target: game.PhaseVoting, guard: guardVote, effect: effectVote},
		{target: game.PhaseVoting, guard: guardVoteTimeout, effect: effectVoteTimeout},
		{target: game.PhaseScores, guard: guardAllVoted, effect: effectToScores},
	},
}

// QuorumTarget is the phase a completed round quorum advances to from the
// given resting phase. Handlers probe it explicitly after every action.
func QuorumTarget(phase game.Phase) (game.Phase, bool) {
	switch phase {
	case game.PhaseStartRound:
		return game.PhaseVoting, true
	case game.PhaseVoting:
		return game.PhaseScores, true
	default:
		return "", false
	}
}

// Notifier is the abstract "notify participant" capability; delivery is
// fire-and-forget and never influences a transition's outcome.
type Notifier interface {
	Notify(channelID string, payload []byte)
}

type Machine struct {
	store    store.Store
	notifier Notifier
	cache    *selectionCache
	cfg      game.Config
	log      *zap.Logger
	now      func() time.Time
}

func NewMachine(st store.Store, n Notifier, cfg game.Config, log *zap.Logger) *Machine {
	return &Machine{
		store:    st,
		notifier: n,
		cache:    newSelectionCache(),
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// TryTransition attempts a transition out of phase `from`. With an explicit
// target it evaluates only that transition's guard, answering Skipped when
// the preconditions are not met. With target "" it fires the effect of the
// first transition whose guard holds. Guard evaluation plus effect run in
// one atomic transaction against the hangout's entity group.
func (m *Machine) TryTransition(ctx context.Context, from, target game.Phase, req Request) Result {
	res := skipped
	var pend pending
	err := m.store.Update(ctx, req.HangoutID, func(tx game.Tx) error {
		pend = pending{} // reset: the body may rerun on contention
		g, err := game.CurrentGame(tx, req.HangoutID)
		if errors.Is(err, game.ErrNotFound) {
			res = reject("Game for hangout %s not found", req.HangoutID)
			return rollback
		}
		if err != nil {
			return err
		}
		for _, t := range nextStates[from] {
			if target != "" && t.target != target {
				continue
			}
			ok, err := t.guard(m, tx, g, req)
			if err != nil {
				return err
			}
			if !ok {
				if target != "" {
					res = skipped
					return rollback
				}
				continue
			}
			res, err = t.effect(m, tx, g, req, &pend)
			if err != nil {
				return err
			}
			if res.Kind != KindSuccess {
				return rollback
			}
			return nil
		}
		res = skipped
		return rollback
	})
	switch {
	case err == nil:
		m.flush(pend)
		return res
	case errors.Is(err, rollback):
		return res
	case errors.Is(err, store.ErrContention):
		return reject("Hangout is busy, please retry")
	default:
		m.log.Error("transition failed",
			zap.String("hangout_id", req.HangoutID),
			zap.String("from", string(from)),
			zap.String("action", string(req.Action)),
			zap.Error(err))
		return reject("Internal error")
	}
}

// CurrentPhase reads the resting phase of the hangout's active game.
func (m *Machine) CurrentPhase(ctx context.Context, hangoutID string) (game.Phase, error) {
	var phase game.Phase
	err := m.store.View(ctx, hangoutID, func(tx game.Tx) error {
		g, err := game.CurrentGame(tx, hangoutID)
		if err != nil {
			return err
		}
		phase = g.State
		return nil
	})
	return phase, err
}

// pending accumulates side effects an effect wants applied after commit:
// notification payloads, selection-cache writes, and cache invalidations.
type pending struct {
	notes      []note
	selections []selectionNote
	drops      []string // game ids whose cached rounds are stale
}

type note struct {
	channelID string
	msg       types.ServerMessage
}

type selectionNote struct {
	gameID string
	round  int
	card   int
	plusID string
}

func (p *pending) notify(channelID string, msg types.ServerMessage) {
	p.notes = append(p.notes, note{channelID: channelID, msg: msg})
}

func (p *pending) broadcast(participants []*game.Participant, msg types.ServerMessage) {
	for _, pt := range participants {
		if pt.Playing {
			p.notify(pt.ChannelID, msg)
		}
	}
}

func (p *pending) recordSelection(gameID string, round, card int, plusID string) {
	p.selections = append(p.selections, selectionNote{gameID, round, card, plusID})
}

func (m *Machine) flush(pend pending) {
	for _, s := range pend.selections {
		m.cache.record(s.gameID, s.round, s.card, s.plusID)
	}
	for _, id := range pend.drops {
		m.cache.dropGame(id)
	}
	for _, n := range pend.notes {
		payload, err := json.Marshal(n.msg)
		if err != nil {
			m.log.Warn("marshal notification", zap.Error(err))
			continue
		}
		m.notifier.Notify(n.channelID, payload)
	}
}

// activeParticipants filters to playing participants.
func activeParticipants(tx game.Tx, gameID string) ([]*game.Participant, error) {
	all, err := tx.Participants(gameID)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, p := range all {
		if p.Playing {
			active = append(active, p)
		}
	}
	return active, nil
}

// expired reports whether the game's round deadline has passed.
func (m *Machine) expired(g *game.Game) bool {
	return g.TimeoutAt != nil && !g.TimeoutAt.After(m.now())
}
