package states

import (
	"errors"
	"math/rand"

	"github.com/partydeck/hangout-backend/internal/game"
	"github.com/partydeck/hangout-backend/pkg/types"
)

// voting -> voting: a player votes for a card. The last vote cast before
// the quorum fires wins.

func guardVote(m *Machine, tx game.Tx, g *game.Game, req Request) (bool, error) {
	return req.Action == ActionVote, nil
}

func effectVote(m *Machine, tx game.Tx, g *game.Game, req Request, pend *pending) (Result, error) {
	if g.State != game.PhaseVoting {
		return reject("Can't vote now, wrong game state '%s'", g.State), nil
	}
	if req.PlusID == "" || req.CardNumber == nil {
		return reject("Voting data incomplete"), nil
	}
	voter, err := tx.Participant(g.ID, req.PlusID)
	if errors.Is(err, game.ErrNotFound) {
		return reject("Could not retrieve indicated participant"), nil
	}
	if err != nil {
		return Result{}, err
	}
	target, ok, err := m.resolveSelection(tx, g, *req.CardNumber)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return reject("No player selected card %d this round", *req.CardNumber), nil
	}
	if err := voter.CastVote(target); err != nil {
		if errors.Is(err, game.ErrSelfVote) {
			return reject("Participants cannot vote for themselves"), nil
		}
		return Result{}, err
	}
	if err := tx.PutParticipant(voter); err != nil {
		return Result{}, err
	}
	return success(nil), nil
}

// resolveSelection maps a card number back to the player who selected it
// this round, consulting the cache first and rebuilding it from the
// authoritative SelectedCard fields on miss.
func (m *Machine) resolveSelection(tx game.Tx, g *game.Game, card int) (string, bool, error) {
	if plusID, ok := m.cache.lookup(g.ID, g.CurrentRound, card); ok {
		return plusID, true, nil
	}
	participants, err := tx.Participants(g.ID)
	if err != nil {
		return "", false, err
	}
	selections := make(map[int]string)
	for _, p := range participants {
		if p.SelectedCard != nil {
			selections[*p.SelectedCard] = p.PlusID
		}
	}
	m.cache.replace(g.ID, g.CurrentRound, selections)
	plusID, ok := selections[card]
	return plusID, ok, nil
}

// voting -> voting: deadline passed with votes outstanding; a random legal
// vote (never self) is cast for each holdout.

func guardVoteTimeout(m *Machine, tx game.Tx, g *game.Game, req Request) (bool, error) {
	if g.State != game.PhaseVoting || req.Action != ActionTimeout || !m.expired(g) {
		return false, nil
	}
	all, err := guardAllVoted(m, tx, g, req)
	if err != nil {
		return false, err
	}
	return !all, nil
}

func effectVoteTimeout(m *Machine, tx game.Tx, g *game.Game, req Request, pend *pending) (Result, error) {
	if g.State != game.PhaseVoting {
		return reject("wrong game state '%s'", g.State), nil
	}
	active, err := activeParticipants(tx, g.ID)
	if err != nil {
		return Result{}, err
	}
	forced := 0
	for _, p := range active {
		if p.Vote != nil {
			continue
		}
		var candidates []string
		for _, other := range active {
			if other.PlusID != p.PlusID && other.SelectedCard != nil {
				candidates = append(candidates, other.PlusID)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		if err := p.CastVote(candidates[rand.Intn(len(candidates))]); err != nil {
			return Result{}, err
		}
		if err := tx.PutParticipant(p); err != nil {
			return Result{}, err
		}
		forced++
	}
	if forced == 0 {
		return reject("no legal vote available for any holdout"), nil
	}
	return success(map[string]any{"forced_votes": forced}), nil
}

// voting -> scores: quorum reached, every active participant has voted.
// Transient: scoring, the score broadcast and the rollover into the next
// round or game all happen in this one transition.

func guardAllVoted(m *Machine, tx game.Tx, g *game.Game, req Request) (bool, error) {
	if g.State != game.PhaseVoting {
		return false, nil
	}
	active, err := activeParticipants(tx, g.ID)
	if err != nil {
		return false, err
	}
	if len(active) == 0 {
		return false, nil
	}
	for _, p := range active {
		if p.Vote == nil {
			return false, nil
		}
	}
	return true, nil
}

func effectToScores(m *Machine, tx game.Tx, g *game.Game, req Request, pend *pending) (Result, error) {
	if g.State != game.PhaseVoting {
		return reject("wrong game state '%s'", g.State), nil
	}
	g.State = game.PhaseScores
	if err := tx.PutGame(g); err != nil {
		return Result{}, err
	}
	active, err := activeParticipants(tx, g.ID)
	if err != nil {
		return Result{}, err
	}
	scores := calculateScores(active)
	for _, p := range active {
		if err := tx.PutParticipant(p); err != nil {
			return Result{}, err
		}
	}
	pend.broadcast(active, types.ServerMessage{
		Type:   types.MsgRoundScores,
		GameID: g.ID,
		Round:  g.CurrentRound,
		Scores: scores,
	})
	// Roll straight over; "scores" is never observed at rest.
	if g.CurrentRound+1 >= m.cfg.RoundsPerGame {
		ng, migrated, err := game.StartNewGame(tx, req.HangoutID, m.cfg, m.now())
		if err != nil {
			return Result{}, err
		}
		pend.drops = append(pend.drops, g.ID)
		for _, p := range migrated {
			pend.notify(p.ChannelID, types.ServerMessage{
				Type:     types.MsgNewGame,
				GameID:   ng.ID,
				Round:    ng.CurrentRound,
				Question: ng.CurrentQuestion,
				Cards:    p.Cards,
			})
		}
		return success(map[string]any{"new_game": ng.ID}), nil
	}
	if err := game.StartNewRound(tx, g, m.cfg, m.now()); err != nil {
		return Result{}, err
	}
	pend.broadcast(active, types.ServerMessage{
		Type:     types.MsgRoundStarted,
		GameID:   g.ID,
		Round:    g.CurrentRound,
		Question: g.CurrentQuestion,
	})
	return success(map[string]any{"round": g.CurrentRound}), nil
}

// calculateScores tallies, for each active participant, the votes received
// from the others this round, and folds the tally into the running game and
// hangout scores.
func calculateScores(active []*game.Participant) []types.ParticipantScore {
	votes := make(map[string]int)
	for _, p := range active {
		if p.Vote != nil {
			votes[*p.Vote]++
		}
	}
	scores := make([]types.ParticipantScore, 0, len(active))
	for _, p := range active {
		p.Score = votes[p.PlusID]
		p.GameScore += p.Score
		p.HangoutScore += p.Score
		scores = append(scores, types.ParticipantScore{
			Player:       p.PlusID,
			Score:        p.Score,
			GameScore:    p.GameScore,
			HangoutScore: p.HangoutScore,
		})
	}
	return scores
}
