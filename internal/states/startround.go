package states

import (
	"errors"
	"math/rand"

	"github.com/partydeck/hangout-backend/internal/game"
	"github.com/partydeck/hangout-backend/pkg/types"
)

// start_round -> start_round: a player locks in an answer card.

func guardSelectCard(m *Machine, tx game.Tx, g *game.Game, req Request) (bool, error) {
	return req.Action == ActionSelectCard, nil
}

func effectSelectCard(m *Machine, tx game.Tx, g *game.Game, req Request, pend *pending) (Result, error) {
	if g.State != game.PhaseStartRound {
		return reject("Can't select a card now, wrong game state '%s'", g.State), nil
	}
	if req.PlusID == "" || req.CardNumber == nil {
		return reject("Card selection data incomplete"), nil
	}
	p, err := tx.Participant(g.ID, req.PlusID)
	if errors.Is(err, game.ErrNotFound) {
		return reject("Could not retrieve indicated participant"), nil
	}
	if err != nil {
		return Result{}, err
	}
	card, err := p.SelectCard(*req.CardNumber)
	switch {
	case errors.Is(err, game.ErrCardNotInHand):
		return reject("Could not select card %d from hand", *req.CardNumber), nil
	case errors.Is(err, game.ErrAlreadySelected):
		return reject("A card has already been selected this round"), nil
	case err != nil:
		return Result{}, err
	}
	if err := tx.PutParticipant(p); err != nil {
		return Result{}, err
	}
	pend.recordSelection(g.ID, g.CurrentRound, card, p.PlusID)
	active, err := activeParticipants(tx, g.ID)
	if err != nil {
		return Result{}, err
	}
	// Announce who has selected, never which card.
	pend.broadcast(active, types.ServerMessage{
		Type:   types.MsgParticipantSelected,
		GameID: g.ID,
		Round:  g.CurrentRound,
		Player: p.PlusID,
	})
	return success(map[string]any{"card": card}), nil
}

// start_round -> start_round: the round deadline passed with selections
// outstanding; a random card is locked in for each holdout.

func guardSelectTimeout(m *Machine, tx game.Tx, g *game.Game, req Request) (bool, error) {
	if g.State != game.PhaseStartRound || req.Action != ActionTimeout || !m.expired(g) {
		return false, nil
	}
	all, err := guardAllSelected(m, tx, g, req)
	if err != nil {
		return false, err
	}
	return !all, nil
}

func effectSelectTimeout(m *Machine, tx game.Tx, g *game.Game, req Request, pend *pending) (Result, error) {
	if g.State != game.PhaseStartRound {
		return reject("wrong game state '%s'", g.State), nil
	}
	active, err := activeParticipants(tx, g.ID)
	if err != nil {
		return Result{}, err
	}
	forced := 0
	for _, p := range active {
		if p.SelectedCard != nil || len(p.Cards) == 0 {
			continue
		}
		card, err := p.SelectCard(p.Cards[rand.Intn(len(p.Cards))])
		if err != nil {
			return Result{}, err
		}
		if err := tx.PutParticipant(p); err != nil {
			return Result{}, err
		}
		pend.recordSelection(g.ID, g.CurrentRound, card, p.PlusID)
		pend.broadcast(active, types.ServerMessage{
			Type:   types.MsgParticipantSelected,
			GameID: g.ID,
			Round:  g.CurrentRound,
			Player: p.PlusID,
		})
		forced++
	}
	if forced == 0 {
		return reject("no selection to force for any holdout"), nil
	}
	return success(map[string]any{"forced_selections": forced}), nil
}

// start_round -> voting: quorum reached, every active participant has a
// selection. The phase check makes a stale quorum probe a no-op: selections
// persist into voting, so a probe racing a concurrent advance must not
// re-match against them.

func guardAllSelected(m *Machine, tx game.Tx, g *game.Game, req Request) (bool, error) {
	if g.State != game.PhaseStartRound {
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
		if p.SelectedCard == nil {
			return false, nil
		}
	}
	return true, nil
}

func effectToVoting(m *Machine, tx game.Tx, g *game.Game, req Request, pend *pending) (Result, error) {
	if g.State != game.PhaseStartRound {
		return reject("wrong game state '%s'", g.State), nil
	}
	active, err := activeParticipants(tx, g.ID)
	if err != nil {
		return Result{}, err
	}
	g.State = game.PhaseVoting
	deadline := m.now().Add(m.cfg.RoundTimeout)
	g.TimeoutAt = &deadline
	if err := tx.PutGame(g); err != nil {
		return Result{}, err
	}
	// Clients vote on the selected cards; shuffling breaks any mapping back
	// to the players who picked them.
	selected := make([]int, 0, len(active))
	for _, p := range active {
		selected = append(selected, *p.SelectedCard)
	}
	rand.Shuffle(len(selected), func(i, j int) {
		selected[i], selected[j] = selected[j], selected[i]
	})
	pend.broadcast(active, types.ServerMessage{
		Type:   types.MsgVotingStarted,
		GameID: g.ID,
		Round:  g.CurrentRound,
		Cards:  selected,
	})
	return success(nil), nil
}
