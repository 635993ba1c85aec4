package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/partydeck/hangout-backend/internal/cards"
	"github.com/partydeck/hangout-backend/internal/game"
	"github.com/partydeck/hangout-backend/internal/states"
	"github.com/partydeck/hangout-backend/pkg/types"
)

// JoinGame adds a player to the hangout's current game, lazily creating the
// hangout and game, and dealing a hand on first join.
func (a *API) JoinGame(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hangoutID, plusID := q.Get("hangout_id"), q.Get("plus_id")
	if hangoutID == "" || plusID == "" {
		a.writeJSON(w, errorf("Hangout ID or participant ID not given"))
		return
	}
	var (
		g *game.Game
		p *game.Participant
	)
	err := a.Store.Update(r.Context(), hangoutID, func(tx game.Tx) error {
		var err error
		g, err = game.GetOrCreateCurrentGame(tx, hangoutID, a.Cfg, time.Now())
		if err != nil {
			return err
		}
		p, err = game.JoinGame(tx, g, plusID, a.Cfg)
		return err
	})
	switch {
	case errors.Is(err, game.ErrInsufficientCards):
		a.writeJSON(w, errorf("Not enough cards left to deal a hand"))
		return
	case err != nil:
		a.Log.Error("join game", zap.String("hangout_id", hangoutID), zap.Error(err))
		a.writeJSON(w, errorf("Could not join game"))
		return
	}
	// Only the committed channel reaches the hub; a retried transaction
	// leaves no stray registrations.
	a.Hub.Register(p.ChannelID, p.ChannelToken)
	env := ok()
	env["cards"] = p.Cards
	env["game_id"] = g.ID
	env["channel_token"] = p.ChannelToken
	a.writeJSON(w, env)
}

// LeaveGame marks the player as no longer playing. The channel token issued
// at join must match.
func (a *API) LeaveGame(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hangoutID, plusID, token := q.Get("hangout_id"), q.Get("plus_id"), q.Get("channel_token")
	if hangoutID == "" || plusID == "" || token == "" {
		a.writeJSON(w, errorf("Leave data incomplete"))
		return
	}
	err := a.Store.Update(r.Context(), hangoutID, func(tx game.Tx) error {
		g, err := game.CurrentGame(tx, hangoutID)
		if err != nil {
			return err
		}
		return game.Leave(tx, g, plusID, token)
	})
	switch {
	case errors.Is(err, game.ErrNotFound):
		a.writeJSON(w, errorf("Game or participant not found"))
	case errors.Is(err, game.ErrTokenMismatch):
		a.writeJSON(w, errorf("Channel token does not match"))
	case err != nil:
		a.Log.Error("leave game", zap.String("hangout_id", hangoutID), zap.Error(err))
		a.writeJSON(w, errorf("Could not leave game"))
	default:
		a.writeJSON(w, ok())
	}
}

// SelectCard processes a player's answer-card selection, then probes the
// quorum transition so a selection that completes the round flips the game
// to voting within the same request.
func (a *API) SelectCard(w http.ResponseWriter, r *http.Request) {
	req, env := a.actionRequest(r, states.ActionSelectCard)
	if env != nil {
		a.writeJSON(w, env)
		return
	}
	res1 := a.Machine.TryTransition(r.Context(), game.PhaseStartRound, "", req)
	res2 := a.Machine.TryTransition(r.Context(), game.PhaseStartRound, game.PhaseVoting, req)
	a.writeJSON(w, combine(res1, res2))
}

// Vote registers the player's vote for a selected card, then probes the
// scores transition so the final vote triggers scoring immediately.
func (a *API) Vote(w http.ResponseWriter, r *http.Request) {
	req, env := a.actionRequest(r, states.ActionVote)
	if env != nil {
		a.writeJSON(w, env)
		return
	}
	res1 := a.Machine.TryTransition(r.Context(), game.PhaseVoting, "", req)
	res2 := a.Machine.TryTransition(r.Context(), game.PhaseVoting, game.PhaseScores, req)
	a.writeJSON(w, combine(res1, res2))
}

// actionRequest parses the shared select_card/vote inputs. A non-nil
// envelope is the input-error response to return as-is.
func (a *API) actionRequest(r *http.Request, action states.Action) (states.Request, envelope) {
	q := r.URL.Query()
	hangoutID, plusID := q.Get("hangout_id"), q.Get("plus_id")
	if hangoutID == "" {
		return states.Request{}, errorf("Hangout ID not given")
	}
	if plusID == "" {
		return states.Request{}, errorf("Participant ID not given")
	}
	card, err := strconv.Atoi(q.Get("card_num"))
	if err != nil {
		return states.Request{}, errorf("Card number is not an integer")
	}
	return states.Request{
		HangoutID:  hangoutID,
		PlusID:     plusID,
		CardNumber: &card,
		Action:     action,
	}, nil
}

// combine folds the explicit-action attempt and the quorum probe into one
// response: any rejection wins, otherwise payloads accumulate.
func combine(res1, res2 states.Result) envelope {
	if res1.Kind == states.KindRejected {
		return errorf(res1.Reason)
	}
	if res2.Kind == states.KindRejected {
		return errorf(res2.Reason)
	}
	return ok().merge(res1.Payload).merge(res2.Payload)
}

// SendMessage is an administrative broadcast to every active participant,
// bypassing the state machine.
func (a *API) SendMessage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hangoutID, message := q.Get("hangout_id"), q.Get("message")
	if hangoutID == "" || message == "" {
		a.writeJSON(w, errorf("Hangout ID or message not given"))
		return
	}
	var channelIDs []string
	err := a.Store.View(r.Context(), hangoutID, func(tx game.Tx) error {
		g, err := game.CurrentGame(tx, hangoutID)
		if err != nil {
			return err
		}
		participants, err := tx.Participants(g.ID)
		if err != nil {
			return err
		}
		for _, p := range participants {
			if p.Playing {
				channelIDs = append(channelIDs, p.ChannelID)
			}
		}
		return nil
	})
	switch {
	case errors.Is(err, game.ErrNotFound):
		a.writeJSON(w, errorf("Game for hangout not found"))
		return
	case err != nil:
		a.Log.Error("send message", zap.String("hangout_id", hangoutID), zap.Error(err))
		a.writeJSON(w, errorf("Could not send message"))
		return
	}
	payload, err := json.Marshal(types.ServerMessage{Type: types.MsgChat, Text: message})
	if err != nil {
		a.writeJSON(w, errorf("Could not encode message"))
		return
	}
	for _, id := range channelIDs {
		a.Hub.Notify(id, payload)
	}
	a.writeJSON(w, ok())
}

// CardMapping serves the static deck texts so clients can map card indices
// to their text.
func (a *API) CardMapping(w http.ResponseWriter, r *http.Request) {
	deck := r.URL.Query().Get("deck")
	if deck == "" {
		a.writeJSON(w, errorf("Deck not specified"))
		return
	}
	texts, found := cards.ByName(deck)
	if !found {
		a.writeJSON(w, errorf("Unknown deck "+deck))
		return
	}
	env := ok()
	env["deck"] = deck
	env["cards"] = texts
	a.writeJSON(w, env)
}
