package states

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/partydeck/hangout-backend/internal/game"
	"github.com/partydeck/hangout-backend/internal/store"
	"github.com/partydeck/hangout-backend/pkg/types"
)

var machineCfg = game.Config{
	HandSize:      2,
	RoundsPerGame: 2,
	QuestionCount: 10,
	AnswerCount:   40,
	RoundTimeout:  time.Minute,
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []types.ServerMessage
}

func (f *fakeNotifier) Notify(channelID string, payload []byte) {
	var msg types.ServerMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func (f *fakeNotifier) ofType(msgType string) []types.ServerMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.ServerMessage
	for _, m := range f.msgs {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

type player struct {
	id       string
	hand     []int
	selected *int
	vote     *string
	playing  bool
}

func seedGame(t *testing.T, st *store.Memory, phase game.Phase, round int, players []player) {
	t.Helper()
	deadline := time.Now().Add(time.Minute)
	err := st.Update(context.Background(), "h1", func(tx game.Tx) error {
		g := &game.Game{
			ID:              "g1",
			HangoutID:       "h1",
			State:           phase,
			QuestionDeck:    game.IntList{6, 7, 8, 9},
			AnswerDeck:      game.IntList{20, 21, 22, 23, 24, 25, 26, 27},
			CurrentQuestion: intp(5),
			CurrentRound:    round,
			TimeoutAt:       &deadline,
			StartTime:       time.Now(),
		}
		if err := tx.PutGame(g); err != nil {
			return err
		}
		for _, pl := range players {
			p := &game.Participant{
				GameID:       "g1",
				PlusID:       pl.id,
				ChannelID:    "ch-" + pl.id,
				ChannelToken: "tok-" + pl.id,
				Playing:      pl.playing,
				Cards:        append(game.IntList(nil), pl.hand...),
				SelectedCard: pl.selected,
				Vote:         pl.vote,
			}
			if err := tx.PutParticipant(p); err != nil {
				return err
			}
		}
		return tx.PutHangout(&game.Hangout{ID: "h1", CurrentGameID: "g1"})
	})
	require.NoError(t, err)
}

func newTestMachine(st *store.Memory) (*Machine, *fakeNotifier) {
	notif := &fakeNotifier{}
	return NewMachine(st, notif, machineCfg, zap.NewNop()), notif
}

func getParticipant(t *testing.T, st *store.Memory, gameID, plusID string) *game.Participant {
	t.Helper()
	var p *game.Participant
	err := st.View(context.Background(), "h1", func(tx game.Tx) error {
		var err error
		p, err = tx.Participant(gameID, plusID)
		return err
	})
	require.NoError(t, err)
	return p
}

func getCurrentGame(t *testing.T, st *store.Memory) *game.Game {
	t.Helper()
	var g *game.Game
	err := st.View(context.Background(), "h1", func(tx game.Tx) error {
		var err error
		g, err = game.CurrentGame(tx, "h1")
		return err
	})
	require.NoError(t, err)
	return g
}

func selectReq(plusID string, card int) Request {
	return Request{HangoutID: "h1", PlusID: plusID, CardNumber: &card, Action: ActionSelectCard}
}

func voteReq(plusID string, card int) Request {
	return Request{HangoutID: "h1", PlusID: plusID, CardNumber: &card, Action: ActionVote}
}

func TestSelectCard(t *testing.T) {
	st := store.NewMemory()
	seedGame(t, st, game.PhaseStartRound, 0, []player{
		{id: "alice", hand: []int{1, 2}, playing: true},
		{id: "bob", hand: []int{3, 4}, playing: true},
	})
	m, notif := newTestMachine(st)
	ctx := context.Background()

	res := m.TryTransition(ctx, game.PhaseStartRound, "", selectReq("alice", 1))
	require.Equal(t, KindSuccess, res.Kind)
	require.Equal(t, 1, res.Payload["card"])

	// Quorum probe: bob is still outstanding, so this is a no-op.
	res = m.TryTransition(ctx, game.PhaseStartRound, game.PhaseVoting, selectReq("alice", 1))
	require.Equal(t, KindSkipped, res.Kind)
	require.Equal(t, game.PhaseStartRound, getCurrentGame(t, st).State)

	p := getParticipant(t, st, "g1", "alice")
	require.NotNil(t, p.SelectedCard)
	require.Equal(t, 1, *p.SelectedCard)
	require.Equal(t, game.IntList{2}, p.Cards)

	// The selection broadcast names the player but never the card.
	selected := notif.ofType(types.MsgParticipantSelected)
	require.Len(t, selected, 2, "both active participants are notified")
	for _, msg := range selected {
		require.Equal(t, "alice", msg.Player)
		require.Empty(t, msg.Cards)
	}
}

func TestSelectCardRejections(t *testing.T) {
	sel := 1
	cases := []struct {
		name  string
		phase game.Phase
		pl    player
		card  int
	}{
		{name: "card not in hand", phase: game.PhaseStartRound,
			pl: player{id: "alice", hand: []int{1, 2}, playing: true}, card: 9},
		{name: "already selected", phase: game.PhaseStartRound,
			pl: player{id: "alice", hand: []int{2}, selected: &sel, playing: true}, card: 2},
		{name: "wrong phase", phase: game.PhaseVoting,
			pl: player{id: "alice", hand: []int{1, 2}, playing: true}, card: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := store.NewMemory()
			seedGame(t, st, tc.phase, 0, []player{tc.pl})
			m, _ := newTestMachine(st)

			res := m.TryTransition(context.Background(), game.PhaseStartRound, "", selectReq("alice", tc.card))
			require.Equal(t, KindRejected, res.Kind)
			require.NotEmpty(t, res.Reason)

			p := getParticipant(t, st, "g1", "alice")
			require.Equal(t, game.IntList(tc.pl.hand), p.Cards, "rejection must not mutate the hand")
		})
	}
}

func TestQuorumAdvancesToVoting(t *testing.T) {
	st := store.NewMemory()
	seedGame(t, st, game.PhaseStartRound, 0, []player{
		{id: "alice", hand: []int{1, 2}, playing: true},
		{id: "bob", hand: []int{3, 4}, playing: true},
		{id: "mallory", hand: []int{5, 6}, playing: false}, // left; not part of quorum
	})
	m, notif := newTestMachine(st)
	ctx := context.Background()

	res := m.TryTransition(ctx, game.PhaseStartRound, "", selectReq("alice", 1))
	require.Equal(t, KindSuccess, res.Kind)
	res = m.TryTransition(ctx, game.PhaseStartRound, game.PhaseVoting, selectReq("alice", 1))
	require.Equal(t, KindSkipped, res.Kind)

	res = m.TryTransition(ctx, game.PhaseStartRound, "", selectReq("bob", 4))
	require.Equal(t, KindSuccess, res.Kind)
	res = m.TryTransition(ctx, game.PhaseStartRound, game.PhaseVoting, selectReq("bob", 4))
	require.Equal(t, KindSuccess, res.Kind)

	require.Equal(t, game.PhaseVoting, getCurrentGame(t, st).State)

	started := notif.ofType(types.MsgVotingStarted)
	require.Len(t, started, 2)
	require.ElementsMatch(t, []int{1, 4}, started[0].Cards)
}

func TestCardZeroIsSelectable(t *testing.T) {
	st := store.NewMemory()
	seedGame(t, st, game.PhaseStartRound, 0, []player{
		{id: "alice", hand: []int{0, 5}, playing: true},
		{id: "bob", hand: []int{3, 4}, playing: true},
	})
	m, _ := newTestMachine(st)
	ctx := context.Background()

	res := m.TryTransition(ctx, game.PhaseStartRound, "", selectReq("alice", 0))
	require.Equal(t, KindSuccess, res.Kind)
	require.Equal(t, 0, res.Payload["card"])

	p := getParticipant(t, st, "g1", "alice")
	require.NotNil(t, p.SelectedCard, "card 0 must read as a present selection")
	require.Equal(t, 0, *p.SelectedCard)

	// Selecting again is rejected: 0 is not confused with "unset".
	res = m.TryTransition(ctx, game.PhaseStartRound, "", selectReq("alice", 5))
	require.Equal(t, KindRejected, res.Kind)

	res = m.TryTransition(ctx, game.PhaseStartRound, "", selectReq("bob", 3))
	require.Equal(t, KindSuccess, res.Kind)
	res = m.TryTransition(ctx, game.PhaseStartRound, game.PhaseVoting, selectReq("bob", 3))
	require.Equal(t, KindSuccess, res.Kind)

	// Card 0 resolves as a vote target.
	res = m.TryTransition(ctx, game.PhaseVoting, "", voteReq("bob", 0))
	require.Equal(t, KindSuccess, res.Kind)
	p = getParticipant(t, st, "g1", "bob")
	require.NotNil(t, p.Vote)
	require.Equal(t, "alice", *p.Vote)
}

func TestSelfVoteRejected(t *testing.T) {
	st := store.NewMemory()
	seedGame(t, st, game.PhaseVoting, 0, []player{
		{id: "alice", hand: []int{2}, selected: intp(1), playing: true},
		{id: "bob", hand: []int{4}, selected: intp(3), playing: true},
	})
	m, _ := newTestMachine(st)

	res := m.TryTransition(context.Background(), game.PhaseVoting, "", voteReq("alice", 1))
	require.Equal(t, KindRejected, res.Kind)
	require.Contains(t, res.Reason, "themselves")
	require.Nil(t, getParticipant(t, st, "g1", "alice").Vote)
}

func TestVoteResolvesThroughCacheRebuild(t *testing.T) {
	// Selections were persisted by another process; the cache is cold and
	// must be rebuilt from the authoritative records.
	st := store.NewMemory()
	seedGame(t, st, game.PhaseVoting, 0, []player{
		{id: "alice", hand: []int{2}, selected: intp(1), playing: true},
		{id: "bob", hand: []int{4}, selected: intp(3), playing: true},
	})
	m, _ := newTestMachine(st)

	res := m.TryTransition(context.Background(), game.PhaseVoting, "", voteReq("alice", 3))
	require.Equal(t, KindSuccess, res.Kind)
	p := getParticipant(t, st, "g1", "alice")
	require.NotNil(t, p.Vote)
	require.Equal(t, "bob", *p.Vote)

	res = m.TryTransition(context.Background(), game.PhaseVoting, "", voteReq("alice", 99))
	require.Equal(t, KindRejected, res.Kind)
}

func TestScoresTallyAndNewRound(t *testing.T) {
	st := store.NewMemory()
	seedGame(t, st, game.PhaseVoting, 0, []player{
		{id: "alice", hand: []int{2}, selected: intp(1), vote: strp("bob"), playing: true},
		{id: "bob", hand: []int{4}, selected: intp(3), vote: strp("carol"), playing: true},
		{id: "carol", hand: []int{6}, selected: intp(5), playing: true},
	})
	m, notif := newTestMachine(st)
	ctx := context.Background()

	// carol casts the final vote (for bob's card), which completes quorum.
	res := m.TryTransition(ctx, game.PhaseVoting, "", voteReq("carol", 3))
	require.Equal(t, KindSuccess, res.Kind)
	res = m.TryTransition(ctx, game.PhaseVoting, game.PhaseScores, voteReq("carol", 3))
	require.Equal(t, KindSuccess, res.Kind)

	// A votes B, B votes C, C votes B => B:2, C:1, A:0.
	scoreMsgs := notif.ofType(types.MsgRoundScores)
	require.Len(t, scoreMsgs, 3, "every active participant gets the score broadcast")
	byPlayer := make(map[string]types.ParticipantScore)
	for _, s := range scoreMsgs[0].Scores {
		byPlayer[s.Player] = s
	}
	require.Equal(t, 2, byPlayer["bob"].Score)
	require.Equal(t, 1, byPlayer["carol"].Score)
	require.Equal(t, 0, byPlayer["alice"].Score)
	require.Equal(t, 2, byPlayer["bob"].GameScore)
	require.Equal(t, 2, byPlayer["bob"].HangoutScore)

	// The game rolled straight into round 1: scores is never at rest.
	g := getCurrentGame(t, st)
	require.Equal(t, "g1", g.ID)
	require.Equal(t, game.PhaseStartRound, g.State)
	require.Equal(t, 1, g.CurrentRound)

	bob := getParticipant(t, st, "g1", "bob")
	require.Zero(t, bob.Score, "per-round score resets at the boundary")
	require.Equal(t, 2, bob.GameScore)
	require.Equal(t, 2, bob.HangoutScore)
	require.Nil(t, bob.Vote)
	require.Nil(t, bob.SelectedCard)

	require.Len(t, notif.ofType(types.MsgRoundStarted), 3)
}

func TestLastRoundRollsOverToNewGame(t *testing.T) {
	st := store.NewMemory()
	// RoundsPerGame is 2, so round 1 is the final round.
	seedGame(t, st, game.PhaseVoting, 1, []player{
		{id: "alice", hand: []int{2}, selected: intp(1), vote: strp("bob"), playing: true},
		{id: "bob", hand: []int{4}, selected: intp(3), playing: true},
	})
	m, notif := newTestMachine(st)
	ctx := context.Background()

	res := m.TryTransition(ctx, game.PhaseVoting, "", voteReq("bob", 1))
	require.Equal(t, KindSuccess, res.Kind)
	res = m.TryTransition(ctx, game.PhaseVoting, game.PhaseScores, voteReq("bob", 1))
	require.Equal(t, KindSuccess, res.Kind)

	g := getCurrentGame(t, st)
	require.NotEqual(t, "g1", g.ID, "a fresh game supersedes the finished one")
	require.Equal(t, 0, g.CurrentRound)
	require.Equal(t, game.PhaseStartRound, g.State)
	require.NotNil(t, g.CurrentQuestion)

	var old *game.Game
	require.NoError(t, st.View(ctx, "h1", func(tx game.Tx) error {
		var err error
		old, err = tx.Game("g1")
		return err
	}))
	require.NotNil(t, old.EndTime)

	// A votes B, B votes A => one point each, preserved across the rollover.
	alice := getParticipant(t, st, g.ID, "alice")
	bob := getParticipant(t, st, g.ID, "bob")
	require.Equal(t, 1, alice.HangoutScore)
	require.Equal(t, 1, bob.HangoutScore)
	require.Zero(t, alice.GameScore, "game score resets in the new game")
	require.Len(t, alice.Cards, machineCfg.HandSize, "fresh hand dealt")

	newGameMsgs := notif.ofType(types.MsgNewGame)
	require.Len(t, newGameMsgs, 2)
	for _, msg := range newGameMsgs {
		require.Equal(t, g.ID, msg.GameID)
		require.Len(t, msg.Cards, machineCfg.HandSize)
	}
}

func TestConcurrentFinalVotesScoreOnce(t *testing.T) {
	st := store.NewMemory()
	seedGame(t, st, game.PhaseVoting, 0, []player{
		{id: "alice", hand: []int{2}, selected: intp(1), vote: strp("bob"), playing: true},
		{id: "bob", hand: []int{4}, selected: intp(3), playing: true},
		{id: "carol", hand: []int{6}, selected: intp(5), playing: true},
	})
	m, _ := newTestMachine(st)
	ctx := context.Background()

	// bob and carol submit the final two votes concurrently, both for
	// alice's card. Exactly one quorum probe may fire the scores
	// transition.
	var wg sync.WaitGroup
	for _, id := range []string{"bob", "carol"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			m.TryTransition(ctx, game.PhaseVoting, "", voteReq(id, 1))
			m.TryTransition(ctx, game.PhaseVoting, game.PhaseScores, voteReq(id, 1))
		}(id)
	}
	wg.Wait()

	g := getCurrentGame(t, st)
	require.Equal(t, game.PhaseStartRound, g.State, "round advanced")
	require.Equal(t, 1, g.CurrentRound)

	// A gets 2 votes, B gets 1; double-firing would double these.
	require.Equal(t, 2, getParticipant(t, st, "g1", "alice").GameScore)
	require.Equal(t, 1, getParticipant(t, st, "g1", "bob").GameScore)
	require.Equal(t, 0, getParticipant(t, st, "g1", "carol").GameScore)
}

func TestForceAdvanceSelectsForHoldouts(t *testing.T) {
	st := store.NewMemory()
	seedGame(t, st, game.PhaseStartRound, 0, []player{
		{id: "alice", hand: []int{2}, selected: intp(1), playing: true},
		{id: "bob", hand: []int{3, 4}, playing: true},
	})
	m, _ := newTestMachine(st)
	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) } // past the deadline

	m.ForceAdvance(context.Background(), "h1")

	g := getCurrentGame(t, st)
	require.Equal(t, game.PhaseVoting, g.State, "forced selections complete the quorum")
	bob := getParticipant(t, st, "g1", "bob")
	require.NotNil(t, bob.SelectedCard)
	require.Contains(t, []int{3, 4}, *bob.SelectedCard)
}

func TestForceAdvanceVotesForHoldouts(t *testing.T) {
	st := store.NewMemory()
	seedGame(t, st, game.PhaseVoting, 0, []player{
		{id: "alice", hand: []int{2}, selected: intp(1), vote: strp("bob"), playing: true},
		{id: "bob", hand: []int{4}, selected: intp(3), playing: true},
	})
	m, _ := newTestMachine(st)
	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	m.ForceAdvance(context.Background(), "h1")

	// bob's forced vote can only be for alice, completing the round.
	g := getCurrentGame(t, st)
	require.Equal(t, game.PhaseStartRound, g.State)
	require.Equal(t, 1, g.CurrentRound)
	require.Equal(t, 1, getParticipant(t, st, "g1", "alice").GameScore)
	require.Equal(t, 1, getParticipant(t, st, "g1", "bob").GameScore)
}

func TestTimeoutGuardIdleBeforeDeadline(t *testing.T) {
	st := store.NewMemory()
	seedGame(t, st, game.PhaseStartRound, 0, []player{
		{id: "alice", hand: []int{1, 2}, playing: true},
		{id: "bob", hand: []int{3, 4}, playing: true},
	})
	m, _ := newTestMachine(st)

	m.ForceAdvance(context.Background(), "h1")

	g := getCurrentGame(t, st)
	require.Equal(t, game.PhaseStartRound, g.State)
	require.Nil(t, getParticipant(t, st, "g1", "alice").SelectedCard)
	require.Nil(t, getParticipant(t, st, "g1", "bob").SelectedCard)
}

func TestStaleQuorumCheckIsSkipped(t *testing.T) {
	st := store.NewMemory()
	seedGame(t, st, game.PhaseStartRound, 0, []player{
		{id: "alice", hand: []int{1, 2}, playing: true},
		{id: "bob", hand: []int{3, 4}, playing: true},
	})
	m, notif := newTestMachine(st)
	ctx := context.Background()

	res := m.TryTransition(ctx, game.PhaseStartRound, "", selectReq("alice", 1))
	require.Equal(t, KindSuccess, res.Kind)

	// Another caller completes the quorum and flips the game to voting
	// between alice's action and her probe.
	res = m.TryTransition(ctx, game.PhaseStartRound, "", selectReq("bob", 3))
	require.Equal(t, KindSuccess, res.Kind)
	res = m.TryTransition(ctx, game.PhaseStartRound, game.PhaseVoting, selectReq("bob", 3))
	require.Equal(t, KindSuccess, res.Kind)

	// Selections persist into voting, but alice's late probe must answer
	// Skipped, not Rejected: her selection committed and the round advanced.
	res = m.TryTransition(ctx, game.PhaseStartRound, game.PhaseVoting, selectReq("alice", 1))
	require.Equal(t, KindSkipped, res.Kind)
	require.Equal(t, game.PhaseVoting, getCurrentGame(t, st).State)
	require.Len(t, notif.ofType(types.MsgVotingStarted), 2, "no duplicate voting broadcast")

	// A stale timeout probe is equally a no-op.
	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	res = m.TryTransition(ctx, game.PhaseStartRound, "", Request{HangoutID: "h1", Action: ActionTimeout})
	require.Equal(t, KindSkipped, res.Kind)
}

func TestTimeoutWithNothingToForceRejects(t *testing.T) {
	// An abandoned expired game must not commit no-op transitions on every
	// sweep: with nothing to force the transition is rejected (rolled back).
	st := store.NewMemory()
	seedGame(t, st, game.PhaseStartRound, 0, []player{
		{id: "alice", hand: nil, playing: true}, // empty hand, nothing to select
	})
	m, _ := newTestMachine(st)
	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	res := m.TryTransition(context.Background(), game.PhaseStartRound, "",
		Request{HangoutID: "h1", Action: ActionTimeout})
	require.Equal(t, KindRejected, res.Kind)
}

func intp(v int) *int       { return &v }
func strp(s string) *string { return &s }
