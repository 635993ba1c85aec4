// Package types defines the wire messages pushed to clients over their
// notification channel.
package types

// Server -> client push messages.
//
// participant_selected:
//   player: plus id of the player who just locked in a card (the card
//   itself is never revealed before voting)
// voting_started:
//   cards: the selected card numbers, shuffled so they cannot be mapped
//   back to players
// round_scores:
//   scores: one entry per active participant for the finished round
// round_started:
//   round + question for the next round in the same game
// new_game:
//   sent per participant after a game rollover; cards is the recipient's
//   freshly dealt hand
// chat:
//   administrative broadcast, bypasses the state machine
const (
	MsgParticipantSelected = "participant_selected"
	MsgVotingStarted       = "voting_started"
	MsgRoundScores         = "round_scores"
	MsgRoundStarted        = "round_started"
	MsgNewGame             = "new_game"
	MsgChat                = "chat"
)

type ServerMessage struct {
	Type     string             `json:"type"`
	GameID   string             `json:"game_id,omitempty"`
	Round    int                `json:"round"`
	Player   string             `json:"player,omitempty"`
	Question *int               `json:"question,omitempty"`
	Cards    []int              `json:"cards,omitempty"`
	Scores   []ParticipantScore `json:"scores,omitempty"`
	Text     string             `json:"text,omitempty"`
}

type ParticipantScore struct {
	Player       string `json:"player"`
	Score        int    `json:"score"`
	GameScore    int    `json:"game_score"`
	HangoutScore int    `json:"hangout_score"`
}
