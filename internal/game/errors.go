package game

import "errors"

var ErrNotFound = errors.New("record not found")
var ErrInsufficientCards = errors.New("not enough cards left in the answer deck")
var ErrEmptyDeck = errors.New("question deck is empty")
var ErrHandAlreadyDealt = errors.New("participant already holds a hand")
var ErrCardNotInHand = errors.New("card is not in the participant's hand")
var ErrAlreadySelected = errors.New("participant already selected a card this round")
var ErrRoundLimit = errors.New("round limit reached for this game")
var ErrSelfVote = errors.New("participants cannot vote for themselves")
var ErrTokenMismatch = errors.New("channel token does not match")
