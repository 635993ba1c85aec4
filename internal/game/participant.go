package game

// Participant is a child entity of a Game, keyed by (GameID, PlusID). When a
// new game supersedes the old one, a fresh record is created with the same
// PlusID, carrying over the channel handles and the hangout score.
type Participant struct {
	GameID       string `gorm:"primaryKey;size:64"`
	PlusID       string `gorm:"primaryKey;size:64"`
	ChannelID    string `gorm:"size:64"`
	ChannelToken string `gorm:"size:64"`
	Playing      bool
	Cards        IntList
	SelectedCard *int
	// Vote holds the PlusID of the participant voted for, nil if no vote has
	// been cast this round. It must never reference the voter.
	Vote         *string
	Score        int
	GameScore    int
	HangoutScore int
}

// SelectCard removes cardNumber from the hand and records it as this round's
// selection. Card 0 is a valid card; presence is tracked by the pointer, not
// the value.
func (p *Participant) SelectCard(cardNumber int) (int, error) {
	if p.SelectedCard != nil {
		return 0, ErrAlreadySelected
	}
	for i, c := range p.Cards {
		if c == cardNumber {
			p.Cards = append(p.Cards[:i], p.Cards[i+1:]...)
			p.SelectedCard = &cardNumber
			return cardNumber, nil
		}
	}
	return 0, ErrCardNotInHand
}

// CastVote records a vote for the participant identified by target,
// overwriting any earlier vote this round.
func (p *Participant) CastVote(target string) error {
	if p.PlusID == target {
		return ErrSelfVote
	}
	p.Vote = &target
	return nil
}

// resetForRound clears the per-round fields at a round boundary.
func (p *Participant) resetForRound() {
	p.SelectedCard = nil
	p.Vote = nil
	p.Score = 0
}

// Clone returns a deep copy, for the in-memory store.
func (p *Participant) Clone() *Participant {
	c := *p
	c.Cards = append(IntList(nil), p.Cards...)
	if p.SelectedCard != nil {
		s := *p.SelectedCard
		c.SelectedCard = &s
	}
	if p.Vote != nil {
		v := *p.Vote
		c.Vote = &v
	}
	return &c
}
