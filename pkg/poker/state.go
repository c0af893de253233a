package poker

import (
	"time"

	"github.com/google/uuid"
)

// Spawn and reset coordinates for participant avatars.
const (
	SpawnX, SpawnY uint16 = 2, 2
	ResetX, ResetY uint16 = 10, 10
)

// PhaseName names one of the three round phases.
type PhaseName string

const (
	PhaseIdle     PhaseName = "idle"
	PhaseVoting   PhaseName = "voting"
	PhaseRevealed PhaseName = "revealed"
)

// Phase is the current round phase. StartedAt and DurationSecs are only
// meaningful while Name is PhaseVoting; DurationSecs is nil for an
// untimed round.
type Phase struct {
	Name         PhaseName `json:"name"`
	StartedAt    int64     `json:"started_at,omitempty"`
	DurationSecs *int64    `json:"duration_secs,omitempty"`
}

// Ticket is the topic under estimation.
type Ticket struct {
	Title string `json:"title"`
}

// Participant is one logged-in member of the session.
type Participant struct {
	ID        uuid.UUID    `json:"id"`
	Name      string       `json:"name"`
	Role      Role         `json:"role"`
	X         uint16       `json:"x"`
	Y         uint16       `json:"y"`
	Color     AvatarColor  `json:"color"`
	Symbol    AvatarSymbol `json:"symbol"`
	Confirmed bool         `json:"confirmed"`
}

// VotingConfig is the deck and default round timeout. A nil
// DefaultTimeoutSecs means rounds run untimed unless a timeout is given
// per round.
type VotingConfig struct {
	Cards              []int  `json:"cards"`
	DefaultTimeoutSecs *int64 `json:"default_timeout_secs,omitempty"`
}

// DefaultVotingConfig returns the stock Fibonacci-ish deck with no
// default timeout.
func DefaultVotingConfig() VotingConfig {
	return VotingConfig{Cards: []int{0, 1, 2, 3, 5, 8, 13}}
}

// Clone returns a deep copy of the config.
func (c VotingConfig) Clone() VotingConfig {
	out := VotingConfig{Cards: append([]int(nil), c.Cards...)}
	if c.DefaultTimeoutSecs != nil {
		t := *c.DefaultTimeoutSecs
		out.DefaultTimeoutSecs = &t
	}
	return out
}

// State is the session aggregate. It carries no lock; the engine
// serializes all access. A vote is recorded only for a known
// participant, so Votes keys are always a subset of Participants keys.
type State struct {
	Participants map[uuid.UUID]*Participant
	Phase        Phase
	Ticket       *Ticket
	Votes        map[uuid.UUID]int
	Config       VotingConfig
}

// NewState returns an idle session with no participants.
func NewState(cfg VotingConfig) *State {
	return &State{
		Participants: make(map[uuid.UUID]*Participant),
		Phase:        Phase{Name: PhaseIdle},
		Votes:        make(map[uuid.UUID]int),
		Config:       cfg.Clone(),
	}
}

// Join adds or replaces the participant for id at the spawn position.
// A repeat login under the same id replaces name, role, and avatar but
// keeps any recorded vote.
func (s *State) Join(id uuid.UUID, name string, role Role, color AvatarColor, symbol AvatarSymbol) *Participant {
	p, ok := s.Participants[id]
	if !ok {
		p = &Participant{ID: id, X: SpawnX, Y: SpawnY}
		s.Participants[id] = p
	}
	p.Name = name
	p.Role = role
	p.Color = color
	p.Symbol = symbol
	return p
}

// SetPosition moves a participant. Unknown ids are a no-op.
func (s *State) SetPosition(id uuid.UUID, x, y uint16) bool {
	p, ok := s.Participants[id]
	if !ok {
		return false
	}
	if p.X == x && p.Y == y {
		return false
	}
	p.X, p.Y = x, y
	return true
}

// CastVote records a vote for id, or retracts it when value is nil. It
// has effect only during Voting and only for a known participant;
// otherwise it is a silent no-op.
func (s *State) CastVote(id uuid.UUID, value *int) bool {
	if s.Phase.Name != PhaseVoting {
		return false
	}
	if _, ok := s.Participants[id]; !ok {
		return false
	}
	if value == nil {
		if _, ok := s.Votes[id]; !ok {
			return false
		}
		delete(s.Votes, id)
		return true
	}
	s.Votes[id] = *value
	return true
}

// SetConfirmed sets the vote-confirmed flag regardless of phase.
// Unknown ids are a no-op.
func (s *State) SetConfirmed(id uuid.UUID, confirmed bool) bool {
	p, ok := s.Participants[id]
	if !ok {
		return false
	}
	if p.Confirmed == confirmed {
		return false
	}
	p.Confirmed = confirmed
	return true
}

// StartVote opens a round: phase becomes Voting, all votes and
// confirmed flags are cleared, and the ticket is replaced. Legal from
// Idle or Revealed only; during Voting it is a no-op. A nil
// timeoutSecs falls back to the config default, which may itself be
// nil (untimed).
func (s *State) StartVote(ticket *Ticket, timeoutSecs *int64, now time.Time) bool {
	if s.Phase.Name == PhaseVoting {
		return false
	}
	if timeoutSecs == nil {
		timeoutSecs = s.Config.DefaultTimeoutSecs
	}
	var dur *int64
	if timeoutSecs != nil {
		t := *timeoutSecs
		dur = &t
	}
	s.Phase = Phase{Name: PhaseVoting, StartedAt: now.Unix(), DurationSecs: dur}
	s.Ticket = ticket
	clear(s.Votes)
	for _, p := range s.Participants {
		p.Confirmed = false
	}
	return true
}

// Reveal closes the round and exposes all votes. Legal from Voting only.
func (s *State) Reveal() bool {
	if s.Phase.Name != PhaseVoting {
		return false
	}
	s.Phase = Phase{Name: PhaseRevealed}
	return true
}

// Reset returns the session to Idle: votes, ticket, and confirmed
// flags are cleared and every avatar moves to the reset position.
// Legal from Voting or Revealed; during Idle it is a no-op.
func (s *State) Reset() bool {
	if s.Phase.Name == PhaseIdle {
		return false
	}
	s.Phase = Phase{Name: PhaseIdle}
	s.Ticket = nil
	clear(s.Votes)
	for _, p := range s.Participants {
		p.Confirmed = false
		p.X, p.Y = ResetX, ResetY
	}
	return true
}

// Remove deletes a participant and any vote they cast. Unknown ids are
// a no-op.
func (s *State) Remove(id uuid.UUID) bool {
	if _, ok := s.Participants[id]; !ok {
		return false
	}
	delete(s.Participants, id)
	delete(s.Votes, id)
	return true
}

// SetConfig replaces the voting config. It does not touch the phase or
// any recorded votes.
func (s *State) SetConfig(cfg VotingConfig) {
	s.Config = cfg.Clone()
}
