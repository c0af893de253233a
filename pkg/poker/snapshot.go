package poker

import "github.com/google/uuid"

// VoteView is a vote as one viewer may see it. During Voting, Value is
// nil for every vote but the viewer's own; once revealed (or idle) all
// values are present.
type VoteView struct {
	HasVoted bool `json:"has_voted"`
	Value    *int `json:"value,omitempty"`
}

// Snapshot is the session as a single viewer may see it. It is a deep
// copy; mutating a snapshot never touches the live state.
type Snapshot struct {
	Participants map[uuid.UUID]Participant `json:"participants"`
	Phase        Phase                     `json:"phase"`
	Ticket       *Ticket                   `json:"ticket,omitempty"`
	Votes        map[uuid.UUID]VoteView    `json:"votes"`
	Config       VotingConfig              `json:"config"`
}

// FilterFor builds the snapshot for one viewer. While the phase is
// Voting, other participants' vote values are redacted down to the
// HasVoted flag; the viewer keeps its own value. Outside Voting all
// values pass through.
func (s *State) FilterFor(viewerID uuid.UUID) Snapshot {
	snap := Snapshot{
		Participants: make(map[uuid.UUID]Participant, len(s.Participants)),
		Phase:        s.Phase,
		Votes:        make(map[uuid.UUID]VoteView, len(s.Votes)),
		Config:       s.Config.Clone(),
	}
	if s.Phase.DurationSecs != nil {
		d := *s.Phase.DurationSecs
		snap.Phase.DurationSecs = &d
	}
	for id, p := range s.Participants {
		snap.Participants[id] = *p
	}
	if s.Ticket != nil {
		t := *s.Ticket
		snap.Ticket = &t
	}
	redact := s.Phase.Name == PhaseVoting
	for id, v := range s.Votes {
		view := VoteView{HasVoted: true}
		if !redact || id == viewerID {
			value := v
			view.Value = &value
		}
		snap.Votes[id] = view
	}
	return snap
}

// PlayerStatus is one participant in the status summary.
type PlayerStatus struct {
	Name     string
	HasVoted bool
}

// Status is the role-agnostic summary served by the HTTP mirror. It
// never carries vote values.
type Status struct {
	Phase        PhaseName
	Ticket       string
	Players      []PlayerStatus
	VotesCast    int
	TotalPlayers int
}

// StatusSummary builds the mirror summary from the current state.
func (s *State) StatusSummary() Status {
	st := Status{
		Phase:        s.Phase.Name,
		VotesCast:    len(s.Votes),
		TotalPlayers: len(s.Participants),
		Players:      make([]PlayerStatus, 0, len(s.Participants)),
	}
	if s.Ticket != nil {
		st.Ticket = s.Ticket.Title
	}
	for id, p := range s.Participants {
		_, voted := s.Votes[id]
		st.Players = append(st.Players, PlayerStatus{Name: p.Name, HasVoted: voted})
	}
	return st
}
