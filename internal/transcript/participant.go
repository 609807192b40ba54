package transcript

// ParticipantKind classifies a participant. Values mirror the real-time
// client's kinds; only KindAgent matters here.
type ParticipantKind string

const (
	KindStandard ParticipantKind = "standard"
	KindAgent    ParticipantKind = "agent"
	KindIngress  ParticipantKind = "ingress"
	KindEgress   ParticipantKind = "egress"
	KindSIP      ParticipantKind = "sip"
)

// Participant is one party in the call.
type Participant struct {
	Identity   string          `json:"identity"`
	Name       string          `json:"name,omitempty"`
	Kind       ParticipantKind `json:"kind,omitempty"`
	Attributes Attributes      `json:"attributes"`
}

// DisplayName prefers the participant name and falls back to the identity.
func (p Participant) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Identity
}

// Roster is an immutable view of the participants in a room.
type Roster struct {
	participants []Participant
	byIdentity   map[string]int
}

// NewRoster copies participants into a roster. When identities repeat the
// first occurrence wins.
func NewRoster(participants []Participant) Roster {
	r := Roster{
		participants: make([]Participant, len(participants)),
		byIdentity:   make(map[string]int, len(participants)),
	}
	copy(r.participants, participants)
	for i, p := range r.participants {
		if _, seen := r.byIdentity[p.Identity]; !seen {
			r.byIdentity[p.Identity] = i
		}
	}
	return r
}

// Len returns the number of participants.
func (r Roster) Len() int {
	return len(r.participants)
}

// Participants returns a copy of the participant list.
func (r Roster) Participants() []Participant {
	out := make([]Participant, len(r.participants))
	copy(out, r.participants)
	return out
}

// Lookup finds a participant by identity.
func (r Roster) Lookup(identity string) (Participant, bool) {
	i, ok := r.byIdentity[identity]
	if !ok {
		return Participant{}, false
	}
	return r.participants[i], true
}

// Agent returns the first participant of kind agent, or nil.
func (r Roster) Agent() *Participant {
	for i := range r.participants {
		if r.participants[i].Kind == KindAgent {
			p := r.participants[i]
			return &p
		}
	}
	return nil
}

// AgentState derives the state of the roster's agent.
func (r Roster) AgentState() AgentState {
	return AgentStateOf(r.Agent())
}
