package automation

// View is what a presentation layer should display for the session. It is one
// of NoSession, PendingEcho or Live.
type View interface {
	isView()
}

// NoSession means nothing was submitted yet.
type NoSession struct{}

// PendingEcho shows text the user submitted before the engine acknowledged it.
type PendingEcho struct {
	Text string
}

// Live shows the controller's session. Instruction falls back to the local
// echo when the effective instruction is empty, as with tasker submissions.
type Live struct {
	State       State
	Instruction string
}

func (NoSession) isView()   {}
func (PendingEcho) isView() {}
func (Live) isView()        {}

// ViewOf combines a session snapshot with the presentation layer's local echo
// of the last submitted text. The snapshot always wins once a run has been
// acknowledged, except while a new start request is still in flight.
func ViewOf(s State, echo string) View {
	pending := s.Loading && !s.Running()
	switch {
	case echo != "" && (pending || !s.Started()):
		return PendingEcho{Text: echo}
	case s.Started():
		instruction := s.Instruction
		if instruction == "" {
			instruction = echo
		}
		return Live{State: s, Instruction: instruction}
	default:
		return NoSession{}
	}
}
