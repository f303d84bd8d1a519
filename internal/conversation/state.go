package conversation

import "fmt"

// State is the phase a [Session] is in.
type State int

const (
	// Sleeping waits for a wake event. It is the only state in which the
	// wake detector is fed.
	Sleeping State = iota
	// Acknowledging speaks the acknowledgement after a wake event.
	Acknowledging
	// Listening records and transcribes one request.
	Listening
	// Thinking waits for the responder.
	Thinking
	// Speaking plays a reply, an apology or a notice.
	Speaking
	// Cooldown holds the pause after speaking so the assistant does not hear
	// its own voice.
	Cooldown
)

var stateNames = [...]string{
	Sleeping:      "sleeping",
	Acknowledging: "acknowledging",
	Listening:     "listening",
	Thinking:      "thinking",
	Speaking:      "speaking",
	Cooldown:      "cooldown",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
