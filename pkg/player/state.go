package player

import (
	"fmt"

	"readaloud/pkg/cache"
	"readaloud/pkg/model"
)

// State is the controller's position in the session lifecycle.
type State int

const (
	Idle State = iota
	Requesting
	Streaming
	Buffering
	Ready
	Error
)

func (s State) String() string {
	switch s {
	case Requesting:
		return "requesting"
	case Streaming:
		return "streaming"
	case Buffering:
		return "buffering"
	case Ready:
		return "ready"
	case Error:
		return "error"
	default:
		return "idle"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for st := Idle; st <= Error; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown player state %q", b)
}

// Reader-facing strings.
const (
	labelPlay     = "Play audio"
	labelGenerate = "Generate audio"
	hintReady     = "Ready — press play below."
	progressText  = "Generating audio…"
)

// Status is a point-in-time view of the controller for display.
type Status struct {
	State           State            `json:"state"`
	Selected        model.Language   `json:"selected"`
	Loading         model.Language   `json:"loading,omitempty"`
	Error           string           `json:"error,omitempty"`
	ButtonLabel     string           `json:"button_label"`
	ActionsDisabled bool             `json:"actions_disabled"`
	Hint            string           `json:"hint,omitempty"`
	Progress        string           `json:"progress,omitempty"`
	Notice          string           `json:"notice,omitempty"`
	ModelLabel      string           `json:"model_label"`
	Entry           *cache.Entry     `json:"entry,omitempty"`
	Cached          []model.Language `json:"cached"`
}

// Caption is the line shown under the player: the notice followed by the model in use.
func (s Status) Caption() string {
	if s.Entry == nil || s.Entry.Model == "" {
		return s.Notice
	}
	if s.Notice == "" {
		return fmt.Sprintf("Using %s.", s.Entry.Model)
	}
	return fmt.Sprintf("%s Using %s.", s.Notice, s.Entry.Model)
}
