package story

// Role identifies who authored a turn.
type Role string

const (
	RolePlayer   Role = "player"
	RoleNarrator Role = "narrator"
)

// WelcomeTurnID marks the scripted greeting that opens every adventure.
// It is shown to the player but never sent to a provider or persisted.
const WelcomeTurnID = "start-prompt"

// Turn is one line of dialogue. Turns are appended, never edited.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
	ID   string `json:"id"`
}

func (t Turn) IsWelcome() bool {
	return t.ID == WelcomeTurnID
}

// WithoutWelcome returns a copy of turns with the scripted welcome entry removed.
func WithoutWelcome(turns []Turn) []Turn {
	out := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if t.IsWelcome() {
			continue
		}
		out = append(out, t)
	}
	return out
}

// StoryLog is the running journal the narrator keeps about the adventure.
type StoryLog struct {
	CastOfCharacters []string `json:"castOfCharacters"`
	WorldAndSetting  string   `json:"worldAndSetting"`
	KeyPlotPoints    []string `json:"keyPlotPoints"`
}

// NewStoryLog returns a log with every field present and empty.
func NewStoryLog() StoryLog {
	return StoryLog{
		CastOfCharacters: []string{},
		KeyPlotPoints:    []string{},
	}
}

// Clone returns a deep copy with nil slices replaced by empty ones.
func (l StoryLog) Clone() StoryLog {
	return StoryLog{
		CastOfCharacters: cloneStrings(l.CastOfCharacters),
		WorldAndSetting:  l.WorldAndSetting,
		KeyPlotPoints:    cloneStrings(l.KeyPlotPoints),
	}
}

// StoryLogUpdate is a partial log decoded from a model response.
// Nil fields were absent from the response.
type StoryLogUpdate struct {
	CastOfCharacters *[]string `json:"castOfCharacters,omitempty"`
	WorldAndSetting  *string   `json:"worldAndSetting,omitempty"`
	KeyPlotPoints    *[]string `json:"keyPlotPoints,omitempty"`
}

func (u StoryLogUpdate) Empty() bool {
	return u.CastOfCharacters == nil && u.WorldAndSetting == nil && u.KeyPlotPoints == nil
}

// Merge applies u on top of l. Present fields replace the previous value
// entirely (lists are not concatenated); absent fields are left alone.
func (l StoryLog) Merge(u StoryLogUpdate) StoryLog {
	out := l.Clone()
	if u.CastOfCharacters != nil {
		out.CastOfCharacters = cloneStrings(*u.CastOfCharacters)
	}
	if u.WorldAndSetting != nil {
		out.WorldAndSetting = *u.WorldAndSetting
	}
	if u.KeyPlotPoints != nil {
		out.KeyPlotPoints = cloneStrings(*u.KeyPlotPoints)
	}
	return out
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
