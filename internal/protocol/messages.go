package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/narrador/internal/story"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypePlayerText      MessageType = "player_text"
	TypeDiceRoll        MessageType = "dice_roll"
	TypeClientControl   MessageType = "client_control"
	TypeNarration       MessageType = "narration"
	TypeDiceRollRequest MessageType = "dice_roll_request"
	TypeSystemEvent     MessageType = "system_event"
	TypeErrorEvent      MessageType = "error_event"
)

// Client control actions.
const (
	ActionDiscard = "discard"
	ActionEnd     = "end"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type PlayerText struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Text      string      `json:"text"`
}

// DiceRoll resolves the pending roll. A nil Result asks the server to roll.
type DiceRoll struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Result    *int        `json:"result,omitempty"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Action    string      `json:"action"`
}

type Narration struct {
	Type         MessageType    `json:"type"`
	SessionID    string         `json:"session_id"`
	AdventureID  string         `json:"adventure_id"`
	TurnID       string         `json:"turn_id"`
	Text         string         `json:"text"`
	Source       string         `json:"source"`
	Provider     string         `json:"provider,omitempty"`
	StoryLog     story.StoryLog `json:"story_log"`
	SaveLaunched bool           `json:"save_launched"`
}

type DiceRollRequest struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Reason    string      `json:"reason"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypePlayerText:
		var msg PlayerText
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeDiceRoll:
		var msg DiceRoll
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Result != nil && (*msg.Result < 1 || *msg.Result > 20) {
			return nil, errors.New("invalid dice_roll: result must be between 1 and 20")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		msg.Action = strings.ToLower(strings.TrimSpace(msg.Action))
		if msg.Action != ActionDiscard && msg.Action != ActionEnd {
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
