package stream

import (
	"encoding/json"
	"strings"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

type EventType string

const (
	EventStatus   EventType = "status"
	EventResponse EventType = "response"
	EventError    EventType = "error"
)

// Event is one classified frame from the chat stream.
type Event struct {
	Type           EventType
	Step           string
	ConversationID string
	Response       string
	Sources        []string
	ModeUsed       string
	ModelUsed      string
	ErrorText      string
}

// LineKind classifies what a framed line turned out to be.
type LineKind int

const (
	// LineIgnored is a line without the data prefix (blank keep-alives,
	// comments). Contributes nothing.
	LineIgnored LineKind = iota
	// LineEvent carries a decoded Event.
	LineEvent
	// LineDone is the terminal sentinel.
	LineDone
	// LineMalformed had the data prefix but an undecodable or unknown
	// payload. Skipped, never fatal.
	LineMalformed
)

// ParseLine classifies one complete line from the stream.
func ParseLine(line string) (Event, LineKind) {
	if !strings.HasPrefix(line, dataPrefix) {
		return Event{}, LineIgnored
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == doneSentinel {
		return Event{}, LineDone
	}
	if payload == "" {
		return Event{}, LineIgnored
	}

	var raw struct {
		Type           string   `json:"type"`
		Step           string   `json:"step"`
		ConversationID string   `json:"conversation_id"`
		Response       string   `json:"response"`
		Sources        []string `json:"sources"`
		ModeUsed       string   `json:"mode_used"`
		ModelUsed      string   `json:"model_used"`
		Error          string   `json:"error"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Event{}, LineMalformed
	}

	switch EventType(raw.Type) {
	case EventStatus:
		return Event{
			Type:           EventStatus,
			Step:           raw.Step,
			ConversationID: raw.ConversationID,
		}, LineEvent
	case EventResponse:
		return Event{
			Type:           EventResponse,
			Response:       raw.Response,
			ConversationID: raw.ConversationID,
			Sources:        raw.Sources,
			ModeUsed:       raw.ModeUsed,
			ModelUsed:      raw.ModelUsed,
		}, LineEvent
	case EventError:
		return Event{
			Type:      EventError,
			ErrorText: raw.Error,
		}, LineEvent
	default:
		return Event{}, LineMalformed
	}
}
