// Package event carries audit events between the pipeline stages, the NDJSON
// audit log and user-configured hooks.
package event

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType represents the type of event
type EventType string

const (
	MentionFiltered   EventType = "mention.filtered"
	DispatchCompleted EventType = "dispatch.completed"
	AgentCompleted    EventType = "agent.completed"
	ObserverDecided   EventType = "observer.decided"
)

// AllTypes lists every event type the pipeline emits.
var AllTypes = []EventType{MentionFiltered, DispatchCompleted, AgentCompleted, ObserverDecided}

// Event represents a typed system event
type Event[T any] struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Data      T         `json:"data"`
}

// EventMessage represents a serialized event for transport
type EventMessage struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent creates a new typed event
func NewEvent[T any](source string, data T) *Event[T] {
	return &Event[T]{
		ID:        ulid.Make().String(),
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	}
}

// ToMessage converts a typed event to a transport message
func (e *Event[T]) ToMessage() (*EventMessage, error) {
	rawData, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return &EventMessage{
		ID:        e.ID,
		Type:      typeOf(e.Data),
		Timestamp: e.Timestamp,
		Source:    e.Source,
		Data:      rawData,
	}, nil
}

// FromMessage converts a transport message to a typed event
func FromMessage[T any](msg *EventMessage) (*Event[T], error) {
	var data T
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		return nil, err
	}
	return &Event[T]{
		ID:        msg.ID,
		Timestamp: msg.Timestamp,
		Source:    msg.Source,
		Data:      data,
	}, nil
}

func typeOf(data any) EventType {
	switch data.(type) {
	case MentionFilteredData, *MentionFilteredData:
		return MentionFiltered
	case DispatchCompletedData, *DispatchCompletedData:
		return DispatchCompleted
	case AgentCompletedData, *AgentCompletedData:
		return AgentCompleted
	case ObserverDecidedData, *ObserverDecidedData:
		return ObserverDecided
	default:
		return "unknown"
	}
}

type MentionFilteredData struct {
	Issue    int      `json:"issue,omitempty"`
	Allowed  []string `json:"allowed"`
	Filtered []string `json:"filtered"`
}

// DispatchCompletedData is one agent's outcome within a dispatch run.
type DispatchCompletedData struct {
	RunID      string `json:"run_id"`
	Issue      int    `json:"issue"`
	SourceRepo string `json:"source_repo"`
	Agent      string `json:"agent"`
	Target     string `json:"target,omitempty"`
	Mode       string `json:"mode,omitempty"`
	OK         bool   `json:"ok"`
	Local      bool   `json:"local,omitempty"`
	DryRun     bool   `json:"dry_run,omitempty"`
	Code       string `json:"code,omitempty"`
}

type AgentCompletedData struct {
	Issue     int    `json:"issue"`
	Agent     string `json:"agent"`
	OK        bool   `json:"ok"`
	CostUSD   string `json:"cost_usd"`
	NumTurns  int    `json:"num_turns"`
	ToolCalls int    `json:"tool_calls"`
	Error     string `json:"error,omitempty"`
}

type ObserverDecidedData struct {
	Issue         int    `json:"issue"`
	ShouldTrigger bool   `json:"should_trigger"`
	Agent         string `json:"agent,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Error         string `json:"error,omitempty"`
}
