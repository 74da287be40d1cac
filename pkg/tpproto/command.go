package tpproto

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ProtocolError reports a malformed host command. It is always recovered
// locally and surfaced to the host as an "error" event.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol: " + e.Reason
}

// Command is the closed set of commands the host protocol defines.
type Command interface {
	Action() string
}

// SendMessage asks the bridge to deliver a message to a named destination.
type SendMessage struct {
	Destination string
	Message     string
}

func (SendMessage) Action() string { return ActionNameSendMessage }

// ClosePlugin is the host's teardown command.
type ClosePlugin struct{}

func (ClosePlugin) Action() string { return ActionNameClosePlugin }

// ParseCommand validates one host protocol line against the declared action
// schema. Missing required fields and wrong field types are rejected with a
// ProtocolError, never a crash.
func ParseCommand(data []byte) (Command, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ProtocolError{Reason: "invalid JSON: " + err.Error()}
	}

	action, err := stringField(raw, "action")
	if err != nil {
		return nil, err
	}

	// Keying on the declared action id keeps the validator and the
	// generated manifest in lockstep.
	switch action {
	case ActionName(SendMessageActionID):
		dest, err := stringField(raw, "destination")
		if err != nil {
			return nil, err
		}
		msg, err := stringField(raw, "message")
		if err != nil {
			return nil, err
		}
		return SendMessage{Destination: dest, Message: msg}, nil
	case ActionNameClosePlugin:
		return ClosePlugin{}, nil
	default:
		return nil, &ProtocolError{Reason: fmt.Sprintf("unknown action %q", action)}
	}
}

func stringField(raw map[string]json.RawMessage, key string) (string, error) {
	v, ok := raw[key]
	if !ok {
		return "", &ProtocolError{Reason: "missing required field " + strconv.Quote(key)}
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", &ProtocolError{Reason: "field " + strconv.Quote(key) + " must be a string"}
	}
	return s, nil
}
