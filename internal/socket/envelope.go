package socket

import (
	"encoding/json"
	"fmt"

	"stage-manager/internal/stage"
)

const (
	OpAddStageObject    = "addStageObject"
	OpRemoveStageObject = "removeStageObject"
	OpSyncStageObjects  = "syncStageObjects"
	OpPresence          = "presence"
)

// Delivery targets. Any other non-empty value is a user id (unicast).
const (
	TargetOthers = "others"
	TargetAll    = "all"
)

// Envelope is the relay frame. Sender and Elevated are stamped by the relay
// from the connection's token; values set by clients are overwritten.
type Envelope struct {
	Op       string          `json:"op"`
	Session  string          `json:"session,omitempty"`
	Sender   string          `json:"sender,omitempty"`
	Elevated bool            `json:"elevated,omitempty"`
	Target   string          `json:"target,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type AddPayload struct {
	Object   stage.Serialized `json:"object"`
	Revision uint64           `json:"revision,omitempty"`
}

type RemovePayload struct {
	ID string `json:"id"`
}

// SyncMessage is one tick's worth of changes. Revisions carries the logical
// clock for every id in Added and Updated.
type SyncMessage struct {
	Added     map[string]stage.Serialized `json:"added"`
	Updated   map[string]stage.Patch      `json:"updated"`
	Removed   []string                    `json:"removed"`
	Revisions map[string]uint64           `json:"revisions,omitempty"`
}

func NewSyncMessage() SyncMessage {
	return SyncMessage{
		Added:     make(map[string]stage.Serialized),
		Updated:   make(map[string]stage.Patch),
		Removed:   make([]string, 0),
		Revisions: make(map[string]uint64),
	}
}

func (m SyncMessage) Empty() bool {
	return len(m.Added) == 0 && len(m.Updated) == 0 && len(m.Removed) == 0
}

type Member struct {
	ID       string `json:"id"`
	Elevated bool   `json:"elevated"`
}

// Presence lists every user connected to a session.
type Presence struct {
	Users []Member `json:"users"`
}

func NewEnvelope(op, target string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", op, err)
	}
	return Envelope{Op: op, Target: target, Payload: data}, nil
}

// Decode unmarshals the payload into dest.
func (e Envelope) Decode(dest any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", stage.ErrValidation, e.Op)
	}
	if err := json.Unmarshal(e.Payload, dest); err != nil {
		return fmt.Errorf("%w: %s payload: %v", stage.ErrValidation, e.Op, err)
	}
	return nil
}
