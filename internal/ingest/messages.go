// Package ingest moves ride requests and opportunity events through Kafka.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/shared-ride/internal/models"
)

type RequestAction string

const (
	ActionUpsert RequestAction = "upsert"
	ActionRemove RequestAction = "remove"
)

var ErrInvalidMessage = errors.New("invalid ride request message")

// RequestMessage is the wire form of a pending-request change on the requests topic.
type RequestMessage struct {
	Action    RequestAction         `json:"action"`
	RequestID string                `json:"request_id"`
	Candidate *models.RideCandidate `json:"candidate,omitempty"`
}

func DecodeRequest(b []byte) (RequestMessage, error) {
	var m RequestMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return RequestMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	switch m.Action {
	case ActionUpsert:
		if m.Candidate == nil || m.Candidate.RequestID == "" {
			return RequestMessage{}, fmt.Errorf("%w: upsert without candidate", ErrInvalidMessage)
		}
		if err := m.Candidate.Origin.Validate(); err != nil {
			return RequestMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		if err := m.Candidate.Destination.Validate(); err != nil {
			return RequestMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		m.RequestID = m.Candidate.RequestID
	case ActionRemove:
		if m.RequestID == "" {
			return RequestMessage{}, fmt.Errorf("%w: remove without request id", ErrInvalidMessage)
		}
	default:
		return RequestMessage{}, fmt.Errorf("%w: unknown action %q", ErrInvalidMessage, m.Action)
	}
	return m, nil
}
