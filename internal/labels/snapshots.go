package labels

import (
	"encoding/json"
	"fmt"

	"github.com/hvirtala/bottletag-go/internal/datastore"
)

// StateSnapshot captures the externally visible state of a label at a point in
// time. Serialized copies ride along with every audit event so that history
// can be reconstructed without replaying the log.
type StateSnapshot struct {
	Status     datastore.LabelStatus `json:"status"`
	Location   string                `json:"location,omitempty"`
	LocationID string                `json:"locationId,omitempty"`
}

func snapshotOf(label *datastore.Label) StateSnapshot {
	return StateSnapshot{
		Status:     label.Status,
		Location:   label.Location,
		LocationID: label.LocationID,
	}
}

// transition is a typed from/to pair for one event kind. Constructors below
// enforce the legal payload shape per kind, so an event can never be written
// with a snapshot combination its type does not allow.
type transition struct {
	kind datastore.EventType
	from *StateSnapshot
	to   *StateSnapshot
}

// createdTransition has no prior state.
func createdTransition(to StateSnapshot) transition {
	return transition{kind: datastore.EventCreated, to: &to}
}

func assignedTransition(from, to StateSnapshot) transition {
	return transition{kind: datastore.EventAssigned, from: &from, to: &to}
}

func locationChangedTransition(from, to StateSnapshot) transition {
	return transition{kind: datastore.EventLocationChanged, from: &from, to: &to}
}

func retiredTransition(from, to StateSnapshot) transition {
	return transition{kind: datastore.EventRetired, from: &from, to: &to}
}

func countTransition(from, to StateSnapshot) transition {
	return transition{kind: datastore.EventCount, from: &from, to: &to}
}

// apply serializes the transition's snapshots onto an event row.
func (tr transition) apply(event *datastore.LabelEvent) error {
	event.Type = tr.kind
	if tr.from != nil {
		encoded, err := encodeSnapshot(*tr.from)
		if err != nil {
			return fmt.Errorf("encoding from snapshot: %w", err)
		}
		event.FromSnapshot = encoded
	}
	if tr.to != nil {
		encoded, err := encodeSnapshot(*tr.to)
		if err != nil {
			return fmt.Errorf("encoding to snapshot: %w", err)
		}
		event.ToSnapshot = encoded
	}
	return nil
}

func encodeSnapshot(s StateSnapshot) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeSnapshot parses a serialized snapshot from an audit event.
func DecodeSnapshot(raw string) (StateSnapshot, error) {
	var s StateSnapshot
	if raw == "" {
		return s, fmt.Errorf("empty snapshot")
	}
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return s, fmt.Errorf("decoding snapshot: %w", err)
	}
	return s, nil
}
