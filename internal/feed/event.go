// Package feed notifies open dashboards that new readings exist. Events only say that
// something changed for a user and device; subscribers re-query the store themselves.
package feed

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Event announces a newly stored reading.
type Event struct {
	CreatedAt time.Time
	UserID    string
	DeviceID  string
}

// Marshal encodes e as a protobuf Struct.
func (e Event) Marshal() ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"user_id":    e.UserID,
		"device_id":  e.DeviceID,
		"created_at": e.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build event: %w", err)
	}
	return proto.Marshal(s)
}

// UnmarshalEvent decodes an event written by Marshal.
func UnmarshalEvent(data []byte) (Event, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}

	fields := s.GetFields()
	e := Event{
		UserID:   fields["user_id"].GetStringValue(),
		DeviceID: fields["device_id"].GetStringValue(),
	}
	if e.UserID == "" {
		return Event{}, errors.New("event user_id cannot be empty")
	}

	if ts := fields["created_at"].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Event{}, fmt.Errorf("invalid event created_at: %w", err)
		}
		e.CreatedAt = t
	}
	return e, nil
}
