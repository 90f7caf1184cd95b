package protocol

import (
	"encoding/json"
	"fmt"
)

// Event names exchanged over the websocket
type Event string

const (
	// Inbound
	EventJoinRoom      Event = "join-room"
	EventCodeChange    Event = "code-change"
	EventCheckSolution Event = "check-solution"

	// Outbound
	EventConnected       Event = "connected"
	EventRoomInfo        Event = "room-info"
	EventCodeUpdate      Event = "code-update"
	EventMentorLeft      Event = "mentor-left"
	EventSolutionCorrect Event = "solution-correct"
	EventError           Event = "error"
)

// Envelope is the JSON frame carried by every websocket text message
type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinRoom struct {
	RoomID string `json:"roomId"`
}

// CodeChange is the payload of both code-change and check-solution
type CodeChange struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

type Connected struct {
	ID string `json:"id"`
}

// RoomInfo describes room occupancy. StudentID and IsMentor are set only
// when the message announces a join; a departure carries the count alone.
type RoomInfo struct {
	StudentID    string `json:"studentId,omitempty"`
	StudentCount int    `json:"studentCount"`
	IsMentor     *bool  `json:"isMentor,omitempty"`
}

type CodeUpdate struct {
	Code string `json:"code"`
}

type MentorLeft struct{}

type Error struct {
	Message string `json:"message"`
}

// Message is an outbound event with its typed payload
type Message struct {
	Event Event
	Data  any
}

// Encode serializes a message into a frame
func Encode(m Message) ([]byte, error) {
	var raw json.RawMessage
	if m.Data != nil {
		data, err := json.Marshal(m.Data)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", m.Event, err)
		}
		raw = data
	}
	return json.Marshal(Envelope{Event: m.Event, Data: raw})
}

// Decode parses a frame and validates its payload against the event.
// The returned value is a *JoinRoom or *CodeChange.
func Decode(frame []byte) (Event, any, error) {
	if len(frame) == 0 {
		return "", nil, fmt.Errorf("empty message")
	}

	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "", nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Event {
	case EventJoinRoom:
		var p JoinRoom
		if err := unmarshalPayload(env, &p); err != nil {
			return env.Event, nil, err
		}
		if p.RoomID == "" {
			return env.Event, nil, fmt.Errorf("%s: roomId is required", env.Event)
		}
		return env.Event, &p, nil
	case EventCodeChange, EventCheckSolution:
		var p CodeChange
		if err := unmarshalPayload(env, &p); err != nil {
			return env.Event, nil, err
		}
		if p.RoomID == "" {
			return env.Event, nil, fmt.Errorf("%s: roomId is required", env.Event)
		}
		return env.Event, &p, nil
	default:
		return env.Event, nil, fmt.Errorf("unknown event: %q", env.Event)
	}
}

func unmarshalPayload(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%s: missing data", env.Event)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%s: invalid data: %w", env.Event, err)
	}
	return nil
}

// Helpers for building outbound messages

func NewConnected(id string) Message {
	return Message{Event: EventConnected, Data: Connected{ID: id}}
}

func NewJoinInfo(connID string, studentCount int, isMentor bool) Message {
	return Message{Event: EventRoomInfo, Data: RoomInfo{
		StudentID:    connID,
		StudentCount: studentCount,
		IsMentor:     &isMentor,
	}}
}

func NewCountInfo(studentCount int) Message {
	return Message{Event: EventRoomInfo, Data: RoomInfo{StudentCount: studentCount}}
}

func NewCodeUpdate(code string) Message {
	return Message{Event: EventCodeUpdate, Data: CodeUpdate{Code: code}}
}

func NewMentorLeft() Message {
	return Message{Event: EventMentorLeft, Data: MentorLeft{}}
}

func NewSolutionCorrect() Message {
	return Message{Event: EventSolutionCorrect, Data: true}
}

func NewError(msg string) Message {
	return Message{Event: EventError, Data: Error{Message: msg}}
}
