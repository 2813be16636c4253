package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound request types.
const (
	TypeSetUsername = "set_username"
	TypeCreateRoom  = "create_room"
	TypeJoinRoom    = "join_room"
	TypeListRooms   = "list_rooms"
	TypeMessage     = "message"
)

// Outbound event types. TypeMessage is shared with the inbound set.
const (
	TypeRoomsList   = "rooms_list"
	TypeRoomsUpdate = "rooms_update"
	TypeJoined      = "joined"
	TypeUserList    = "user_list"
	TypeError       = "error"
)

// SystemUsername is the author of server generated notices.
const SystemUsername = "system"

var (
	// ErrMalformed is returned for payloads that are not a JSON object with a
	// string type field.
	ErrMalformed = errors.New("malformed payload")
	// ErrUnknownType is returned for well-formed records with an unrecognised
	// type discriminator.
	ErrUnknownType = errors.New("unknown message type")
)

// Request is one inbound client record. The set of implementations is closed.
type Request interface {
	requestType() string
}

type SetUsername struct{ Username string }

type CreateRoom struct{ Room string }

type JoinRoom struct{ Room string }

type ListRooms struct{}

type SendMessage struct{ Text string }

func (SetUsername) requestType() string { return TypeSetUsername }
func (CreateRoom) requestType() string  { return TypeCreateRoom }
func (JoinRoom) requestType() string    { return TypeJoinRoom }
func (ListRooms) requestType() string   { return TypeListRooms }
func (SendMessage) requestType() string { return TypeMessage }

type inbound struct {
	Type     string `json:"type"`
	Username any    `json:"username"`
	Room     any    `json:"room"`
	Text     any    `json:"text"`
}

// DecodeRequest parses one inbound frame. Fields that are missing or not
// strings decode as empty strings and are rejected later by validation.
func DecodeRequest(raw []byte) (Request, error) {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch in.Type {
	case TypeSetUsername:
		return SetUsername{Username: asString(in.Username)}, nil
	case TypeCreateRoom:
		return CreateRoom{Room: asString(in.Room)}, nil
	case TypeJoinRoom:
		return JoinRoom{Room: asString(in.Room)}, nil
	case TypeListRooms:
		return ListRooms{}, nil
	case TypeMessage:
		return SendMessage{Text: asString(in.Text)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, in.Type)
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// Event is one outbound server record. The set of implementations is closed.
type Event interface {
	EventType() string
}

type RoomsList struct {
	Rooms []string `json:"rooms"`
}

type RoomsUpdate struct {
	Rooms []string `json:"rooms"`
}

type Joined struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

type UserList struct {
	Users []string `json:"users"`
}

// Message is a chat line. TS is milliseconds since the Unix epoch.
type Message struct {
	Username string `json:"username"`
	Text     string `json:"text"`
	TS       int64  `json:"ts"`
}

type ErrorReply struct {
	Error string `json:"error"`
}

func (RoomsList) EventType() string   { return TypeRoomsList }
func (RoomsUpdate) EventType() string { return TypeRoomsUpdate }
func (Joined) EventType() string      { return TypeJoined }
func (UserList) EventType() string    { return TypeUserList }
func (Message) EventType() string     { return TypeMessage }
func (ErrorReply) EventType() string  { return TypeError }

// Encode renders an event as a JSON object whose first key is "type".
func Encode(e Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.EventType(), err)
	}
	typ, err := json.Marshal(e.EventType())
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.EventType(), err)
	}

	out := make([]byte, 0, len(body)+len(typ)+9)
	out = append(out, `{"type":`...)
	out = append(out, typ...)
	if len(body) > 2 {
		out = append(out, ',')
	}
	return append(out, body[1:]...), nil
}

// DecodeEvent parses an outbound frame back into its typed event.
func DecodeEvent(raw []byte) (Event, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var (
		e   Event
		err error
	)
	switch head.Type {
	case TypeRoomsList:
		var v RoomsList
		err = json.Unmarshal(raw, &v)
		e = v
	case TypeRoomsUpdate:
		var v RoomsUpdate
		err = json.Unmarshal(raw, &v)
		e = v
	case TypeJoined:
		var v Joined
		err = json.Unmarshal(raw, &v)
		e = v
	case TypeUserList:
		var v UserList
		err = json.Unmarshal(raw, &v)
		e = v
	case TypeMessage:
		var v Message
		err = json.Unmarshal(raw, &v)
		e = v
	case TypeError:
		var v ErrorReply
		err = json.Unmarshal(raw, &v)
		e = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return e, nil
}
