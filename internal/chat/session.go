package chat

import (
	"errors"
	"log/slog"
	"strings"
	"time"
)

// Relay owns the process-wide chat state: the identity registry, the room
// directory and the dispatcher that fans events out over them.
type Relay struct {
	Registry   *Registry
	Directory  *Directory
	Dispatcher *Dispatcher

	log *slog.Logger
	now func() time.Time
}

// NewRelay builds an empty Relay. peers supplies the set of open connections
// used for process-wide room list updates.
func NewRelay(peers Peers, log *slog.Logger) *Relay {
	dir := NewDirectory()
	return &Relay{
		Registry:   NewRegistry(),
		Directory:  dir,
		Dispatcher: NewDispatcher(dir, peers, log),
		log:        log,
		now:        time.Now,
	}
}

// WithClock replaces the time source used for message timestamps.
func (r *Relay) WithClock(now func() time.Time) *Relay {
	r.now = now
	return r
}

// NewSession starts a session for a freshly connected c. The caller delivers
// RoomsList to c before any other event.
func (r *Relay) NewSession(c Conn) *Session {
	return &Session{relay: r, conn: c, log: r.log.With("conn", c.ID())}
}

// RoomsList returns the current room names as a rooms_list event.
func (r *Relay) RoomsList() RoomsList {
	return RoomsList{Rooms: r.Directory.List()}
}

// State is the protocol state of a session.
type State int

const (
	Unauthenticated State = iota
	Idle
	InRoom
	Closed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Idle:
		return "idle"
	case InRoom:
		return "in_room"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the per-connection protocol handler. Handle, HandleFrame and
// Close must be called from a single goroutine; the transport calls them from
// the connection's read loop, so a disconnect is processed after the last
// request, never alongside it.
type Session struct {
	relay    *Relay
	conn     Conn
	log      *slog.Logger
	identity string
	room     string
	closed   bool
}

// Identity returns the claimed display name, or "".
func (s *Session) Identity() string { return s.identity }

// Room returns the current room name, or "".
func (s *Session) Room() string { return s.room }

// State reports where the session is in its lifecycle.
func (s *Session) State() State {
	switch {
	case s.closed:
		return Closed
	case s.identity == "":
		return Unauthenticated
	case s.room == "":
		return Idle
	default:
		return InRoom
	}
}

// HandleFrame decodes and handles one raw inbound frame. Malformed frames and
// unknown request types are ignored without a reply.
func (s *Session) HandleFrame(raw []byte) error {
	req, err := DecodeRequest(raw)
	if err != nil {
		s.log.Debug("Ignoring inbound frame", "err", err)
		return nil
	}
	return s.Handle(req)
}

// Handle applies one request. A failed request is reported to this
// connection as an error record and returned; the session stays usable.
func (s *Session) Handle(req Request) error {
	if s.closed {
		return nil
	}

	var err error
	switch req := req.(type) {
	case SetUsername:
		err = s.setUsername(req.Username)
	case CreateRoom:
		err = s.join(req.Room, true)
	case JoinRoom:
		err = s.join(req.Room, false)
	case ListRooms:
		s.reply(s.relay.RoomsList())
	case SendMessage:
		err = s.say(req.Text)
	default:
		return nil
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		s.log.Info("Request rejected", "state", s.State().String(), "reason", reqErr.Reason)
		s.reply(ErrorReply{Error: reqErr.Reason})
	}
	return err
}

// Close vacates the session's room, notifying the remaining members, and then
// releases its identity. The name stays held until the departure has been
// announced. It is safe to call more than once.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true

	if dep, ok := s.relay.Directory.Leave(s.conn); ok {
		s.announceDeparture(dep)
		if dep.Deleted {
			s.relay.Dispatcher.ToAll(RoomsUpdate{Rooms: s.relay.Directory.List()})
		}
	}
	released := s.relay.Registry.Release(s.conn.ID())
	if released != "" {
		s.log.Info("Session closed", "user", released, "room", s.room)
	}
	s.identity, s.room = "", ""
}

func (s *Session) setUsername(name string) error {
	released, err := s.relay.Registry.Claim(s.conn.ID(), name)
	if err != nil {
		return err
	}
	s.identity = strings.TrimSpace(name)
	s.log.Info("Username claimed", "user", s.identity, "previous", released)

	if s.room != "" {
		if room, members, ok := s.relay.Directory.Rename(s.conn, s.identity); ok {
			if released != "" {
				s.relay.Dispatcher.ToRoom(room, UserList{Users: members})
			} else {
				s.reply(UserList{Users: members})
			}
			return nil
		}
	}
	s.reply(UserList{Users: []string{}})
	return nil
}

func (s *Session) join(name string, create bool) error {
	res, err := s.relay.Directory.Join(Member{Conn: s.conn, Identity: s.identity}, name, create)
	if err != nil {
		return err
	}
	s.room = res.Room

	if res.Rejoined {
		s.reply(Joined{Username: s.identity, Room: res.Room})
		s.reply(UserList{Users: res.Members})
		return nil
	}

	if res.Left != nil {
		s.announceDeparture(*res.Left)
	}
	s.log.Info("Joined room", "user", s.identity, "room", res.Room, "created", res.Created, "members", len(res.Members))

	d := s.relay.Dispatcher
	s.reply(Joined{Username: s.identity, Room: res.Room})
	d.ToRoom(res.Room, s.notice(s.identity+" joined the room."))
	d.ToRoom(res.Room, UserList{Users: res.Members})
	d.ToAll(RoomsUpdate{Rooms: s.relay.Directory.List()})
	return nil
}

func (s *Session) say(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if s.identity == "" || s.room == "" {
		return errNotInRoom
	}
	s.relay.Dispatcher.ToRoom(s.room, Message{
		Username: s.identity,
		Text:     text,
		TS:       s.relay.now().UnixMilli(),
	})
	return nil
}

func (s *Session) announceDeparture(dep Departure) {
	s.log.Info("Left room", "user", dep.Identity, "room", dep.Room, "deleted", dep.Deleted)
	d := s.relay.Dispatcher
	d.ToRoom(dep.Room, s.notice(dep.Identity+" left the room."))
	d.ToRoom(dep.Room, UserList{Users: dep.Members})
}

func (s *Session) notice(text string) Message {
	return Message{Username: SystemUsername, Text: text, TS: s.relay.now().UnixMilli()}
}

func (s *Session) reply(e Event) {
	s.relay.Dispatcher.ToConn(s.conn, e)
}
