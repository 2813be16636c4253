package chat_test

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"github.com/SanjeetWD1419/chat-web/internal/chat"
)

var fixedNow = time.UnixMilli(1_700_000_000_000)

// recConn records every frame sent to it.
type recConn struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	closed bool
	// onSend, if set, runs for every accepted frame.
	onSend func(payload []byte)
}

func (c *recConn) ID() string { return c.id }

func (c *recConn) Send(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.frames = append(c.frames, payload)
	if c.onSend != nil {
		c.onSend(payload)
	}
	return true
}

// drain returns the events received since the last drain.
func (c *recConn) drain(t *testing.T) []chat.Event {
	t.Helper()
	c.mu.Lock()
	frames := c.frames
	c.frames = nil
	c.mu.Unlock()

	events := make([]chat.Event, 0, len(frames))
	for _, f := range frames {
		e, err := chat.DecodeEvent(f)
		require.NoError(t, err)
		events = append(events, e)
	}
	return events
}

// peerSet is the process-wide connection set for tests.
type peerSet struct {
	mu    sync.Mutex
	conns []chat.Conn
}

func (p *peerSet) Snapshot() []chat.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]chat.Conn(nil), p.conns...)
}

func (p *peerSet) remove(c chat.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, x := range p.conns {
		if x == c {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			return
		}
	}
}

type harness struct {
	relay *chat.Relay
	peers *peerSet
}

func newHarness() *harness {
	peers := &peerSet{}
	relay := chat.NewRelay(peers, logs.GetLoggerFromLevel(slog.LevelDebug)).
		WithClock(func() time.Time { return fixedNow })
	return &harness{relay: relay, peers: peers}
}

// open starts a session for c and greets it with the room list.
func open(relay *chat.Relay, c chat.Conn) *chat.Session {
	s := relay.NewSession(c)
	relay.Dispatcher.ToConn(c, relay.RoomsList())
	return s
}

// connect opens a session and discards the initial room list.
func (h *harness) connect(t *testing.T, id string) (*recConn, *chat.Session) {
	t.Helper()
	c := &recConn{id: id}
	h.peers.mu.Lock()
	h.peers.conns = append(h.peers.conns, c)
	h.peers.mu.Unlock()
	s := open(h.relay, c)
	c.drain(t)
	return c, s
}

func (h *harness) disconnect(c *recConn, s *chat.Session) {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	s.Close()
	h.peers.remove(c)
}

func notice(text string) chat.Message {
	return chat.Message{Username: chat.SystemUsername, Text: text, TS: fixedNow.UnixMilli()}
}

// enter claims name and creates or joins room, discarding the resulting events.
func (h *harness) enter(t *testing.T, id, name, room string) (*recConn, *chat.Session) {
	t.Helper()
	c, s := h.connect(t, id)
	require.NoError(t, s.Handle(chat.SetUsername{Username: name}))
	require.NoError(t, s.Handle(chat.CreateRoom{Room: room}))
	for _, p := range h.peers.Snapshot() {
		p.(*recConn).drain(t)
	}
	return c, s
}

func TestRelay_NewSession(t *testing.T) {
	h := newHarness()
	h.enter(t, "c1", "alice", "lobby")

	c := &recConn{id: "c2"}
	s := h.relay.NewSession(c)
	require.Equal(t, chat.Unauthenticated, s.State())
	require.Empty(t, c.drain(t), "a new session sends nothing by itself")
	require.Equal(t, chat.RoomsList{Rooms: []string{"lobby"}}, h.relay.RoomsList())
}

func TestSession_SetUsername(t *testing.T) {
	h := newHarness()
	c, s := h.connect(t, "c1")

	require.NoError(t, s.Handle(chat.SetUsername{Username: " alice "}))
	require.Equal(t, "alice", s.Identity())
	require.Equal(t, chat.Idle, s.State())
	require.Equal(t, []chat.Event{chat.UserList{Users: []string{}}}, c.drain(t))
}

func TestSession_SetUsername_Invalid(t *testing.T) {
	h := newHarness()
	c, s := h.connect(t, "c1")

	err := s.Handle(chat.SetUsername{Username: "   "})
	require.ErrorIs(t, err, chat.ErrInvalidInput)
	require.Equal(t, chat.Unauthenticated, s.State())
	require.Equal(t, []chat.Event{chat.ErrorReply{Error: "Invalid username."}}, c.drain(t))
}

func TestSession_SetUsername_DuplicateRejected(t *testing.T) {
	h := newHarness()
	a, sa := h.connect(t, "a")
	b, sb := h.connect(t, "b")

	require.NoError(t, sa.Handle(chat.SetUsername{Username: "alice"}))
	a.drain(t)

	err := sb.Handle(chat.SetUsername{Username: "alice"})
	require.ErrorIs(t, err, chat.ErrAlreadyInUse)
	require.Equal(t, []chat.Event{chat.ErrorReply{Error: "Username already in use. Choose another."}}, b.drain(t))
	require.Empty(t, a.drain(t))
	require.Equal(t, "alice", sa.Identity())
	require.Empty(t, sb.Identity())
}

func TestSession_SetUsername_RenameInRoom(t *testing.T) {
	h := newHarness()
	a, sa := h.enter(t, "a", "alice", "lobby")
	b, _ := h.enter(t, "b", "bob", "lobby")
	a.drain(t)

	require.NoError(t, sa.Handle(chat.SetUsername{Username: "alicia"}))
	want := []chat.Event{chat.UserList{Users: []string{"alicia", "bob"}}}
	require.Equal(t, want, a.drain(t))
	require.Equal(t, want, b.drain(t))

	// The old name is free again.
	_, sc := h.connect(t, "c")
	require.NoError(t, sc.Handle(chat.SetUsername{Username: "alice"}))
}

func TestSession_CreateRoom(t *testing.T) {
	h := newHarness()
	a, sa := h.connect(t, "a")
	watcher, _ := h.connect(t, "w")

	require.NoError(t, sa.Handle(chat.SetUsername{Username: "alice"}))
	a.drain(t)

	require.NoError(t, sa.Handle(chat.CreateRoom{Room: "lobby"}))
	require.Equal(t, chat.InRoom, sa.State())
	require.Equal(t, "lobby", sa.Room())
	require.Equal(t, []chat.Event{
		chat.Joined{Username: "alice", Room: "lobby"},
		notice("alice joined the room."),
		chat.UserList{Users: []string{"alice"}},
		chat.RoomsUpdate{Rooms: []string{"lobby"}},
	}, a.drain(t))

	// Connections outside the room only see the room list change.
	require.Equal(t, []chat.Event{chat.RoomsUpdate{Rooms: []string{"lobby"}}}, watcher.drain(t))
}

func TestSession_CreateRoom_Invalid(t *testing.T) {
	h := newHarness()
	a, sa := h.connect(t, "a")
	require.NoError(t, sa.Handle(chat.SetUsername{Username: "alice"}))
	a.drain(t)

	err := sa.Handle(chat.CreateRoom{Room: " "})
	require.ErrorIs(t, err, chat.ErrInvalidInput)
	require.Equal(t, []chat.Event{chat.ErrorReply{Error: "Invalid room name."}}, a.drain(t))
}

func TestSession_CreateRoom_WithoutUsername(t *testing.T) {
	h := newHarness()
	a, sa := h.connect(t, "a")

	err := sa.Handle(chat.CreateRoom{Room: "lobby"})
	require.ErrorIs(t, err, chat.ErrUnauthenticated)
	require.Equal(t, []chat.Event{chat.ErrorReply{Error: "Set username before joining a room."}}, a.drain(t))
	require.Empty(t, h.relay.Directory.List())
}

func TestSession_JoinRoom_Missing(t *testing.T) {
	h := newHarness()
	a, sa := h.connect(t, "a")
	require.NoError(t, sa.Handle(chat.SetUsername{Username: "alice"}))
	a.drain(t)

	err := sa.Handle(chat.JoinRoom{Room: "nowhere"})
	require.ErrorIs(t, err, chat.ErrNotFound)
	require.Equal(t, []chat.Event{chat.ErrorReply{Error: "Room does not exist."}}, a.drain(t))
	require.Empty(t, h.relay.Directory.List())
	require.Equal(t, chat.Idle, sa.State())
}

func TestSession_JoinRoom_MissingWithoutUsername(t *testing.T) {
	h := newHarness()
	a, sa := h.connect(t, "a")

	err := sa.Handle(chat.JoinRoom{Room: "nowhere"})
	require.ErrorIs(t, err, chat.ErrNotFound)
	require.Equal(t, []chat.Event{chat.ErrorReply{Error: "Room does not exist."}}, a.drain(t))

	h.enter(t, "b", "bob", "lobby")
	a.drain(t)
	err = sa.Handle(chat.JoinRoom{Room: "lobby"})
	require.ErrorIs(t, err, chat.ErrUnauthenticated)
	require.Equal(t, []chat.Event{chat.ErrorReply{Error: "Set username before joining a room."}}, a.drain(t))
}

func TestSession_RejectionLogsStateName(t *testing.T) {
	var buf bytes.Buffer
	relay := chat.NewRelay(&peerSet{}, slog.New(slog.NewJSONHandler(&buf, nil)))
	s := relay.NewSession(&recConn{id: "a"})

	require.ErrorIs(t, s.Handle(chat.SendMessage{Text: "hi"}), chat.ErrUnauthenticated)
	require.Contains(t, buf.String(), `"state":"unauthenticated"`)
}

func TestSession_JoinRoom_SwitchesRooms(t *testing.T) {
	h := newHarness()
	a, sa := h.enter(t, "a", "alice", "lobby")
	b, _ := h.enter(t, "b", "bob", "lobby")
	c, _ := h.enter(t, "c", "carol", "games")
	a.drain(t)

	require.NoError(t, sa.Handle(chat.JoinRoom{Room: "games"}))

	require.Equal(t, []chat.Event{
		notice("alice left the room."),
		chat.UserList{Users: []string{"bob"}},
		chat.RoomsUpdate{Rooms: []string{"lobby", "games"}},
	}, b.drain(t))

	require.Equal(t, []chat.Event{
		notice("alice joined the room."),
		chat.UserList{Users: []string{"carol", "alice"}},
		chat.RoomsUpdate{Rooms: []string{"lobby", "games"}},
	}, c.drain(t))

	require.Equal(t, []chat.Event{
		chat.Joined{Username: "alice", Room: "games"},
		notice("alice joined the room."),
		chat.UserList{Users: []string{"carol", "alice"}},
		chat.RoomsUpdate{Rooms: []string{"lobby", "games"}},
	}, a.drain(t))
}

func TestSession_JoinRoom_AlreadyThere(t *testing.T) {
	h := newHarness()
	a, sa := h.enter(t, "a", "alice", "lobby")
	b, _ := h.enter(t, "b", "bob", "lobby")
	a.drain(t)

	require.NoError(t, sa.Handle(chat.JoinRoom{Room: "lobby"}))
	require.Equal(t, []chat.Event{
		chat.Joined{Username: "alice", Room: "lobby"},
		chat.UserList{Users: []string{"alice", "bob"}},
	}, a.drain(t))
	require.Empty(t, b.drain(t))
}

func TestSession_ListRooms(t *testing.T) {
	h := newHarness()
	h.enter(t, "a", "alice", "lobby")
	h.enter(t, "b", "bob", "games")
	c, sc := h.connect(t, "c")

	require.NoError(t, sc.Handle(chat.ListRooms{}))
	require.Equal(t, []chat.Event{chat.RoomsList{Rooms: []string{"lobby", "games"}}}, c.drain(t))
}

func TestSession_Message_BroadcastToRoomOnly(t *testing.T) {
	h := newHarness()
	a, sa := h.enter(t, "a", "alice", "lobby")
	b, _ := h.enter(t, "b", "bob", "lobby")
	c, _ := h.enter(t, "c", "carol", "games")
	a.drain(t)

	require.NoError(t, sa.Handle(chat.SendMessage{Text: " hi "}))

	want := []chat.Event{chat.Message{Username: "alice", Text: "hi", TS: fixedNow.UnixMilli()}}
	require.Equal(t, want, a.drain(t))
	require.Equal(t, want, b.drain(t))
	require.Empty(t, c.drain(t))
}

func TestSession_Message_WhitespaceDropped(t *testing.T) {
	h := newHarness()
	a, sa := h.enter(t, "a", "alice", "lobby")
	b, _ := h.enter(t, "b", "bob", "lobby")
	a.drain(t)

	require.NoError(t, sa.Handle(chat.SendMessage{Text: "   "}))
	require.Empty(t, a.drain(t))
	require.Empty(t, b.drain(t))

	// Blank text is dropped even before a room is joined.
	x, sx := h.connect(t, "x")
	require.NoError(t, sx.Handle(chat.SendMessage{Text: ""}))
	require.Empty(t, x.drain(t))
}

func TestSession_Message_RequiresRoom(t *testing.T) {
	h := newHarness()
	b, _ := h.enter(t, "b", "bob", "lobby")

	a, sa := h.connect(t, "a")
	err := sa.Handle(chat.SendMessage{Text: "hi"})
	require.ErrorIs(t, err, chat.ErrUnauthenticated)
	require.Equal(t, []chat.Event{chat.ErrorReply{Error: "You must join a room first."}}, a.drain(t))

	require.NoError(t, sa.Handle(chat.SetUsername{Username: "alice"}))
	a.drain(t)
	err = sa.Handle(chat.SendMessage{Text: "hi"})
	require.ErrorIs(t, err, chat.ErrUnauthenticated)
	require.Equal(t, []chat.Event{chat.ErrorReply{Error: "You must join a room first."}}, a.drain(t))

	require.Empty(t, b.drain(t))
}

func TestSession_Close_SoleMemberDeletesRoom(t *testing.T) {
	h := newHarness()
	a, sa := h.enter(t, "a", "alice", "lobby")
	w, _ := h.connect(t, "w")

	h.disconnect(a, sa)

	require.Equal(t, chat.Closed, sa.State())
	require.Empty(t, h.relay.Directory.List())
	require.Zero(t, h.relay.Registry.Len())
	require.Equal(t, []chat.Event{chat.RoomsUpdate{Rooms: []string{}}}, w.drain(t))
}

func TestSession_Close_NotifiesRemainingMembers(t *testing.T) {
	h := newHarness()
	a, sa := h.enter(t, "a", "alice", "lobby")
	b, _ := h.enter(t, "b", "bob", "lobby")
	b.drain(t)

	h.disconnect(a, sa)
	require.Equal(t, []chat.Event{
		notice("alice left the room."),
		chat.UserList{Users: []string{"bob"}},
	}, b.drain(t))

	// The name can be claimed again.
	_, sc := h.connect(t, "c")
	require.NoError(t, sc.Handle(chat.SetUsername{Username: "alice"}))
}

func TestSession_Close_HoldsNameUntilDepartureAnnounced(t *testing.T) {
	h := newHarness()
	a, sa := h.enter(t, "a", "alice", "lobby")
	b, _ := h.enter(t, "b", "bob", "lobby")
	b.drain(t)

	var heldDuringNotice []bool
	b.onSend = func([]byte) {
		_, held := h.relay.Registry.Holder("alice")
		heldDuringNotice = append(heldDuringNotice, held)
	}

	h.disconnect(a, sa)
	require.Equal(t, []bool{true, true}, heldDuringNotice, "name released only after the room was told")
	_, held := h.relay.Registry.Holder("alice")
	require.False(t, held)
}

func TestSession_Close_Idempotent(t *testing.T) {
	h := newHarness()
	a, sa := h.enter(t, "a", "alice", "lobby")
	h.disconnect(a, sa)
	sa.Close()

	require.NoError(t, sa.Handle(chat.SendMessage{Text: "ghost"}))
	require.Empty(t, a.drain(t))
}

func TestSession_HandleFrame_IgnoresGarbage(t *testing.T) {
	h := newHarness()
	a, sa := h.connect(t, "a")

	require.NoError(t, sa.HandleFrame([]byte(`{{{`)))
	require.NoError(t, sa.HandleFrame([]byte(`{"type":"teleport"}`)))
	require.Empty(t, a.drain(t))

	require.NoError(t, sa.HandleFrame([]byte(`{"type":"set_username","username":"alice"}`)))
	require.Equal(t, "alice", sa.Identity())
}

func TestSession_ConcurrentSessionsKeepRoomsConsistent(t *testing.T) {
	h := newHarness()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		c := &recConn{id: string(rune('a' + i))}
		h.peers.mu.Lock()
		h.peers.conns = append(h.peers.conns, c)
		h.peers.mu.Unlock()

		wg.Add(1)
		go func(c *recConn) {
			defer wg.Done()
			s := open(h.relay, c)
			_ = s.Handle(chat.SetUsername{Username: "user-" + c.id})
			for j := 0; j < 20; j++ {
				room := []string{"red", "green", "blue"}[j%3]
				_ = s.Handle(chat.CreateRoom{Room: room})
				_ = s.Handle(chat.SendMessage{Text: "ping"})
			}
			s.Close()
		}(c)
	}
	wg.Wait()

	require.Empty(t, h.relay.Directory.List())
	require.Zero(t, h.relay.Registry.Len())
}
