package chat

import (
	"strings"
	"sync"

	"github.com/samber/lo"
)

// Member is a connection together with the identity it holds.
type Member struct {
	Conn     Conn
	Identity string
}

// Room is a named group of members. Each member carries exactly one
// connection, so the member and connection sets always have the same size.
type Room struct {
	Name    string
	members []Member
}

func (r *Room) identities() []string {
	return lo.Map(r.members, func(m Member, _ int) string { return m.Identity })
}

func (r *Room) conns() []Conn {
	return lo.Map(r.members, func(m Member, _ int) Conn { return m.Conn })
}

func (r *Room) remove(connID string) (Member, bool) {
	m, idx, ok := lo.FindIndexOf(r.members, func(m Member) bool { return m.Conn.ID() == connID })
	if !ok {
		return Member{}, false
	}
	r.members = append(r.members[:idx], r.members[idx+1:]...)
	return m, true
}

// Departure describes a member leaving a room.
type Departure struct {
	Room     string
	Identity string
	// Members lists who is left in the room.
	Members []string
	// Deleted is set when the departure emptied and removed the room.
	Deleted bool
}

// JoinResult describes a completed join.
type JoinResult struct {
	Room    string
	Members []string
	// Left is the room vacated on the way in, if any.
	Left *Departure
	// Created is set when the join created the room.
	Created bool
	// Rejoined is set when the member was already in the room; nothing changed.
	Rejoined bool
}

// Directory maps room names to rooms. A room is created by the join that
// first enters it and deleted by the leave that empties it, so every listed
// room has at least one member.
type Directory struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	order []string
	where map[string]string
}

// NewDirectory returns an empty Directory.
func NewDirectory() *Directory {
	return &Directory{
		rooms: make(map[string]*Room),
		where: make(map[string]string),
	}
}

// List returns room names in creation order.
func (d *Directory) List() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append(make([]string, 0, len(d.order)), d.order...)
}

// Len returns the number of rooms.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

func (d *Directory) createLocked(name string) bool {
	if _, ok := d.rooms[name]; ok {
		return false
	}
	d.rooms[name] = &Room{Name: name}
	d.order = append(d.order, name)
	return true
}

func (d *Directory) deleteLocked(name string) {
	delete(d.rooms, name)
	d.order = lo.Without(d.order, name)
}

// Join moves m into the named room, leaving its current room first. With
// create set a missing room is created, otherwise it is ErrNotFound. A missing
// room is reported ahead of a missing identity; either way nothing changes.
func (d *Directory) Join(m Member, name string, create bool) (JoinResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		if create {
			return JoinResult{}, errInvalidRoom
		}
		return JoinResult{}, errRoomMissing
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	_, exists := d.rooms[name]
	if !exists && !create {
		return JoinResult{}, errRoomMissing
	}
	if strings.TrimSpace(m.Identity) == "" {
		return JoinResult{}, errNoUsername
	}

	id := m.Conn.ID()
	if cur, ok := d.where[id]; ok && cur == name && exists {
		return JoinResult{Room: name, Members: d.rooms[name].identities(), Rejoined: true}, nil
	}

	var res JoinResult
	if !exists {
		res.Created = d.createLocked(name)
	}

	if dep, ok := d.leaveLocked(id); ok {
		res.Left = &dep
	}

	room := d.rooms[name]
	room.members = append(room.members, m)
	d.where[id] = name

	res.Room = name
	res.Members = room.identities()
	return res, nil
}

// Leave removes conn from its room, deleting the room when it empties. It
// reports false when conn was not in a room.
func (d *Directory) Leave(conn Conn) (Departure, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.leaveLocked(conn.ID())
}

func (d *Directory) leaveLocked(connID string) (Departure, bool) {
	name, ok := d.where[connID]
	if !ok {
		return Departure{}, false
	}
	delete(d.where, connID)

	room, ok := d.rooms[name]
	if !ok {
		return Departure{}, false
	}
	m, _ := room.remove(connID)

	dep := Departure{Room: name, Identity: m.Identity, Members: room.identities()}
	if len(room.members) == 0 {
		d.deleteLocked(name)
		dep.Deleted = true
	}
	return dep, true
}

// Rename updates the identity recorded for conn in its current room. It
// returns the room and its members, or false when conn is not in a room.
func (d *Directory) Rename(conn Conn, identity string) (string, []string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	name, ok := d.where[conn.ID()]
	if !ok {
		return "", nil, false
	}
	room, ok := d.rooms[name]
	if !ok {
		return "", nil, false
	}
	for i := range room.members {
		if room.members[i].Conn.ID() == conn.ID() {
			room.members[i].Identity = identity
		}
	}
	return name, room.identities(), true
}

// Members returns the identities in the named room.
func (d *Directory) Members(name string) ([]string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room, ok := d.rooms[name]
	if !ok {
		return nil, false
	}
	return room.identities(), true
}

// Conns returns a snapshot of the connections in the named room. A missing
// room has no connections.
func (d *Directory) Conns(name string) []Conn {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room, ok := d.rooms[name]
	if !ok {
		return nil
	}
	return room.conns()
}

// Sizes returns the member count of every room.
func (d *Directory) Sizes() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return lo.MapValues(d.rooms, func(r *Room, _ string) int { return len(r.members) })
}
