package room

import (
	"sort"
	"time"
)

type Role int

const (
	RoleNone Role = iota
	RoleMentor
	RoleStudent
)

func (r Role) String() string {
	switch r {
	case RoleMentor:
		return "mentor"
	case RoleStudent:
		return "student"
	default:
		return "none"
	}
}

// What happened to a room when a connection was removed from it
type RemovalEffect int

const (
	NoChange RemovalEffect = iota
	StudentRemoved
	RoomDissolved
)

func (e RemovalEffect) String() string {
	switch e {
	case StudentRemoved:
		return "student_removed"
	case RoomDissolved:
		return "room_dissolved"
	default:
		return "no_change"
	}
}

// A collaborative session on one exercise
type Room struct {
	ID         string
	Mentor     string
	Students   map[string]struct{}
	Code       string
	LastActive time.Time
}

func newRoom(id string, now time.Time) *Room {
	return &Room{
		ID:         id,
		Students:   make(map[string]struct{}),
		LastActive: now,
	}
}

func (r *Room) StudentCount() int {
	return len(r.Students)
}

// Table is the in-memory map from room id to room state.
// It is not safe for concurrent use; the owner serializes access.
type Table struct {
	rooms map[string]*Room
	now   func() time.Time
}

func NewTable() *Table {
	return &Table{
		rooms: make(map[string]*Room),
		now:   time.Now,
	}
}

// Get returns the room or nil
func (t *Table) Get(roomID string) *Room {
	return t.rooms[roomID]
}

// Ensure returns the existing room or creates an empty one
func (t *Table) Ensure(roomID string) *Room {
	if r, ok := t.rooms[roomID]; ok {
		return r
	}
	r := newRoom(roomID, t.now())
	t.rooms[roomID] = r
	return r
}

// AssignRole gives the first joiner the mentor role and everyone after
// that a student seat. Rejoining keeps the existing role.
func (t *Table) AssignRole(roomID, connID string) Role {
	r := t.Ensure(roomID)
	r.LastActive = t.now()

	switch {
	case r.Mentor == "":
		r.Mentor = connID
		return RoleMentor
	case r.Mentor == connID:
		return RoleMentor
	}

	r.Students[connID] = struct{}{}
	return RoleStudent
}

func (t *Table) SetCode(roomID, code string) {
	r, ok := t.rooms[roomID]
	if !ok {
		return
	}
	r.Code = code
	r.LastActive = t.now()
}

func (t *Table) RemoveConnection(roomID, connID string) RemovalEffect {
	r, ok := t.rooms[roomID]
	if !ok {
		return NoChange
	}

	if r.Mentor == connID {
		delete(t.rooms, roomID)
		return RoomDissolved
	}

	if _, ok := r.Students[connID]; ok {
		delete(r.Students, connID)
		r.LastActive = t.now()
		return StudentRemoved
	}

	return NoChange
}

// Delete drops a room regardless of who is in it
func (t *Table) Delete(roomID string) bool {
	if _, ok := t.rooms[roomID]; !ok {
		return false
	}
	delete(t.rooms, roomID)
	return true
}

// Idle returns the ids of rooms with no activity since cutoff
func (t *Table) Idle(cutoff time.Time) []string {
	var ids []string
	for id, r := range t.rooms {
		if r.LastActive.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (t *Table) Len() int {
	return len(t.rooms)
}
