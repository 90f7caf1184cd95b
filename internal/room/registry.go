package room

import "sort"

// Registry tracks live connections and the rooms each one is in.
// Like Table, it relies on its owner for serialization.
type Registry struct {
	conns map[string]map[string]struct{} // connID -> roomIDs
	rooms map[string]map[string]struct{} // roomID -> connIDs
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]map[string]struct{}),
		rooms: make(map[string]map[string]struct{}),
	}
}

func (r *Registry) Connect(connID string) {
	if _, ok := r.conns[connID]; !ok {
		r.conns[connID] = make(map[string]struct{})
	}
}

// Disconnect forgets the connection and every membership it held
func (r *Registry) Disconnect(connID string) {
	r.LeaveAll(connID)
	delete(r.conns, connID)
}

func (r *Registry) Connected(connID string) bool {
	_, ok := r.conns[connID]
	return ok
}

// Add records membership, registering the connection if needed
func (r *Registry) Add(connID, roomID string) {
	r.Connect(connID)
	r.conns[connID][roomID] = struct{}{}

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
	}
	members[connID] = struct{}{}
}

func (r *Registry) Remove(connID, roomID string) {
	if rooms, ok := r.conns[connID]; ok {
		delete(rooms, roomID)
	}
	if members, ok := r.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
}

// LeaveAll removes the connection from every room and returns those rooms
func (r *Registry) LeaveAll(connID string) []string {
	left := r.Rooms(connID)
	for _, roomID := range left {
		r.Remove(connID, roomID)
	}
	return left
}

// DropRoom removes every member from the room and returns them
func (r *Registry) DropRoom(roomID string) []string {
	members := r.Members(roomID)
	for _, connID := range members {
		r.Remove(connID, roomID)
	}
	return members
}

// Members returns the connections in a room, sorted
func (r *Registry) Members(roomID string) []string {
	return sortedKeys(r.rooms[roomID])
}

// Rooms returns the rooms a connection is in, sorted
func (r *Registry) Rooms(connID string) []string {
	return sortedKeys(r.conns[connID])
}

func (r *Registry) ConnectionCount() int {
	return len(r.conns)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
