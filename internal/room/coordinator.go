package room

import (
	"log/slog"
	"time"

	"github.com/manpreetbhatti/codecollab/internal/protocol"
)

// Output is a message to deliver to a set of connections
type Output struct {
	Recipients []string
	Message    protocol.Message
}

// CheckRequest asks the solution checker to compare code against the
// exercise backing a room. The ids are captured when the request is made.
type CheckRequest struct {
	ConnID string
	RoomID string
	Code   string
}

type checkKey struct {
	roomID string
	code   string
}

// Coordinator applies membership and edit events to the room table and
// the connection registry and returns the messages they produce.
// Callers serialize all calls; the hub does so from its Run loop.
type Coordinator struct {
	table    *Table
	registry *Registry
	// Per connection, the code its last edit already sent for checking.
	// Consumed by the next Check.
	pendingCheck map[string]checkKey
	logger       *slog.Logger
}

func NewCoordinator(table *Table, registry *Registry, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		table:        table,
		registry:     registry,
		pendingCheck: make(map[string]checkKey),
		logger:       logger,
	}
}

func (c *Coordinator) Connect(connID string) []Output {
	c.registry.Connect(connID)
	return []Output{unicast(connID, protocol.NewConnected(connID))}
}

// Join moves a connection into a room. Any other room it was in is left
// first, with the same effects as a disconnect from that room.
func (c *Coordinator) Join(connID, roomID string) []Output {
	var out []Output

	for _, prev := range c.registry.Rooms(connID) {
		if prev == roomID {
			continue
		}
		c.registry.Remove(connID, prev)
		out = append(out, c.removeFrom(connID, prev)...)
	}

	c.registry.Add(connID, roomID)
	role := c.table.AssignRole(roomID, connID)
	r := c.table.Get(roomID)

	c.logger.Debug("joined room",
		"conn_id", connID,
		"room_id", roomID,
		"role", role,
		"students", r.StudentCount())

	out = append(out,
		Output{
			Recipients: c.registry.Members(roomID),
			Message:    protocol.NewJoinInfo(connID, r.StudentCount(), role == RoleMentor),
		},
		unicast(connID, protocol.NewCodeUpdate(r.Code)),
	)
	return out
}

// Edit stores new code for a room and fans it out to everyone but the
// sender. The returned request, if any, should be run through the
// solution checker and its result handed to SolutionResult.
func (c *Coordinator) Edit(connID, roomID, code string) ([]Output, *CheckRequest) {
	if c.table.Get(roomID) == nil {
		return nil, nil
	}

	c.table.SetCode(roomID, code)

	var out []Output
	if others := c.others(roomID, connID); len(others) > 0 {
		out = append(out, Output{Recipients: others, Message: protocol.NewCodeUpdate(code)})
	}
	c.pendingCheck[connID] = checkKey{roomID: roomID, code: code}
	return out, &CheckRequest{ConnID: connID, RoomID: roomID, Code: code}
}

// Check returns a check request. A check-solution that repeats the code
// of the edit just before it is already covered by that edit's check and
// yields nil; any other submission is always checked.
func (c *Coordinator) Check(connID, roomID, code string) *CheckRequest {
	pending, ok := c.pendingCheck[connID]
	delete(c.pendingCheck, connID)
	if ok && pending == (checkKey{roomID: roomID, code: code}) {
		return nil
	}
	return &CheckRequest{ConnID: connID, RoomID: roomID, Code: code}
}

// SolutionResult turns a finished check into a personal success signal.
// The room may have gone away while the check ran; only the requesting
// connection's liveness matters.
func (c *Coordinator) SolutionResult(req CheckRequest, correct bool) []Output {
	if !correct || !c.registry.Connected(req.ConnID) {
		return nil
	}
	return []Output{unicast(req.ConnID, protocol.NewSolutionCorrect())}
}

// CheckFailed reports a failed check to its requester. A matching
// pending check is dropped so that resubmitting the same code runs again.
func (c *Coordinator) CheckFailed(req CheckRequest, msg string) []Output {
	if pending, ok := c.pendingCheck[req.ConnID]; ok && pending == (checkKey{roomID: req.RoomID, code: req.Code}) {
		delete(c.pendingCheck, req.ConnID)
	}
	if !c.registry.Connected(req.ConnID) {
		return nil
	}
	return []Output{unicast(req.ConnID, protocol.NewError(msg))}
}

// Leave removes a connection from every room it is tracked in
func (c *Coordinator) Leave(connID string) []Output {
	var out []Output
	for _, roomID := range c.registry.LeaveAll(connID) {
		out = append(out, c.removeFrom(connID, roomID)...)
	}
	c.registry.Disconnect(connID)
	delete(c.pendingCheck, connID)
	return out
}

// Expire tears down a room whatever its occupancy and tells every
// member the session is over.
func (c *Coordinator) Expire(roomID string) []Output {
	if !c.table.Delete(roomID) {
		return nil
	}
	members := c.registry.DropRoom(roomID)
	c.logger.Info("room expired", "room_id", roomID, "members", len(members))
	if len(members) == 0 {
		return nil
	}
	return []Output{{Recipients: members, Message: protocol.NewMentorLeft()}}
}

// ExpireIdle expires rooms without activity since cutoff whose mentor is
// no longer a live connection. A room with a connected mentor stays up
// however quiet it is.
func (c *Coordinator) ExpireIdle(cutoff time.Time) ([]string, []Output) {
	var (
		ids []string
		out []Output
	)
	for _, id := range c.table.Idle(cutoff) {
		if r := c.table.Get(id); r != nil && c.registry.Connected(r.Mentor) {
			continue
		}
		ids = append(ids, id)
		out = append(out, c.Expire(id)...)
	}
	return ids, out
}

// removeFrom applies the table side of a departure. The connection must
// already be out of the registry's member set for roomID.
func (c *Coordinator) removeFrom(connID, roomID string) []Output {
	effect := c.table.RemoveConnection(roomID, connID)

	c.logger.Debug("left room",
		"conn_id", connID,
		"room_id", roomID,
		"effect", effect)

	switch effect {
	case RoomDissolved:
		members := c.registry.DropRoom(roomID)
		c.logger.Info("mentor left, room dissolved", "room_id", roomID, "orphaned", len(members))
		if len(members) == 0 {
			return nil
		}
		return []Output{{Recipients: members, Message: protocol.NewMentorLeft()}}
	case StudentRemoved:
		members := c.registry.Members(roomID)
		if len(members) == 0 {
			return nil
		}
		return []Output{{
			Recipients: members,
			Message:    protocol.NewCountInfo(c.table.Get(roomID).StudentCount()),
		}}
	default:
		return nil
	}
}

func (c *Coordinator) others(roomID, connID string) []string {
	members := c.registry.Members(roomID)
	others := members[:0]
	for _, m := range members {
		if m != connID {
			others = append(others, m)
		}
	}
	return others
}

// Snapshot reports occupancy for stats endpoints
type Snapshot struct {
	Rooms       int
	Connections int
	Members     map[string]int
}

func (c *Coordinator) Snapshot() Snapshot {
	s := Snapshot{
		Rooms:       c.table.Len(),
		Connections: c.registry.ConnectionCount(),
		Members:     make(map[string]int),
	}
	for id := range c.table.rooms {
		s.Members[id] = len(c.registry.Members(id))
	}
	return s
}

func unicast(connID string, msg protocol.Message) Output {
	return Output{Recipients: []string{connID}, Message: msg}
}
