package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_AssignRole(t *testing.T) {
	table := NewTable()

	assert.Equal(t, RoleMentor, table.AssignRole("ex-1", "a"))
	assert.Equal(t, RoleStudent, table.AssignRole("ex-1", "b"))
	assert.Equal(t, RoleStudent, table.AssignRole("ex-1", "c"))

	r := table.Get("ex-1")
	require.NotNil(t, r)
	assert.Equal(t, "a", r.Mentor)
	assert.Equal(t, 2, r.StudentCount())
	assert.NotContains(t, r.Students, "a")
}

func TestTable_AssignRoleIsIdempotent(t *testing.T) {
	table := NewTable()
	table.AssignRole("ex-1", "a")
	table.AssignRole("ex-1", "b")

	assert.Equal(t, RoleMentor, table.AssignRole("ex-1", "a"))
	assert.Equal(t, RoleStudent, table.AssignRole("ex-1", "b"))

	r := table.Get("ex-1")
	assert.Equal(t, "a", r.Mentor)
	assert.Equal(t, 1, r.StudentCount())
}

func TestTable_EnsureStartsEmpty(t *testing.T) {
	table := NewTable()

	r := table.Ensure("ex-1")
	assert.Equal(t, "", r.Code)
	assert.Equal(t, "", r.Mentor)
	assert.Same(t, r, table.Ensure("ex-1"))
}

func TestTable_SetCode(t *testing.T) {
	table := NewTable()

	table.SetCode("missing", "x")
	assert.Nil(t, table.Get("missing"))

	table.Ensure("ex-1")
	table.SetCode("ex-1", "first")
	table.SetCode("ex-1", "second")
	assert.Equal(t, "second", table.Get("ex-1").Code)
}

func TestTable_RemoveConnection(t *testing.T) {
	tests := []struct {
		name     string
		remove   string
		expected RemovalEffect
		roomLeft bool
		students int
	}{
		{name: "mentor dissolves room", remove: "a", expected: RoomDissolved, roomLeft: false},
		{name: "student is removed", remove: "b", expected: StudentRemoved, roomLeft: true, students: 1},
		{name: "stranger changes nothing", remove: "z", expected: NoChange, roomLeft: true, students: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := NewTable()
			table.AssignRole("ex-1", "a")
			table.AssignRole("ex-1", "b")
			table.AssignRole("ex-1", "c")

			assert.Equal(t, tt.expected, table.RemoveConnection("ex-1", tt.remove))

			r := table.Get("ex-1")
			if !tt.roomLeft {
				assert.Nil(t, r)
				return
			}
			require.NotNil(t, r)
			assert.Equal(t, tt.students, r.StudentCount())
		})
	}

	t.Run("missing room", func(t *testing.T) {
		assert.Equal(t, NoChange, NewTable().RemoveConnection("nope", "a"))
	})
}

func TestTable_Idle(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	table := NewTable()
	table.now = func() time.Time { return now }

	table.AssignRole("old", "a")
	now = now.Add(time.Hour)
	table.AssignRole("new", "b")

	assert.Equal(t, []string{"old"}, table.Idle(now.Add(-time.Minute)))
	assert.Empty(t, table.Idle(now.Add(-2*time.Hour)))

	table.SetCode("old", "touch")
	assert.Empty(t, table.Idle(now.Add(-time.Minute)))
}

func TestRegistry_Membership(t *testing.T) {
	reg := NewRegistry()

	reg.Connect("a")
	reg.Add("a", "r1")
	reg.Add("b", "r1")
	reg.Add("a", "r2")

	assert.Equal(t, []string{"a", "b"}, reg.Members("r1"))
	assert.Equal(t, []string{"r1", "r2"}, reg.Rooms("a"))
	assert.True(t, reg.Connected("b"))

	left := reg.LeaveAll("a")
	assert.Equal(t, []string{"r1", "r2"}, left)
	assert.Equal(t, []string{"b"}, reg.Members("r1"))
	assert.Empty(t, reg.Members("r2"))
	assert.True(t, reg.Connected("a"))

	reg.Disconnect("b")
	assert.False(t, reg.Connected("b"))
	assert.Empty(t, reg.Members("r1"))
	assert.Equal(t, 1, reg.ConnectionCount())
}

func TestRegistry_DropRoom(t *testing.T) {
	reg := NewRegistry()
	reg.Add("a", "r1")
	reg.Add("b", "r1")
	reg.Add("b", "r2")

	assert.Equal(t, []string{"a", "b"}, reg.DropRoom("r1"))
	assert.Empty(t, reg.Members("r1"))
	assert.Empty(t, reg.Rooms("a"))
	assert.Equal(t, []string{"r2"}, reg.Rooms("b"))
}
