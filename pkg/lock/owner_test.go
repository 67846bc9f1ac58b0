package lock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnerReadJoinsWrite(t *testing.T) {
	o := New("/p", Identity{Name: "writer"}, Write)

	admitted := o.Lock(Identity{Name: "reader-1"}, Read)
	assert.True(t, admitted)
	assert.Equal(t, 2, o.RefCount())

	// A second writer must be rejected.
	admitted = o.Lock(Identity{Name: "writer-2"}, Write)
	assert.False(t, admitted)
	assert.Equal(t, 2, o.RefCount())
}

func TestOwnerDeleteAdmitsNothing(t *testing.T) {
	o := New("/p", Identity{Name: "deleter"}, Delete)

	assert.False(t, o.Lock(Identity{Name: "reader"}, Read))
	assert.False(t, o.Lock(Identity{Name: "writer"}, Write))
	assert.False(t, o.Lock(Identity{Name: "deleter-2"}, Delete))
}

func TestOwnerIdempotentRelock(t *testing.T) {
	o := New("/p", Identity{Name: "reader", Label: "first"}, Read)
	require.True(t, o.Lock(Identity{Name: "reader", Label: "second"}, Read))
	assert.Equal(t, 1, o.RefCount())

	info := o.Info()
	require.Len(t, info.Refs, 1)
	assert.Equal(t, "second", info.Refs[0].Label)
}

func TestOwnerUnlockTerminal(t *testing.T) {
	o := New("/p", Identity{Name: "a"}, Read)
	o.Lock(Identity{Name: "b"}, Read)

	assert.False(t, o.Unlock("a"))
	assert.Equal(t, 1, o.RefCount())

	assert.True(t, o.Unlock("b"))
	assert.Equal(t, 0, o.RefCount())
}

func TestOwnerUnlockUnknownNameIsNoop(t *testing.T) {
	o := New("/p", Identity{Name: "a"}, Read)
	assert.False(t, o.Unlock("nonexistent"))
	assert.Equal(t, 1, o.RefCount())
}

func TestOwnerInfoPreservesInsertionOrder(t *testing.T) {
	o := New("/p", Identity{Name: "first"}, Read)
	o.Lock(Identity{Name: "second"}, Read)
	o.Lock(Identity{Name: "third"}, Read)

	info := o.Info()
	require.Len(t, info.Refs, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{info.Refs[0].Name, info.Refs[1].Name, info.Refs[2].Name})
}

func TestDefaultIdentityGenerated(t *testing.T) {
	o := New("/p", Identity{}, Read)
	info := o.Info()
	require.Len(t, info.Refs, 1)
	assert.NotEmpty(t, info.Refs[0].Name)
}
