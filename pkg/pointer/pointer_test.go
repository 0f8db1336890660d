package pointer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParentAndLast(t *testing.T) {
	tests := []struct {
		pointer string
		parent  string
		last    string
	}{
		{pointer: "", parent: "", last: ""},
		{pointer: "/owner", parent: "", last: "owner"},
		{pointer: "/pets/0", parent: "/pets", last: "0"},
		{pointer: "/home/address/city", parent: "/home/address", last: "city"},
	}

	for _, tt := range tests {
		t.Run(tt.pointer, func(t *testing.T) {
			assert.Equal(t, tt.parent, Parent(tt.pointer))
			assert.Equal(t, tt.last, Last(tt.pointer))
		})
	}
}

func TestIsIndex(t *testing.T) {
	assert.True(t, IsIndex("0"))
	assert.True(t, IsIndex("7"))
	assert.True(t, IsIndex("120"))
	assert.False(t, IsIndex(""))
	assert.False(t, IsIndex("01"))
	assert.False(t, IsIndex("-1"))
	assert.False(t, IsIndex("pets"))
	assert.False(t, IsIndex("1a"))
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "/pets", Join(Root, "pets"))
	assert.Equal(t, "/pets/3", JoinIndex(Join(Root, "pets"), 3))
	assert.Equal(t, []string{"pets", "3", "name"}, Segments("/pets/3/name"))
	assert.Nil(t, Segments(Root))
}

func TestLookup(t *testing.T) {
	tree := map[string]any{
		"owner": "d/2",
		"pets": []any{
			map[string]any{"name": "Rex"},
			"tagOnly",
		},
		"home": map[string]any{"city": "X"},
	}

	t.Run("root", func(t *testing.T) {
		value, ok := Lookup(tree, Root)
		assert.True(t, ok)
		assert.Equal(t, tree, value)
	})

	t.Run("nested values", func(t *testing.T) {
		value, ok := Lookup(tree, "/pets/0/name")
		assert.True(t, ok)
		assert.Equal(t, "Rex", value)

		value, ok = Lookup(tree, "/pets/1")
		assert.True(t, ok)
		assert.Equal(t, "tagOnly", value)

		value, ok = Lookup(tree, "/home/city")
		assert.True(t, ok)
		assert.Equal(t, "X", value)
	})

	t.Run("missing values", func(t *testing.T) {
		_, ok := Lookup(tree, "/pets/2")
		assert.False(t, ok)
		_, ok = Lookup(tree, "/pets/name")
		assert.False(t, ok)
		_, ok = Lookup(tree, "/owner/id")
		assert.False(t, ok)
	})
}
