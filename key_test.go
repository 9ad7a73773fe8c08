package querycache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cobertis/querycache"
)

func TestKey_StructuralEquality(t *testing.T) {
	a := querycache.Key{"contacts", "list", 1, 25, "", "all"}
	b := querycache.Key{"contacts", "list", int64(1), int32(25), "", "all"}
	assert.True(t, a.Equal(b), "integer width must not affect key identity")
	assert.Equal(t, a.Canonical(), b.Canonical())

	c := querycache.Key{"contacts", "list", 2, 25, "", "all"}
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(querycache.Key{"contacts", "list"}))
}

func TestKey_MapSegmentsNormalize(t *testing.T) {
	a := querycache.Key{"leads", map[string]interface{}{"status": "open", "owner": "u1"}}
	b := querycache.Key{"leads", map[string]interface{}{"owner": "u1", "status": "open"}}
	assert.True(t, a.Equal(b), "map construction order must not affect key identity")
}

func TestKey_HasPrefix(t *testing.T) {
	key := querycache.Key{"contacts", "list", 1, 25, "", "all"}

	assert.True(t, key.HasPrefix(querycache.Key{"contacts"}))
	assert.True(t, key.HasPrefix(querycache.Key{"contacts", "list"}))
	assert.True(t, key.HasPrefix(key))
	assert.False(t, key.HasPrefix(querycache.Key{"leads"}))
	assert.False(t, key.HasPrefix(querycache.Key{"contacts", "detail"}))
	assert.False(t, key.HasPrefix(append(key, "extra")), "longer prefix never matches")
}

func TestKey_Validate(t *testing.T) {
	require.ErrorIs(t, querycache.Key{}.Validate(), querycache.ErrEmptyKey)
	require.NoError(t, querycache.Key{"contacts"}.Validate())
	require.Error(t, querycache.Key{"x", make(chan int)}.Validate())
}

func TestKey_Hash(t *testing.T) {
	a := querycache.Key{"contacts", "list", 1}
	require.Len(t, a.Hash(), 16)
	assert.Equal(t, a.Hash(), querycache.Key{"contacts", "list", int64(1)}.Hash())
	assert.NotEqual(t, a.Hash(), querycache.Key{"contacts", "list", 2}.Hash())
}
