package symengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArena_AcquireRelease(t *testing.T) {
	a := NewArena[string]()

	h1 := a.Acquire("compiland")
	h2 := a.Acquire("compiland")
	assert.NotEqual(t, InvalidHandle, h1)
	assert.NotEqual(t, h1, h2, "each acquire issues a fresh handle")
	assert.Equal(t, 2, a.Live())

	v, err := a.Get(h1)
	require.NoError(t, err)
	assert.Equal(t, "compiland", v)

	require.NoError(t, a.Release(h1))
	assert.Equal(t, 1, a.Live())

	_, err = a.Get(h1)
	assert.ErrorIs(t, err, ErrInvalidHandle)
	assert.ErrorIs(t, a.Release(h1), ErrInvalidHandle, "double release must fail")
	assert.ErrorIs(t, a.Release(InvalidHandle), ErrInvalidHandle)
}

func TestArena_ReleaseAll(t *testing.T) {
	a := NewArena[int]()
	handles := []Handle{a.Acquire(1), a.Acquire(2), a.Acquire(3)}

	assert.Equal(t, 3, a.ReleaseAll())
	assert.Equal(t, 0, a.Live())
	for _, h := range handles {
		assert.ErrorIs(t, a.Release(h), ErrInvalidHandle)
	}

	// Handles are never reused after a batch release.
	h := a.Acquire(4)
	assert.NotContains(t, handles, h)
}

func TestSymTag_String(t *testing.T) {
	assert.Equal(t, "compiland", TagCompiland.String())
	assert.Equal(t, "function", TagFunction.String())
	assert.Equal(t, "exe", TagExe.String())
	assert.Equal(t, "null", SymTag(42).String())
}
