package replica

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyKeepsOrderAndCopies(t *testing.T) {
	d := New()
	buf := []byte("one")

	require.NoError(t, d.Apply(buf, OriginLocal))
	require.NoError(t, d.Apply([]byte("two"), OriginRemote))
	buf[0] = 'X'

	assert.Equal(t, 2, d.Len())
	assert.Equal(t, [][]byte{[]byte("one"), []byte("two")}, d.Updates())
}

func TestObserveAndRemove(t *testing.T) {
	d := New()

	var origins []Origin
	remove := d.Observe(func(_ []byte, origin Origin) { origins = append(origins, origin) })

	require.NoError(t, d.Apply([]byte("a"), OriginRemote))
	remove()
	require.NoError(t, d.Apply([]byte("b"), OriginLocal))

	assert.Equal(t, []Origin{OriginRemote}, origins)
}

func TestDestroy(t *testing.T) {
	d := New()
	require.NoError(t, d.Apply([]byte("a"), OriginLocal))

	d.Destroy()
	d.Destroy()

	assert.True(t, d.Destroyed())
	assert.Zero(t, d.Len())
	assert.ErrorIs(t, d.Apply([]byte("b"), OriginLocal), ErrDestroyed)
}

func TestGUIDUnique(t *testing.T) {
	assert.NotEqual(t, New().GUID(), New().GUID())
	assert.NotEmpty(t, New().GUID())
}
