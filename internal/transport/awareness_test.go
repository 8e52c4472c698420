package transport

import (
	"testing"

	"github.com/ashureev/collabsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwarenessLocalFirstWithoutUser(t *testing.T) {
	a := NewAwarenessMap(nil)

	states := a.States()
	require.Len(t, states, 1)
	assert.Equal(t, a.ClientID(), states[0].ClientID)
	assert.Nil(t, states[0].User)
	assert.Nil(t, a.LocalUser())
}

func TestAwarenessSetLocalUserNotifies(t *testing.T) {
	var got []*domain.User
	a := NewAwarenessMap(func(u *domain.User) { got = append(got, u) })

	a.SetLocalUser(domain.User{Name: "Alice", Color: "#DC2626"})

	require.Len(t, got, 1)
	assert.Equal(t, "Alice", got[0].Name)
	require.NotNil(t, a.LocalUser())
	assert.Equal(t, "#DC2626", a.LocalUser().Color)
}

func TestAwarenessRemoteOrdering(t *testing.T) {
	a := NewAwarenessMap(nil)
	a.SetLocalUser(domain.User{Name: "Local"})

	assert.True(t, a.setRemote("p1", &domain.User{Name: "One"}))
	assert.True(t, a.setRemote("p2", &domain.User{Name: "Two"}))
	assert.False(t, a.setRemote("p1", &domain.User{Name: "One"}), "identical state is not a change")
	assert.True(t, a.setRemote("p1", &domain.User{Name: "Uno"}))
	assert.False(t, a.setRemote(a.ClientID(), &domain.User{Name: "spoof"}))

	states := a.States()
	require.Len(t, states, 3)
	assert.Equal(t, a.ClientID(), states[0].ClientID)
	assert.Equal(t, "p1", states[1].ClientID)
	assert.Equal(t, "Uno", states[1].User.Name)
	assert.Equal(t, "p2", states[2].ClientID)

	assert.True(t, a.removeRemote("p1"))
	assert.False(t, a.removeRemote("p1"))
	assert.False(t, a.removeRemote(a.ClientID()))
	assert.Len(t, a.States(), 2)

	assert.True(t, a.clearRemote())
	assert.False(t, a.clearRemote())
	states = a.States()
	require.Len(t, states, 1)
	require.NotNil(t, states[0].User)
	assert.Equal(t, "Local", states[0].User.Name)
}

func TestAwarenessRemoteWithoutUser(t *testing.T) {
	a := NewAwarenessMap(nil)

	assert.True(t, a.setRemote("p1", nil))
	assert.False(t, a.setRemote("p1", nil))

	states := a.States()
	require.Len(t, states, 2)
	assert.Nil(t, states[1].User)
}
