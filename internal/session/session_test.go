package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueGetRevoke(t *testing.T) {
	st := NewStore()

	a := st.Issue("buyer-1", RoleBuyer)
	b := st.Issue("vendor-1", RoleVendor)
	require.NotEmpty(t, a.Token)
	assert.NotEqual(t, a.Token, b.Token)

	got, ok := st.Get(a.Token)
	require.True(t, ok)
	assert.Equal(t, "buyer-1", got.ActorID)
	assert.Equal(t, RoleBuyer, got.Role)

	st.Revoke(a.Token)
	_, ok = st.Get(a.Token)
	assert.False(t, ok)

	_, ok = st.Get("no-such-token")
	assert.False(t, ok)
}

func TestPutFixedToken(t *testing.T) {
	st := NewStore()
	st.Put(Session{Token: "buyer-token", ActorID: "buyer-1", Role: RoleBuyer})

	got, ok := st.Get("buyer-token")
	require.True(t, ok)
	assert.Equal(t, "buyer-1", got.ActorID)
}
