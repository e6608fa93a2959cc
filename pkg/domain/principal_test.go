package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrincipalRooms(t *testing.T) {
	p := Principal{ID: "u-1", Role: "admin"}

	assert.Equal(t, "ROLE_admin", p.RoleRoom())
	assert.Equal(t, "USER_u-1", p.UserRoom())
	assert.False(t, p.IsZero())
	assert.True(t, Principal{}.IsZero())
}

func TestRoleRoom_TrimsRole(t *testing.T) {
	assert.Equal(t, "ROLE_customer", RoleRoom(" customer "))
}
