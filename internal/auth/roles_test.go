package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name      string
		role      string
		granted   []string
		domain    string
		operation string
		want      bool
	}{
		{"admin wildcard", RoleAdmin, nil, "billing", "refund", true},
		{"operator domain wildcard", RoleOperator, nil, "dispatch", "assign_technician", true},
		{"operator customers read only", RoleOperator, nil, "customers", "update", false},
		{"technician cannot assign", RoleTechnician, nil, "dispatch", "assign_technician", false},
		{"individual grant fills gap", RoleTechnician, []string{"dispatch:assign_technician"}, "dispatch", "assign_technician", true},
		{"unknown role denied", "auditor", nil, "tickets", "read", false},
		{"manager billing read", RoleManager, nil, "billing", "read", true},
		{"manager billing refund", RoleManager, nil, "billing", "refund", true},
		{"operator billing denied", RoleOperator, nil, "billing", "refund", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HasPermission(tt.role, tt.granted, tt.domain, tt.operation)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoleAtLeast(t *testing.T) {
	assert.True(t, RoleAtLeast(RoleAdmin, RoleManager))
	assert.True(t, RoleAtLeast(RoleManager, RoleManager))
	assert.False(t, RoleAtLeast(RoleOperator, RoleManager))
	assert.False(t, RoleAtLeast("unknown", RoleTechnician))
}

func TestJWTRoundTrip(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Hour)

	token, err := mgr.GenerateToken("op-7", RoleOperator, []string{"billing:read"})
	require.NoError(t, err)

	user, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "op-7", user.ID)
	assert.Equal(t, RoleOperator, user.Role)
	assert.Equal(t, []string{"billing:read"}, user.Permissions)
}

func TestJWTRejectsWrongKey(t *testing.T) {
	token, err := NewJWTManager("secret-a", time.Hour).GenerateToken("op-1", RoleOperator, nil)
	require.NoError(t, err)

	_, err = NewJWTManager("secret-b", time.Hour).ValidateToken(token)
	assert.Error(t, err)
}
