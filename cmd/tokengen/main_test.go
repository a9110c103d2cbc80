package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/cryptopulse/internal/middleware"
)

func TestIssueToken_AdminTokenValidates(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, issueToken("secret", []string{"-user", "ops", "-role", middleware.RoleAdmin, "-ttl", "1h"}, &out))

	claims, err := middleware.NewAuthMiddleware("secret").ValidateToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.UserID)
	assert.Equal(t, middleware.RoleAdmin, claims.Role)
}

func TestIssueToken_Errors(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		args    []string
		wantErr string
	}{
		{name: "missing secret", secret: "", args: []string{"-user", "ops"}, wantErr: "JWT_SECRET"},
		{name: "missing user", secret: "secret", args: nil, wantErr: "-user"},
		{name: "bad ttl", secret: "secret", args: []string{"-user", "ops", "-ttl", "-1h"}, wantErr: "-ttl"},
		{name: "unknown flag", secret: "secret", args: []string{"-nope"}, wantErr: "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := issueToken(tt.secret, tt.args, &out)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, out.String())
		})
	}
}
