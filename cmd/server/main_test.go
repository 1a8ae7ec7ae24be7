package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"tpia/config"
	"tpia/internal/auth"
	"tpia/internal/domain"
)

func TestTokenCommandMintsParsableToken(t *testing.T) {
	t.Setenv("TPIA_JWT_ACCESS_SECRET", "cli-secret")
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"--env-only", "token", "7", "--role", domain.RoleAdmin})
	require.NoError(t, root.Execute())

	cfg, err := config.Load("", true)
	require.NoError(t, err)
	claims, err := auth.ParseAccessToken(&cfg.JWT, strings.TrimSpace(out.String()))
	require.NoError(t, err)
	require.Equal(t, uint(7), claims.UserID)
	require.Equal(t, domain.RoleAdmin, claims.Role)
}

func TestTokenCommandRejectsBadUserID(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--env-only", "token", "zero"})
	require.Error(t, root.Execute())
}
