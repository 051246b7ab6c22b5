package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionColumnsNeverNullUserAgent(t *testing.T) {
	addr, agent := sessionColumns("203.0.113.7", "")
	require.NotNil(t, addr)
	assert.Equal(t, "203.0.113.7", *addr)
	assert.Equal(t, "", agent)

	addr, agent = sessionColumns("not-an-ip", "  curl/8.4  ")
	assert.Nil(t, addr)
	assert.Equal(t, "curl/8.4", agent)
}
