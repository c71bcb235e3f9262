package helpdesk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSandboxCreateTicket(t *testing.T) {
	c := NewClient(Config{Sandbox: true})

	ticket := Ticket{Subject: "Refund request"}
	assert.Equal(t, "zd_stub_Refund request", c.CreateTicket(context.Background(), ticket))

	// Missing subject still produces a stable stub ID.
	assert.Equal(t, "zd_stub_ticket", c.CreateTicket(context.Background(), Ticket{}))
}

func TestSandboxAddPublicComment(t *testing.T) {
	c := NewClient(Config{Sandbox: true})
	assert.True(t, c.AddPublicComment(context.Background(), "zd_stub_x", "On its way."))
}

func TestUnconfiguredClientDegrades(t *testing.T) {
	c := NewClient(Config{Sandbox: false})

	// No credentials: no external mirror, but no error either.
	assert.Equal(t, "", c.CreateTicket(context.Background(), Ticket{Subject: "x"}))
	assert.False(t, c.AddPublicComment(context.Background(), "1", "hi"))
}
