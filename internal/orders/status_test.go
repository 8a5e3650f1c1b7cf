package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusAwaitingPayment, true},
		{StatusAwaitingPayment, StatusCompleted, true},
		{StatusAwaitingPayment, StatusFailed, true},

		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusAwaitingPayment, false},
		{StatusFailed, StatusCompleted, false},
		{StatusFailed, StatusAwaitingPayment, false},
		{StatusAwaitingPayment, StatusPending, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusAwaitingPayment.Terminal())
}
