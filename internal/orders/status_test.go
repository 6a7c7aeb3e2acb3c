package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionForward(t *testing.T) {
	cases := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"pending to confirmed", StatusPending, StatusConfirmed, true},
		{"pending skips to shipped", StatusPending, StatusShipped, true},
		{"confirmed to processing", StatusConfirmed, StatusProcessing, true},
		{"shipped to delivered", StatusShipped, StatusDelivered, true},
		{"no backward shipped to processing", StatusShipped, StatusProcessing, false},
		{"no backward confirmed to pending", StatusConfirmed, StatusPending, false},
		{"self transition rejected", StatusProcessing, StatusProcessing, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanTransition(tc.from, tc.to))
		})
	}
}

func TestCancelAndRefundReachableFromAnyNonTerminal(t *testing.T) {
	for _, from := range []Status{StatusPending, StatusConfirmed, StatusProcessing, StatusShipped} {
		assert.True(t, CanTransition(from, StatusCancelled), "cancel from %s", from)
		assert.True(t, CanTransition(from, StatusRefunded), "refund from %s", from)
	}
}

func TestTerminalStatesAreFrozen(t *testing.T) {
	all := []Status{StatusPending, StatusConfirmed, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCancelled, StatusRefunded}
	for _, from := range []Status{StatusDelivered, StatusCancelled, StatusRefunded} {
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "%s -> %s must be rejected", from, to)
		}
	}
}

func TestUnknownStatusRejected(t *testing.T) {
	assert.False(t, ValidStatus(Status("archived")))
	assert.False(t, CanTransition(StatusPending, Status("archived")))
	assert.False(t, CanTransition(Status("archived"), StatusConfirmed))
}
