package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var allStatuses = []SubOrderStatus{
	StatusPlaced, StatusAccepted, StatusPreparing, StatusReady,
	StatusOutForDelivery, StatusDelivered, StatusCancelled,
}

var linearPath = []SubOrderStatus{
	StatusPlaced, StatusAccepted, StatusPreparing, StatusReady,
	StatusOutForDelivery, StatusDelivered,
}

func pathIndex(s SubOrderStatus) int {
	for i, p := range linearPath {
		if p == s {
			return i
		}
	}
	return -1
}

func TestCanTransitionTo_Table(t *testing.T) {
	tests := []struct {
		from SubOrderStatus
		to   SubOrderStatus
		want bool
	}{
		{StatusPlaced, StatusAccepted, true},
		{StatusPlaced, StatusPreparing, false},
		{StatusPlaced, StatusCancelled, true},
		{StatusAccepted, StatusPreparing, true},
		{StatusAccepted, StatusPlaced, false},
		{StatusPreparing, StatusReady, true},
		{StatusReady, StatusOutForDelivery, true},
		{StatusReady, StatusCancelled, true},
		{StatusOutForDelivery, StatusDelivered, true},
		{StatusOutForDelivery, StatusCancelled, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusDelivered, StatusPlaced, false},
		{StatusCancelled, StatusPlaced, false},
		{StatusPlaced, StatusPlaced, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTerminalStatusesHaveNoSuccessors(t *testing.T) {
	for _, s := range allStatuses {
		if !s.IsTerminal() {
			assert.NotEmpty(t, s.AllowedNext(), s)
			continue
		}
		for _, next := range allStatuses {
			assert.False(t, s.CanTransitionTo(next), "%s -> %s", s, next)
		}
	}
}

func TestTransitionSequences_FollowLinearPath(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		requests := rapid.SliceOfN(rapid.SampledFrom(allStatuses), 0, 20).Draw(t, "requests")

		current := StatusPlaced
		history := []SubOrderStatus{current}
		for _, next := range requests {
			if current.CanTransitionTo(next) {
				current = next
				history = append(history, current)
			}
		}

		for i := 1; i < len(history); i++ {
			prev, cur := history[i-1], history[i]
			if prev.IsTerminal() {
				t.Fatalf("transition out of terminal %s to %s", prev, cur)
			}
			if cur == StatusCancelled {
				if prev == StatusOutForDelivery {
					t.Fatalf("cancelled after dispatch")
				}
				continue
			}
			if pathIndex(cur) != pathIndex(prev)+1 {
				t.Fatalf("skipped or reversed: %s -> %s", prev, cur)
			}
		}
	})
}

func TestProjectStatus(t *testing.T) {
	assert.Equal(t, AggregateCompleted, ProjectStatus(nil))
	assert.Equal(t, AggregateActive, ProjectStatus([]SubOrderStatus{StatusPlaced}))
	assert.Equal(t, AggregateActive, ProjectStatus([]SubOrderStatus{StatusDelivered, StatusReady}))
	assert.Equal(t, AggregateCompleted, ProjectStatus([]SubOrderStatus{StatusDelivered, StatusCancelled}))
	assert.Equal(t, AggregateCompleted, ProjectStatus([]SubOrderStatus{StatusCancelled}))
}

func TestProjectStatus_CompletedIffAllTerminal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		statuses := rapid.SliceOf(rapid.SampledFrom(allStatuses)).Draw(t, "statuses")

		allTerminal := true
		for _, s := range statuses {
			allTerminal = allTerminal && s.IsTerminal()
		}

		got := ProjectStatus(statuses)
		if allTerminal != (got == AggregateCompleted) {
			t.Fatalf("projection %s for %v", got, statuses)
		}
	})
}

func TestParseSubOrderStatus(t *testing.T) {
	s, err := ParseSubOrderStatus(" out_for_delivery ")
	require.NoError(t, err)
	assert.Equal(t, StatusOutForDelivery, s)

	_, err = ParseSubOrderStatus("SHIPPED")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("ROLE_VENDOR")
	require.NoError(t, err)
	assert.Equal(t, RoleVendor, r)

	r, err = ParseRole("admin")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)

	_, err = ParseRole("guest")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestInsufficientStockError_Unwraps(t *testing.T) {
	var err error = &InsufficientStockError{ProductID: 7, Requested: 3}
	assert.True(t, errors.Is(err, ErrInsufficientStock))

	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, int64(7), stockErr.ProductID)
}

func TestOrderProject(t *testing.T) {
	o := &Order{SubOrders: []VendorSubOrder{
		{VendorID: 1, Status: StatusDelivered},
		{VendorID: 2, Status: StatusAccepted},
	}}
	o.Project()
	assert.Equal(t, AggregateActive, o.Status)
	assert.True(t, o.HasVendor(2))
	assert.False(t, o.HasVendor(3))

	o.SubOrders[1].Status = StatusCancelled
	o.Project()
	assert.Equal(t, AggregateCompleted, o.Status)
}

func TestNewCart_DerivesTotals(t *testing.T) {
	c := NewCart(1, []CartItem{
		{ProductID: 1, Quantity: 2, Price: 100},
		{ProductID: 2, Quantity: 1, Price: 50},
	})
	assert.Equal(t, int64(250), c.Total)
	assert.Equal(t, 3, c.ItemCount)

	empty := NewCart(1, nil)
	assert.NotNil(t, empty.Items)
	assert.Zero(t, empty.Total)
}
