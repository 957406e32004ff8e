package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableEdgesNeverGoBackwards(t *testing.T) {
	for from, next := range validNext {
		for to := range next {
			assert.GreaterOrEqual(t, to.Weight(), from.Weight(), "%s -> %s", from, to)
		}
	}
}

func TestEveryStatusHasTableRow(t *testing.T) {
	for _, s := range AllStatuses() {
		_, ok := validNext[s]
		assert.True(t, ok, "missing row for %s", s)
	}
	assert.Len(t, AllStatuses(), 10)
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, s := range []Status{StatusCancelled, StatusFake, StatusRefunded} {
		require.True(t, s.IsTerminal())
		assert.Empty(t, TablePolicy{}.Next(s))
		assert.Empty(t, WeightPolicy{}.Next(s))
	}
}

func TestTablePolicy(t *testing.T) {
	p := TablePolicy{}
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPendingVerification, StatusProcessing, true},
		{StatusProcessing, StatusShipped, true},
		{StatusShipped, StatusDelivered, true},
		{StatusDelivered, StatusPaid, true},
		{StatusDelivered, StatusReturned, true},
		{StatusPending, StatusFake, true},
		{StatusPending, StatusPaid, false},
		{StatusShipped, StatusProcessing, false},
		{StatusPaid, StatusDelivered, false},
		{StatusCancelled, StatusFake, false},
		{StatusRefunded, StatusReturned, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, p.Allowed(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestWeightPolicy(t *testing.T) {
	p := WeightPolicy{}
	assert.True(t, p.Allowed(StatusPending, StatusPaid))
	assert.True(t, p.Allowed(StatusPending, StatusPendingVerification))
	assert.False(t, p.Allowed(StatusShipped, StatusProcessing))
	assert.False(t, p.Allowed(StatusCancelled, StatusFake))

	for _, next := range p.Next(StatusDelivered) {
		assert.GreaterOrEqual(t, next.Weight(), StatusDelivered.Weight())
	}
}

func TestNextIsOrderedByWeight(t *testing.T) {
	assert.Equal(t,
		[]Status{StatusProcessing, StatusCancelled, StatusFake},
		TablePolicy{}.Next(StatusPending))
	assert.Equal(t,
		[]Status{StatusPaid, StatusReturned, StatusRefunded},
		TablePolicy{}.Next(StatusDelivered))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Shipped ")
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, s)

	_, err = ParseStatus("lost")
	require.Error(t, err)
	assert.Equal(t, CodeValidation, Code(err))
}

func TestPolicyByName(t *testing.T) {
	p, err := PolicyByName("")
	require.NoError(t, err)
	assert.IsType(t, TablePolicy{}, p)

	p, err = PolicyByName("WEIGHT")
	require.NoError(t, err)
	assert.IsType(t, WeightPolicy{}, p)

	_, err = PolicyByName("graph")
	assert.Error(t, err)
}
