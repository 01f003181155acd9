package enrollment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndmx/upscale/internal/domain/shared"
)

func TestTransitionTable(t *testing.T) {
	all := []Status{StatusCreated, StatusPendingVerification, StatusPartiallyPaid, StatusPaid, StatusFailed}
	allowed := map[[2]Status]bool{
		{StatusCreated, StatusPendingVerification}:       true,
		{StatusCreated, StatusFailed}:                    true,
		{StatusPendingVerification, StatusPartiallyPaid}: true,
		{StatusPendingVerification, StatusPaid}:          true,
		{StatusPendingVerification, StatusFailed}:        true,
		{StatusPartiallyPaid, StatusPartiallyPaid}:       true,
		{StatusPartiallyPaid, StatusPaid}:                true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
			if !want {
				assert.ErrorIs(t, Transition(from, to), shared.ErrStateTransition)
			}
		}
	}

	assert.False(t, StatusFailed.IsActive())
	assert.True(t, StatusPaid.IsActive())
}

func TestAccessPolicy(t *testing.T) {
	partial := DefaultAccessPolicy()
	strict := AccessPolicy{PartialGrantsAccess: false}

	assert.True(t, partial.Grants(StatusPaid))
	assert.True(t, partial.Grants(StatusPartiallyPaid))
	assert.False(t, partial.Grants(StatusPendingVerification))
	assert.False(t, partial.Grants(StatusFailed))

	assert.True(t, strict.Grants(StatusPaid))
	assert.False(t, strict.Grants(StatusPartiallyPaid))
}

func TestPricingTerms(t *testing.T) {
	p := DefaultPricing()

	expected, leg, count := p.Terms(PlanFull)
	assert.Equal(t, shared.Kobo(15_000_000), expected)
	assert.Equal(t, shared.Kobo(15_000_000), leg)
	assert.Equal(t, 1, count)

	expected, leg, count = p.Terms(PlanInstallment)
	assert.Equal(t, shared.Kobo(15_000_000), expected)
	assert.Equal(t, shared.Kobo(5_000_000), leg)
	assert.Equal(t, 3, count)
}

func TestIntent_FailedLaterLegKeepsPartiallyPaid(t *testing.T) {
	now := time.Now()
	intent := NewIntent("acc", "course", PlanInstallment, DefaultPricing(), "ref-1", now)
	require.NoError(t, intent.transitionTo(StatusPendingVerification, now))
	require.NoError(t, intent.applySuccess(&intent.Legs[0], now))

	leg := intent.addLeg("ref-2", intent.NextLegAmount(), now)
	require.NoError(t, intent.applyFailure(leg, "declined", now))

	assert.Equal(t, StatusPartiallyPaid, intent.Status)
	assert.Equal(t, shared.Kobo(5_000_000), intent.AmountPaid)
	assert.Equal(t, LegFailed, intent.Legs[1].Status)
	assert.ErrorIs(t, intent.applySuccess(leg, now), shared.ErrStateTransition)
}

func TestNewReference(t *testing.T) {
	ref := NewReference("3f2a9c1e-0000-4000-8000-000000000000")

	assert.Regexp(t, `^upscale_3f2a9c1e_[0-9a-f]{16}$`, ref)
	assert.NotEqual(t, ref, NewReference("3f2a9c1e-0000-4000-8000-000000000000"))
}
