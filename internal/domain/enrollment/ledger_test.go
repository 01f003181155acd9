package enrollment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndmx/upscale/internal/domain/catalog"
	"github.com/ndmx/upscale/internal/domain/enrollment"
	"github.com/ndmx/upscale/internal/domain/shared"
	"github.com/ndmx/upscale/internal/infrastructure/persistence/memory"
)

// ═══════════════════════════════════════════════════════════════════════════
// Fakes
// ═══════════════════════════════════════════════════════════════════════════

type fakeGateway struct {
	mu          sync.Mutex
	results     map[string]enrollment.VerifyResult
	initErr     error
	verifyErr   error
	verifyCalls map[string]int
	initialized []enrollment.InitializeRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		results:     make(map[string]enrollment.VerifyResult),
		verifyCalls: make(map[string]int),
	}
}

func (g *fakeGateway) Initialize(_ context.Context, req enrollment.InitializeRequest) (enrollment.InitializeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.initErr != nil {
		return enrollment.InitializeResult{}, g.initErr
	}
	g.initialized = append(g.initialized, req)
	return enrollment.InitializeResult{
		AuthorizationURL: "https://checkout.paystack.com/" + req.Reference,
		AccessCode:       "ac_" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (g *fakeGateway) Verify(_ context.Context, reference string) (enrollment.VerifyResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls[reference]++
	if g.verifyErr != nil {
		return enrollment.VerifyResult{}, g.verifyErr
	}
	res, ok := g.results[reference]
	if !ok {
		return enrollment.VerifyResult{Reference: reference, Status: enrollment.TxAbandoned}, nil
	}
	return res, nil
}

func (g *fakeGateway) succeed(reference string, amount shared.Kobo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results[reference] = enrollment.VerifyResult{
		Reference: reference,
		Status:    enrollment.TxSuccess,
		Amount:    amount,
		Currency:  shared.CurrencyNGN,
	}
}

func (g *fakeGateway) calls(reference string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verifyCalls[reference]
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *recorder) Publish(e shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []shared.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shared.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

type fixture struct {
	ledger  *enrollment.Ledger
	gateway *fakeGateway
	clock   *clock
	events  *recorder
	course  *catalog.Course
}

const accountID = "0b7c2f7e-1111-4222-8333-444455556666"

func newFixture(t *testing.T, mutate func(*enrollment.Config)) *fixture {
	t.Helper()
	store := memory.NewStore()
	course := catalog.BuildCourse(catalog.CourseSeed{
		Title: "Cybersecurity with AI",
		Modules: []catalog.ModuleSeed{
			{Title: "Intro to AI Threats"},
			{Title: "Defensive AI Tools"},
			{Title: "Ethical AI in Security"},
			{Title: "Capstone"},
		},
	})
	require.NoError(t, store.Courses().Create(context.Background(), course))

	cfg := enrollment.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	f := &fixture{
		gateway: newFakeGateway(),
		clock:   &clock{t: time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)},
		events:  &recorder{},
		course:  course,
	}
	f.ledger = enrollment.NewLedger(
		store.Intents(),
		f.gateway,
		catalog.NewCatalog(store.Courses()),
		enrollment.NewKeyedMutex(),
		cfg,
		f.clock.Now,
		f.events,
	)
	return f
}

func (f *fixture) initiate(t *testing.T, plan enrollment.Plan) *enrollment.PaymentIntent {
	t.Helper()
	intent, err := f.ledger.Initiate(context.Background(), enrollment.InitiateInput{
		AccountID:   accountID,
		Email:       "a@x.com",
		CourseID:    f.course.ID,
		Plan:        plan,
		CallbackURL: "https://upscale.test/api/v1/payments/callback",
	})
	require.NoError(t, err)
	return intent
}

func lastLeg(i *enrollment.PaymentIntent) enrollment.PaymentLeg {
	return i.Legs[len(i.Legs)-1]
}

// ═══════════════════════════════════════════════════════════════════════════
// Scenarios
// ═══════════════════════════════════════════════════════════════════════════

func TestLedger_InstallmentScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	intent := f.initiate(t, enrollment.PlanInstallment)
	assert.Equal(t, enrollment.StatusPendingVerification, intent.Status)
	assert.Equal(t, shared.Naira(150_000), intent.AmountExpected)
	require.Len(t, intent.Legs, 1)
	assert.Equal(t, shared.Naira(50_000), intent.Legs[0].Amount)
	assert.NotEmpty(t, intent.Legs[0].AuthorizationURL)
	assert.Equal(t, shared.Naira(50_000), f.gateway.initialized[0].Amount)

	access, err := f.ledger.HasAccess(ctx, accountID, f.course.ID)
	require.NoError(t, err)
	assert.False(t, access, "pending payment grants nothing")

	// Leg 1
	ref1 := intent.Legs[0].Reference
	f.gateway.succeed(ref1, shared.Naira(50_000))
	intent, err = f.ledger.Confirm(ctx, ref1)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusPartiallyPaid, intent.Status)
	assert.Equal(t, shared.Naira(50_000), intent.AmountPaid)

	access, err = f.ledger.HasAccess(ctx, accountID, f.course.ID)
	require.NoError(t, err)
	assert.True(t, access, "first installment unlocks the course")

	// Legs 2 and 3
	for leg := 2; leg <= 3; leg++ {
		intent, err = f.ledger.PayNextInstallment(ctx, accountID, "a@x.com", intent.ID, "https://upscale.test/cb")
		require.NoError(t, err)
		require.Len(t, intent.Legs, leg)

		ref := lastLeg(intent).Reference
		f.gateway.succeed(ref, shared.Naira(50_000))
		intent, err = f.ledger.Confirm(ctx, ref)
		require.NoError(t, err)
	}

	assert.Equal(t, enrollment.StatusPaid, intent.Status)
	assert.Equal(t, shared.Kobo(15_000_000), intent.AmountPaid)
	assert.Equal(t, shared.Kobo(0), intent.Outstanding())

	access, err = f.ledger.HasAccess(ctx, accountID, f.course.ID)
	require.NoError(t, err)
	assert.True(t, access)

	_, err = f.ledger.PayNextInstallment(ctx, accountID, "a@x.com", intent.ID, "")
	assert.ErrorIs(t, err, shared.ErrNoOutstandingBalance)

	assert.Contains(t, f.events.types(), shared.EventIntentPaid)
}

func TestLedger_FullPlanPaidInOneLeg(t *testing.T) {
	f := newFixture(t, nil)

	intent := f.initiate(t, enrollment.PlanFull)
	ref := intent.Legs[0].Reference
	f.gateway.succeed(ref, shared.Naira(150_000))

	intent, err := f.ledger.Confirm(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusPaid, intent.Status)
	assert.Equal(t, shared.Naira(150_000), intent.AmountPaid)
}

func TestLedger_DuplicateInitiate(t *testing.T) {
	f := newFixture(t, nil)
	f.initiate(t, enrollment.PlanFull)

	_, err := f.ledger.Initiate(context.Background(), enrollment.InitiateInput{
		AccountID: accountID,
		Email:     "a@x.com",
		CourseID:  f.course.ID,
		Plan:      enrollment.PlanInstallment,
	})
	assert.ErrorIs(t, err, shared.ErrDuplicateActiveIntent)
}

func TestLedger_InitiateValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.ledger.Initiate(ctx, enrollment.InitiateInput{AccountID: accountID, CourseID: "missing", Plan: enrollment.PlanFull})
	assert.ErrorIs(t, err, shared.ErrCourseNotFound)
	assert.True(t, shared.IsNotFound(err))

	_, err = f.ledger.Initiate(ctx, enrollment.InitiateInput{AccountID: accountID, CourseID: f.course.ID, Plan: "weekly"})
	assert.ErrorIs(t, err, shared.ErrInvalidPlan)
}

func TestLedger_ConfirmIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	intent := f.initiate(t, enrollment.PlanInstallment)
	ref := intent.Legs[0].Reference
	f.gateway.succeed(ref, shared.Naira(50_000))

	first, err := f.ledger.Confirm(ctx, ref)
	require.NoError(t, err)
	second, err := f.ledger.Confirm(ctx, ref)
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.AmountPaid, second.AmountPaid)
	assert.Equal(t, shared.Naira(50_000), second.AmountPaid)
	assert.Equal(t, 1, f.gateway.calls(ref), "settled legs are not re-verified")
}

func TestLedger_ConcurrentConfirmsCreditOnce(t *testing.T) {
	f := newFixture(t, nil)
	intent := f.initiate(t, enrollment.PlanFull)
	ref := intent.Legs[0].Reference
	f.gateway.succeed(ref, shared.Naira(150_000))

	var wg sync.WaitGroup
	results := make([]*enrollment.PaymentIntent, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := f.ledger.Confirm(context.Background(), ref)
			assert.NoError(t, err)
			results[i] = out
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, enrollment.StatusPaid, r.Status)
		assert.Equal(t, shared.Naira(150_000), r.AmountPaid)
	}
	assert.Equal(t, 1, f.gateway.calls(ref))
}

func TestLedger_ConfirmFailsClosed(t *testing.T) {
	tests := []struct {
		name   string
		result enrollment.VerifyResult
	}{
		{"declined", enrollment.VerifyResult{Status: enrollment.TxFailed, Amount: shared.Naira(150_000), Currency: "NGN"}},
		{"abandoned", enrollment.VerifyResult{Status: enrollment.TxAbandoned}},
		{"still pending", enrollment.VerifyResult{Status: enrollment.TxPending}},
		{"ambiguous", enrollment.VerifyResult{Status: enrollment.TxUnknown, Amount: shared.Naira(150_000), Currency: "NGN"}},
		{"short amount", enrollment.VerifyResult{Status: enrollment.TxSuccess, Amount: shared.Naira(100), Currency: "NGN"}},
		{"wrong currency", enrollment.VerifyResult{Status: enrollment.TxSuccess, Amount: shared.Naira(150_000), Currency: "USD"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			ctx := context.Background()
			intent := f.initiate(t, enrollment.PlanFull)
			ref := intent.Legs[0].Reference
			tt.result.Reference = ref
			f.gateway.results[ref] = tt.result

			out, err := f.ledger.Confirm(ctx, ref)
			assert.ErrorIs(t, err, shared.ErrVerificationFailed)
			require.NotNil(t, out)
			assert.Equal(t, enrollment.StatusFailed, out.Status)
			assert.Equal(t, shared.Kobo(0), out.AmountPaid)

			access, _ := f.ledger.HasAccess(ctx, accountID, f.course.ID)
			assert.False(t, access)

			// Same answer on replay, without asking the gateway again.
			_, err = f.ledger.Confirm(ctx, ref)
			assert.ErrorIs(t, err, shared.ErrVerificationFailed)
			assert.Equal(t, 1, f.gateway.calls(ref))

			// The failed intent no longer blocks a fresh attempt.
			f.initiate(t, enrollment.PlanFull)
		})
	}
}

func TestLedger_GatewayUnavailableLeavesIntentPending(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	intent := f.initiate(t, enrollment.PlanFull)
	ref := intent.Legs[0].Reference

	f.gateway.verifyErr = errors.New("dial tcp: i/o timeout")
	_, err := f.ledger.Confirm(ctx, ref)
	assert.ErrorIs(t, err, shared.ErrGatewayUnavailable)
	assert.True(t, shared.IsRetryable(err))

	f.clock.Advance(time.Second)
	stale, err := f.ledger.StalePending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, enrollment.StatusPendingVerification, stale[0].Status)

	f.gateway.verifyErr = nil
	f.gateway.succeed(ref, shared.Naira(150_000))
	intent, err = f.ledger.Confirm(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusPaid, intent.Status)
}

func TestLedger_InitiateGatewayFailureAllowsRetry(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.gateway.initErr = errors.New("connection refused")
	failed, err := f.ledger.Initiate(ctx, enrollment.InitiateInput{
		AccountID: accountID, Email: "a@x.com", CourseID: f.course.ID, Plan: enrollment.PlanFull,
	})
	assert.ErrorIs(t, err, shared.ErrGatewayUnavailable)
	require.NotNil(t, failed)
	assert.Equal(t, enrollment.StatusFailed, failed.Status)
	assert.Equal(t, enrollment.LegFailed, failed.Legs[0].Status)

	f.gateway.initErr = nil
	retry := f.initiate(t, enrollment.PlanFull)
	assert.NotEqual(t, failed.ID, retry.ID)

	all, err := f.ledger.ListForAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Len(t, all, 2, "failed intents are kept for audit")
}

func TestLedger_StrictAccessPolicy(t *testing.T) {
	f := newFixture(t, func(c *enrollment.Config) { c.Access.PartialGrantsAccess = false })
	ctx := context.Background()

	intent := f.initiate(t, enrollment.PlanInstallment)
	ref := intent.Legs[0].Reference
	f.gateway.succeed(ref, shared.Naira(50_000))
	_, err := f.ledger.Confirm(ctx, ref)
	require.NoError(t, err)

	access, err := f.ledger.HasAccess(ctx, accountID, f.course.ID)
	require.NoError(t, err)
	assert.False(t, access)
}

func TestLedger_FailedInstallmentLegKeepsAccess(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	intent := f.initiate(t, enrollment.PlanInstallment)
	f.gateway.succeed(intent.Legs[0].Reference, shared.Naira(50_000))
	_, err := f.ledger.Confirm(ctx, intent.Legs[0].Reference)
	require.NoError(t, err)

	intent, err = f.ledger.PayNextInstallment(ctx, accountID, "a@x.com", intent.ID, "")
	require.NoError(t, err)

	_, err = f.ledger.PayNextInstallment(ctx, accountID, "a@x.com", intent.ID, "")
	assert.ErrorIs(t, err, shared.ErrLegPending)

	out, err := f.ledger.Confirm(ctx, lastLeg(intent).Reference)
	assert.ErrorIs(t, err, shared.ErrVerificationFailed)
	assert.Equal(t, enrollment.StatusPartiallyPaid, out.Status)

	access, err := f.ledger.HasAccess(ctx, accountID, f.course.ID)
	require.NoError(t, err)
	assert.True(t, access)

	// A new leg can be opened after the failed one.
	intent, err = f.ledger.PayNextInstallment(ctx, accountID, "a@x.com", intent.ID, "")
	require.NoError(t, err)
	assert.Len(t, intent.Legs, 3)
}

func TestLedger_PayNextInstallmentOwnership(t *testing.T) {
	f := newFixture(t, nil)
	intent := f.initiate(t, enrollment.PlanInstallment)

	_, err := f.ledger.PayNextInstallment(context.Background(), "someone-else", "b@x.com", intent.ID, "")
	assert.ErrorIs(t, err, shared.ErrIntentNotFound)

	_, err = f.ledger.PayNextInstallment(context.Background(), accountID, "a@x.com", intent.ID, "")
	assert.ErrorIs(t, err, shared.ErrNoOutstandingBalance, "first leg not yet confirmed")
}

func TestLedger_ConfirmUnknownReference(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.ledger.Confirm(context.Background(), "upscale_forged_0000000000000000")
	assert.ErrorIs(t, err, shared.ErrLegNotFound)
	assert.Zero(t, f.gateway.calls("upscale_forged_0000000000000000"))
}

func TestLedger_StalePendingAndExpire(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	intent := f.initiate(t, enrollment.PlanFull)
	ref := intent.Legs[0].Reference

	stale, err := f.ledger.StalePending(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, stale)

	f.clock.Advance(31 * time.Minute)
	stale, err = f.ledger.StalePending(ctx, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, intent.ID, stale[0].ID)

	expired, err := f.ledger.Expire(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusFailed, expired.Status)
	assert.Equal(t, enrollment.LegFailed, expired.Legs[0].Status)
	assert.Contains(t, expired.Legs[0].FailureReason, "expired")
	assert.Equal(t, 1, f.gateway.calls(ref), "expiry asks the gateway once")

	again, err := f.ledger.Expire(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, expired.Status, again.Status)
	assert.Equal(t, 1, f.gateway.calls(ref))

	stale, err = f.ledger.StalePending(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, stale)
	assert.Contains(t, f.events.types(), shared.EventIntentFailed)
}

func TestLedger_ExpireCreditsLatePayment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	intent := f.initiate(t, enrollment.PlanFull)
	ref := intent.Legs[0].Reference

	f.clock.Advance(25 * time.Hour)
	f.gateway.verifyErr = errors.New("dial tcp: i/o timeout")
	out, err := f.ledger.Expire(ctx, ref)
	assert.ErrorIs(t, err, shared.ErrGatewayUnavailable)
	require.NotNil(t, out)
	assert.Equal(t, enrollment.StatusPendingVerification, out.Status)

	f.gateway.verifyErr = nil
	f.gateway.succeed(ref, shared.Naira(150_000))
	out, err = f.ledger.Expire(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusPaid, out.Status)
	assert.Equal(t, shared.Naira(150_000), out.AmountPaid)
	assert.Equal(t, enrollment.LegSucceeded, out.Legs[0].Status)
}

func TestLedger_PaidAccessIsMonotonic(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	intent := f.initiate(t, enrollment.PlanFull)
	ref := intent.Legs[0].Reference
	f.gateway.succeed(ref, shared.Naira(150_000))
	_, err := f.ledger.Confirm(ctx, ref)
	require.NoError(t, err)

	// Neither replays, expiry attempts nor new initiations revoke access.
	_, _ = f.ledger.Confirm(ctx, ref)
	_, _ = f.ledger.Expire(ctx, ref)
	_, err = f.ledger.Initiate(ctx, enrollment.InitiateInput{AccountID: accountID, CourseID: f.course.ID, Plan: enrollment.PlanFull})
	assert.ErrorIs(t, err, shared.ErrDuplicateActiveIntent)

	access, err := f.ledger.HasAccess(ctx, accountID, f.course.ID)
	require.NoError(t, err)
	assert.True(t, access)
}
