package command_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndmx/upscale/internal/application/command"
	"github.com/ndmx/upscale/internal/application/query"
	"github.com/ndmx/upscale/internal/domain/account"
	"github.com/ndmx/upscale/internal/domain/catalog"
	"github.com/ndmx/upscale/internal/domain/enrollment"
	"github.com/ndmx/upscale/internal/domain/progress"
	"github.com/ndmx/upscale/internal/domain/shared"
	"github.com/ndmx/upscale/internal/infrastructure/crypto"
	"github.com/ndmx/upscale/internal/infrastructure/persistence/memory"
)

// ═══════════════════════════════════════════════════════════════════════════
// Fixture
// ═══════════════════════════════════════════════════════════════════════════

type gateway struct {
	mu      sync.Mutex
	amounts map[string]shared.Kobo
	paid    map[string]bool
}

func (g *gateway) Initialize(_ context.Context, req enrollment.InitializeRequest) (enrollment.InitializeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.amounts[req.Reference] = req.Amount
	return enrollment.InitializeResult{
		AuthorizationURL: "https://checkout.paystack.com/" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (g *gateway) Verify(_ context.Context, reference string) (enrollment.VerifyResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paid[reference] {
		return enrollment.VerifyResult{Reference: reference, Status: enrollment.TxAbandoned}, nil
	}
	return enrollment.VerifyResult{
		Reference: reference,
		Status:    enrollment.TxSuccess,
		Amount:    g.amounts[reference],
		Currency:  shared.CurrencyNGN,
	}, nil
}

func (g *gateway) pay(reference string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.paid[reference] = true
}

type app struct {
	auth       *command.AuthHandler
	enroll     *command.EnrollmentHandler
	complete   *command.CompleteModuleHandler
	dashboard  *query.DashboardHandler
	courses    *query.CoursesHandler
	gateway    *gateway
	courseID   string
	otherID    string
	accountID  string
	callbackTo string
}

func newApp(t *testing.T) *app {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	clock := func() time.Time { return time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC) }

	cat := catalog.NewCatalog(store.Courses())
	_, err := cat.Seed(ctx, catalog.DefaultSeed)
	require.NoError(t, err)
	courses, err := cat.ListCourses(ctx)
	require.NoError(t, err)

	creds, err := account.NewCredentialStore(
		store.Accounts(), store.SecurityLog(), crypto.NewPBKDF2Hasher(1000),
		account.DefaultLockoutPolicy(), clock, nil,
	)
	require.NoError(t, err)

	gw := &gateway{amounts: map[string]shared.Kobo{}, paid: map[string]bool{}}
	ledger := enrollment.NewLedger(store.Intents(), gw, cat, nil, enrollment.DefaultConfig(), clock, nil)
	tracker := progress.NewTracker(store.Progress(), ledger, cat, clock, nil)

	a := &app{
		auth:       command.NewAuthHandler(creds, nil),
		enroll:     command.NewEnrollmentHandler(ledger, creds, nil),
		complete:   command.NewCompleteModuleHandler(tracker, cat),
		dashboard:  query.NewDashboardHandler(cat, ledger, tracker, ledger),
		courses:    query.NewCoursesHandler(cat, ledger),
		gateway:    gw,
		callbackTo: "https://upscale.test/api/v1/payments/callback",
	}
	for _, c := range courses {
		if c.Title == "Cybersecurity with AI" {
			a.courseID = c.ID
		} else if a.otherID == "" {
			a.otherID = c.ID
		}
	}

	acc, err := a.auth.Register(ctx, command.RegisterCommand{Email: "a@x.com", Name: "Ada", Password: "pw123456"})
	require.NoError(t, err)
	a.accountID = acc.ID
	return a
}

func (a *app) row(t *testing.T, courseID string) query.DashboardCourse {
	t.Helper()
	d, err := a.dashboard.Handle(context.Background(), a.accountID)
	require.NoError(t, err)
	for _, r := range d.Courses {
		if r.Course.ID == courseID {
			return r
		}
	}
	t.Fatalf("course %s not on dashboard", courseID)
	return query.DashboardCourse{}
}

func pendingRef(r *command.EnrollmentResult) string {
	return r.Intent.Legs[len(r.Intent.Legs)-1].Reference
}

// ═══════════════════════════════════════════════════════════════════════════
// Scenarios
// ═══════════════════════════════════════════════════════════════════════════

func TestInstallmentEnrollmentScenario(t *testing.T) {
	ctx := context.Background()
	a := newApp(t)

	_, err := a.complete.Handle(ctx, command.CompleteModuleCommand{AccountID: a.accountID, CourseID: a.courseID, Position: 1})
	assert.ErrorIs(t, err, shared.ErrNotEnrolled)

	res, err := a.enroll.Initiate(ctx, command.InitiateEnrollmentCommand{
		AccountID:   a.accountID,
		CourseID:    a.courseID,
		Plan:        enrollment.PlanInstallment,
		CallbackURL: a.callbackTo,
	})
	require.NoError(t, err)
	assert.Equal(t, "pending_verification", res.Intent.Status)
	assert.Equal(t, int64(15_000_000), res.Intent.AmountExpected)
	assert.NotEmpty(t, res.CheckoutURL)

	_, err = a.enroll.Initiate(ctx, command.InitiateEnrollmentCommand{
		AccountID: a.accountID, CourseID: a.courseID, Plan: enrollment.PlanFull,
	})
	assert.ErrorIs(t, err, shared.ErrDuplicateActiveIntent)

	first := pendingRef(res)
	a.gateway.pay(first)
	conf, err := a.enroll.Confirm(ctx, command.ConfirmPaymentCommand{Reference: first})
	require.NoError(t, err)
	assert.True(t, conf.Verified)
	assert.Equal(t, "partially_paid", conf.Intent.Status)

	again, err := a.enroll.Confirm(ctx, command.ConfirmPaymentCommand{Reference: first})
	require.NoError(t, err)
	assert.Equal(t, conf.Intent.AmountPaid, again.Intent.AmountPaid)

	done, err := a.complete.Handle(ctx, command.CompleteModuleCommand{AccountID: a.accountID, CourseID: a.courseID, Position: 1})
	require.NoError(t, err)
	require.NotNil(t, done.NextModule)
	assert.Equal(t, 2, done.NextModule.Position)
	assert.InDelta(t, 1.0/3.0, done.CompletionRatio, 1e-9)

	row := a.row(t, a.courseID)
	assert.True(t, row.HasAccess)
	assert.Equal(t, 1, row.Completed)
	require.NotNil(t, row.Enrollment)
	assert.Equal(t, int64(10_000_000), row.Enrollment.Outstanding)

	for i := 0; i < 2; i++ {
		next, err := a.enroll.PayInstallment(ctx, command.PayInstallmentCommand{
			AccountID: a.accountID, IntentID: res.Intent.ID, CallbackURL: a.callbackTo,
		})
		require.NoError(t, err)
		ref := pendingRef(next)
		a.gateway.pay(ref)
		_, err = a.enroll.Confirm(ctx, command.ConfirmPaymentCommand{Reference: ref})
		require.NoError(t, err)
	}

	row = a.row(t, a.courseID)
	assert.Equal(t, "paid", row.Enrollment.Status)
	assert.Equal(t, int64(0), row.Enrollment.Outstanding)

	_, err = a.enroll.PayInstallment(ctx, command.PayInstallmentCommand{AccountID: a.accountID, IntentID: res.Intent.ID})
	assert.ErrorIs(t, err, shared.ErrNoOutstandingBalance)

	other := a.row(t, a.otherID)
	assert.False(t, other.HasAccess)
	assert.Nil(t, other.NextModule)
}

func TestConfirmRejectedPayment(t *testing.T) {
	ctx := context.Background()
	a := newApp(t)

	res, err := a.enroll.Initiate(ctx, command.InitiateEnrollmentCommand{
		AccountID: a.accountID, CourseID: a.courseID, Plan: enrollment.PlanFull,
	})
	require.NoError(t, err)

	conf, err := a.enroll.Confirm(ctx, command.ConfirmPaymentCommand{Reference: pendingRef(res)})
	assert.ErrorIs(t, err, shared.ErrVerificationFailed)
	require.NotNil(t, conf)
	assert.False(t, conf.Verified)
	assert.Equal(t, "failed", conf.Intent.Status)

	_, err = a.courses.GetModule(ctx, query.GetModuleQuery{AccountID: a.accountID, CourseID: a.courseID, Position: 1})
	assert.ErrorIs(t, err, shared.ErrNotEnrolled)

	_, err = a.enroll.Initiate(ctx, command.InitiateEnrollmentCommand{
		AccountID: a.accountID, CourseID: a.courseID, Plan: enrollment.PlanFull,
	})
	assert.NoError(t, err)
}

func TestCommandValidation(t *testing.T) {
	ctx := context.Background()
	a := newApp(t)

	_, err := a.enroll.Initiate(ctx, command.InitiateEnrollmentCommand{AccountID: a.accountID, CourseID: a.courseID, Plan: "weekly"})
	assert.ErrorIs(t, err, shared.ErrInvalidPlan)

	_, err = a.enroll.Confirm(ctx, command.ConfirmPaymentCommand{})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = a.enroll.Confirm(ctx, command.ConfirmPaymentCommand{Reference: "upscale_unknown"})
	assert.ErrorIs(t, err, shared.ErrLegNotFound)

	_, err = a.auth.Register(ctx, command.RegisterCommand{Email: "A@X.com", Password: "pw123456"})
	assert.ErrorIs(t, err, shared.ErrDuplicateAccount)

	_, err = a.auth.Login(ctx, command.LoginCommand{Email: "a@x.com", Password: "wrong"})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	me, err := a.auth.Login(ctx, command.LoginCommand{Email: "a@x.com", Password: "pw123456"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", me.Name)
}
