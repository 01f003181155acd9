package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ndmx/upscale/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// Config - параметры журнала записи.
type Config struct {
	Pricing        Pricing
	Access         AccessPolicy
	GatewayTimeout time.Duration
}

// DefaultConfig возвращает цены и политику по умолчанию, таймаут шлюза 15 секунд.
func DefaultConfig() Config {
	return Config{
		Pricing:        DefaultPricing(),
		Access:         DefaultAccessPolicy(),
		GatewayTimeout: 15 * time.Second,
	}
}

// InitiateInput - данные для начала оплаты.
type InitiateInput struct {
	AccountID   string
	Email       string
	CourseID    string
	Plan        Plan
	CallbackURL string
}

// Ledger управляет жизненным циклом намерений оплаты.
type Ledger struct {
	repo      Repository
	gateway   Gateway
	courses   CourseReader
	locker    Locker
	config    Config
	clock     shared.Clock
	publisher shared.EventPublisher

	// newReference можно подменить в тестах.
	newReference func(accountID string) string
}

// NewLedger создаёт журнал записи.
func NewLedger(
	repo Repository,
	gateway Gateway,
	courses CourseReader,
	locker Locker,
	config Config,
	clock shared.Clock,
	publisher shared.EventPublisher,
) *Ledger {
	if clock == nil {
		clock = shared.SystemClock
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if locker == nil {
		locker = NewKeyedMutex()
	}
	if config.GatewayTimeout <= 0 {
		config.GatewayTimeout = DefaultConfig().GatewayTimeout
	}
	return &Ledger{
		repo:         repo,
		gateway:      gateway,
		courses:      courses,
		locker:       locker,
		config:       config,
		clock:        clock,
		publisher:    publisher,
		newReference: NewReference,
	}
}

// Config возвращает параметры журнала.
func (l *Ledger) Config() Config {
	return l.config
}

// ─────────────────────────────────────────────────────────────────────────────
// Initiate
// ─────────────────────────────────────────────────────────────────────────────

// Initiate создаёт намерение и первый платёж в шлюзе.
//
// Возвращает shared.ErrDuplicateActiveIntent, если у пары уже есть активное
// намерение, и shared.ErrCourseNotFound для неизвестного курса. Если шлюз
// недоступен, намерение сохраняется как failed (пользователь может повторить)
// и возвращается ошибка, совместимая с shared.ErrGatewayUnavailable.
func (l *Ledger) Initiate(ctx context.Context, in InitiateInput) (*PaymentIntent, error) {
	if !in.Plan.IsValid() {
		return nil, shared.ErrInvalidPlan
	}
	if _, err := l.courses.GetCourse(ctx, in.CourseID); err != nil {
		return nil, err
	}

	now := l.clock()
	intent := NewIntent(in.AccountID, in.CourseID, in.Plan, l.config.Pricing, l.newReference(in.AccountID), now)
	if err := l.repo.Create(ctx, intent); err != nil {
		return nil, err
	}

	leg := &intent.Legs[0]
	if err := l.openLeg(ctx, intent, leg, in.Email, in.CallbackURL); err != nil {
		if ferr := intent.applyFailure(leg, "initialize: "+err.Error(), l.clock()); ferr != nil {
			return nil, ferr
		}
		if serr := l.repo.Save(ctx, intent); serr != nil {
			return nil, fmt.Errorf("save failed intent: %w", serr)
		}
		l.publish(shared.EventIntentFailed, intent, leg.Reference)
		return intent, err
	}

	if err := intent.transitionTo(StatusPendingVerification, l.clock()); err != nil {
		return nil, err
	}
	if err := l.repo.Save(ctx, intent); err != nil {
		return nil, fmt.Errorf("save intent: %w", err)
	}
	return intent, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// PayNextInstallment
// ─────────────────────────────────────────────────────────────────────────────

// PayNextInstallment открывает следующий платёж рассрочки.
// Доступно только для рассрочки в состоянии partially_paid без ожидающего
// платежа и с непогашенным остатком.
func (l *Ledger) PayNextInstallment(ctx context.Context, accountID, email, intentID, callbackURL string) (*PaymentIntent, error) {
	unlock, err := l.locker.Lock(ctx, "intent:"+intentID)
	if err != nil {
		return nil, fmt.Errorf("lock intent: %w", err)
	}
	defer unlock()

	intent, err := l.repo.Get(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.AccountID != accountID {
		return nil, shared.ErrIntentNotFound
	}
	if intent.Plan != PlanInstallment || intent.Status != StatusPartiallyPaid || intent.Outstanding() == 0 {
		return nil, shared.ErrNoOutstandingBalance
	}
	if _, pending := intent.PendingLeg(); pending {
		return nil, shared.ErrLegPending
	}

	leg := intent.addLeg(l.newReference(accountID), intent.NextLegAmount(), l.clock())
	if err := l.repo.Save(ctx, intent); err != nil {
		return nil, fmt.Errorf("save leg: %w", err)
	}

	if err := l.openLeg(ctx, intent, leg, email, callbackURL); err != nil {
		if ferr := intent.applyFailure(leg, "initialize: "+err.Error(), l.clock()); ferr != nil {
			return nil, ferr
		}
		if serr := l.repo.Save(ctx, intent); serr != nil {
			return nil, fmt.Errorf("save failed leg: %w", serr)
		}
		return intent, err
	}

	if err := l.repo.Save(ctx, intent); err != nil {
		return nil, fmt.Errorf("save leg: %w", err)
	}
	return intent, nil
}

// openLeg регистрирует платёж в шлюзе и сохраняет ссылку на оплату.
func (l *Ledger) openLeg(ctx context.Context, intent *PaymentIntent, leg *PaymentLeg, email, callbackURL string) error {
	gctx, cancel := context.WithTimeout(ctx, l.config.GatewayTimeout)
	defer cancel()

	res, err := l.gateway.Initialize(gctx, InitializeRequest{
		Email:       email,
		Amount:      leg.Amount,
		Currency:    shared.CurrencyNGN,
		Reference:   leg.Reference,
		CallbackURL: callbackURL,
		Metadata: map[string]string{
			"intent_id":  intent.ID,
			"account_id": intent.AccountID,
			"course_id":  intent.CourseID,
			"plan":       string(intent.Plan),
			"leg":        fmt.Sprintf("%d/%d", leg.Sequence, intent.LegCount),
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrGatewayUnavailable, err)
	}
	leg.AuthorizationURL = res.AuthorizationURL
	leg.AccessCode = res.AccessCode
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Confirm
// ─────────────────────────────────────────────────────────────────────────────

// Confirm перепроверяет платёж напрямую в шлюзе и применяет результат.
//
// Вызовы по одному reference сериализуются. Повторное подтверждение уже
// закрытого платежа возвращает сохранённое намерение без повторного
// зачисления. Недоступность шлюза возвращает ошибку, совместимую
// с shared.ErrGatewayUnavailable, и ничего не меняет. Любой ответ, кроме
// однозначного успеха на нужную сумму в NGN, закрывает платёж как
// проваленный и возвращает намерение вместе с shared.ErrVerificationFailed.
func (l *Ledger) Confirm(ctx context.Context, reference string) (*PaymentIntent, error) {
	return l.verifyAndSettle(ctx, reference, "")
}

// verifyAndSettle проверяет платёж в шлюзе под блокировкой reference.
// prefix дописывается к причине отказа.
func (l *Ledger) verifyAndSettle(ctx context.Context, reference, prefix string) (*PaymentIntent, error) {
	unlock, err := l.locker.Lock(ctx, "confirm:"+reference)
	if err != nil {
		return nil, fmt.Errorf("lock reference: %w", err)
	}
	defer unlock()

	intent, err := l.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	leg, _ := intent.Leg(reference)
	if leg.IsSettled() {
		return settledOutcome(intent, leg)
	}

	gctx, cancel := context.WithTimeout(ctx, l.config.GatewayTimeout)
	result, err := l.gateway.Verify(gctx, reference)
	cancel()
	if err != nil {
		return intent, fmt.Errorf("%w: %v", shared.ErrGatewayUnavailable, err)
	}

	now := l.clock()
	reason := rejectReason(result, leg)
	if reason == "" {
		err = intent.applySuccess(leg, now)
	} else {
		err = intent.applyFailure(leg, prefix+reason, now)
	}
	if err != nil {
		return nil, err
	}

	return l.settle(ctx, intent, leg)
}

// settle сохраняет закрытый платёж и публикует события. Если платёж уже
// закрыт другим экземпляром, возвращает сохранённое состояние.
func (l *Ledger) settle(ctx context.Context, intent *PaymentIntent, leg *PaymentLeg) (*PaymentIntent, error) {
	ok, err := l.repo.Settle(ctx, intent, leg.Reference)
	if err != nil {
		return nil, fmt.Errorf("settle leg: %w", err)
	}
	if !ok {
		stored, err := l.repo.GetByReference(ctx, leg.Reference)
		if err != nil {
			return nil, err
		}
		storedLeg, _ := stored.Leg(leg.Reference)
		return settledOutcome(stored, storedLeg)
	}

	l.publish(shared.EventLegSettled, intent, leg.Reference)
	switch {
	case intent.Status == StatusPaid:
		l.publish(shared.EventIntentPaid, intent, leg.Reference)
	case intent.Status == StatusFailed:
		l.publish(shared.EventIntentFailed, intent, leg.Reference)
	}

	if leg.Status == LegFailed {
		return intent, shared.ErrVerificationFailed
	}
	return intent, nil
}

// settledOutcome повторяет результат уже закрытого платежа.
func settledOutcome(intent *PaymentIntent, leg *PaymentLeg) (*PaymentIntent, error) {
	if leg.Status == LegFailed {
		return intent, shared.ErrVerificationFailed
	}
	return intent, nil
}

// rejectReason возвращает пустую строку только для однозначного успеха.
func rejectReason(res VerifyResult, leg *PaymentLeg) string {
	switch {
	case res.Status != TxSuccess:
		status := string(res.Status)
		if status == "" {
			status = string(TxUnknown)
		}
		return "gateway status " + status
	case res.Reference != "" && res.Reference != leg.Reference:
		return "reference mismatch"
	case res.Currency != shared.CurrencyNGN:
		return "currency " + res.Currency
	case res.Amount < leg.Amount:
		return fmt.Sprintf("amount %d below expected %d", res.Amount, leg.Amount)
	default:
		return ""
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Access & queries
// ─────────────────────────────────────────────────────────────────────────────

// HasAccess сообщает, открыт ли курс аккаунту. После paid доступ не пропадает:
// paid - конечное состояние, а второе активное намерение создать нельзя.
func (l *Ledger) HasAccess(ctx context.Context, accountID, courseID string) (bool, error) {
	intent, err := l.repo.FindActive(ctx, accountID, courseID)
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return l.config.Access.Grants(intent.Status), nil
}

// StalePending возвращает намерения с платежами, ожидающими подтверждения
// дольше olderThan. Используется сверкой.
func (l *Ledger) StalePending(ctx context.Context, olderThan time.Duration) ([]*PaymentIntent, error) {
	return l.repo.ListWithPendingLegs(ctx, l.clock().Add(-olderThan))
}

// Expire в последний раз проверяет давно ожидающий платёж. Подтверждённый
// шлюзом платёж зачисляется как при Confirm, любой другой ответ закрывает его
// как проваленный без ошибки. Недоступность шлюза ничего не меняет и
// возвращает shared.ErrGatewayUnavailable. Закрытый платёж возвращается
// без изменений.
func (l *Ledger) Expire(ctx context.Context, reference string) (*PaymentIntent, error) {
	out, err := l.verifyAndSettle(ctx, reference, "expired: ")
	if errors.Is(err, shared.ErrVerificationFailed) {
		return out, nil
	}
	return out, err
}

// ListForAccount возвращает все намерения аккаунта.
func (l *Ledger) ListForAccount(ctx context.Context, accountID string) ([]*PaymentIntent, error) {
	return l.repo.ListByAccount(ctx, accountID)
}

// Get возвращает намерение аккаунта по ID.
func (l *Ledger) Get(ctx context.Context, accountID, intentID string) (*PaymentIntent, error) {
	intent, err := l.repo.Get(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.AccountID != accountID {
		return nil, shared.ErrIntentNotFound
	}
	return intent, nil
}

func (l *Ledger) publish(t shared.EventType, intent *PaymentIntent, reference string) {
	_ = l.publisher.Publish(shared.IntentEvent{
		BaseEvent:  shared.NewBaseEvent(t, intent.ID, intent.UpdatedAt),
		AccountID:  intent.AccountID,
		CourseID:   intent.CourseID,
		Reference:  reference,
		Status:     string(intent.Status),
		AmountPaid: intent.AmountPaid.Int64(),
	})
}
