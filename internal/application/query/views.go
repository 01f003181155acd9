// Package query содержит операции чтения (CQRS - Queries).
package query

import (
	"time"

	"github.com/ndmx/upscale/internal/domain/account"
	"github.com/ndmx/upscale/internal/domain/catalog"
	"github.com/ndmx/upscale/internal/domain/enrollment"
	"github.com/ndmx/upscale/pkg/money"
)

// ══════════════════════════════════════════════════════════════════════════════
// READ MODELS
// Представления, которые отдаются наружу. Суммы - в kobo и строкой в naira.
// ══════════════════════════════════════════════════════════════════════════════

// AccountView - публичные данные учётной записи. Хеш пароля не попадает наружу.
type AccountView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// NewAccountView строит представление аккаунта.
func NewAccountView(a *account.Account) AccountView {
	return AccountView{
		ID:        a.ID,
		Email:     a.Email.String(),
		Name:      a.DisplayName(),
		CreatedAt: a.CreatedAt,
	}
}

// ModuleSummary - модуль без содержимого.
type ModuleSummary struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
	Title    string `json:"title"`
}

// CourseView - курс со списком модулей без содержимого.
type CourseView struct {
	ID          string          `json:"id"`
	Slug        string          `json:"slug"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Modules     []ModuleSummary `json:"modules"`
}

// NewCourseView строит представление курса.
func NewCourseView(c *catalog.Course) CourseView {
	v := CourseView{
		ID:          c.ID,
		Slug:        c.Slug,
		Title:       c.Title,
		Description: c.Description,
		Modules:     make([]ModuleSummary, 0, len(c.Modules)),
	}
	for _, m := range c.Modules {
		v.Modules = append(v.Modules, summarize(m))
	}
	return v
}

func summarize(m catalog.Module) ModuleSummary {
	return ModuleSummary{ID: m.ID, Position: m.Position, Title: m.Title}
}

// LegView - один платёж намерения.
type LegView struct {
	Reference        string    `json:"reference"`
	Sequence         int       `json:"sequence"`
	Amount           int64     `json:"amount"`
	AmountDisplay    string    `json:"amount_display"`
	Status           string    `json:"status"`
	AuthorizationURL string    `json:"authorization_url,omitempty"`
	FailureReason    string    `json:"failure_reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	VerifiedAt       time.Time `json:"verified_at,omitempty"`
}

// IntentView - намерение оплаты с платежами.
type IntentView struct {
	ID                 string    `json:"id"`
	CourseID           string    `json:"course_id"`
	Plan               string    `json:"plan"`
	Status             string    `json:"status"`
	AmountExpected     int64     `json:"amount_expected"`
	AmountPaid         int64     `json:"amount_paid"`
	Outstanding        int64     `json:"outstanding"`
	OutstandingDisplay string    `json:"outstanding_display"`
	LegsPaid           int       `json:"legs_paid"`
	LegCount           int       `json:"leg_count"`
	Legs               []LegView `json:"legs"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// NewIntentView строит представление намерения.
func NewIntentView(i *enrollment.PaymentIntent) IntentView {
	v := IntentView{
		ID:                 i.ID,
		CourseID:           i.CourseID,
		Plan:               string(i.Plan),
		Status:             string(i.Status),
		AmountExpected:     i.AmountExpected.Int64(),
		AmountPaid:         i.AmountPaid.Int64(),
		Outstanding:        i.Outstanding().Int64(),
		OutstandingDisplay: money.Format(i.Outstanding().Int64()),
		LegsPaid:           i.SucceededLegs(),
		LegCount:           i.LegCount,
		Legs:               make([]LegView, 0, len(i.Legs)),
		CreatedAt:          i.CreatedAt,
		UpdatedAt:          i.UpdatedAt,
	}
	for _, l := range i.Legs {
		v.Legs = append(v.Legs, LegView{
			Reference:        l.Reference,
			Sequence:         l.Sequence,
			Amount:           l.Amount.Int64(),
			AmountDisplay:    money.Format(l.Amount.Int64()),
			Status:           string(l.Status),
			AuthorizationURL: l.AuthorizationURL,
			FailureReason:    l.FailureReason,
			CreatedAt:        l.CreatedAt,
			VerifiedAt:       l.VerifiedAt,
		})
	}
	return v
}

// CheckoutURL возвращает ссылку на оплату последнего ожидающего платежа.
func (v IntentView) CheckoutURL() string {
	for i := len(v.Legs) - 1; i >= 0; i-- {
		if v.Legs[i].Status == string(enrollment.LegPending) {
			return v.Legs[i].AuthorizationURL
		}
	}
	return ""
}
