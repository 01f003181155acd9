// Package memory implements every repository interface in process memory.
// It backs the test suites and local runs without DATABASE_URL.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ndmx/upscale/internal/domain/account"
	"github.com/ndmx/upscale/internal/domain/catalog"
	"github.com/ndmx/upscale/internal/domain/enrollment"
	"github.com/ndmx/upscale/internal/domain/progress"
	"github.com/ndmx/upscale/internal/domain/security"
	"github.com/ndmx/upscale/internal/domain/shared"
)

// Store holds all entities. Returned values are copies; callers never
// share memory with the store.
type Store struct {
	mu sync.RWMutex

	accounts       map[string]*account.Account // by id
	accountByEmail map[shared.Email]string
	loginLocks     *enrollment.KeyedMutex

	events []security.Event

	courses     map[string]*catalog.Course
	courseOrder []string

	progress map[string]progress.Progress // key: account|module

	intents     map[string]*enrollment.PaymentIntent
	intentByRef map[string]string
}

var (
	_ account.Repository    = (*AccountRepo)(nil)
	_ security.Log          = (*SecurityLog)(nil)
	_ catalog.Repository    = (*CourseRepo)(nil)
	_ progress.Repository   = (*ProgressRepo)(nil)
	_ enrollment.Repository = (*IntentRepo)(nil)
)

// Repository views share one Store so that cross-entity operations
// (login state plus security events) stay atomic.
type (
	AccountRepo  struct{ s *Store }
	SecurityLog  struct{ s *Store }
	CourseRepo   struct{ s *Store }
	ProgressRepo struct{ s *Store }
	IntentRepo   struct{ s *Store }
)

// Accounts returns the account repository.
func (s *Store) Accounts() *AccountRepo { return &AccountRepo{s: s} }

// SecurityLog returns the append-only security log.
func (s *Store) SecurityLog() *SecurityLog { return &SecurityLog{s: s} }

// Courses returns the catalog repository.
func (s *Store) Courses() *CourseRepo { return &CourseRepo{s: s} }

// Progress returns the progress repository.
func (s *Store) Progress() *ProgressRepo { return &ProgressRepo{s: s} }

// Intents returns the enrollment repository.
func (s *Store) Intents() *IntentRepo { return &IntentRepo{s: s} }

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		accounts:       make(map[string]*account.Account),
		accountByEmail: make(map[shared.Email]string),
		loginLocks:     enrollment.NewKeyedMutex(),
		courses:        make(map[string]*catalog.Course),
		progress:       make(map[string]progress.Progress),
		intents:        make(map[string]*enrollment.PaymentIntent),
		intentByRef:    make(map[string]string),
	}
}

// Ping always succeeds; it lets the store stand in for a database health check.
func (s *Store) Ping(context.Context) error { return nil }

// ═══════════════════════════════════════════════════════════════════════════
// Accounts
// ═══════════════════════════════════════════════════════════════════════════

func copyAccount(a *account.Account) *account.Account {
	c := *a
	return &c
}

// Create implements account.Repository.
func (r *AccountRepo) Create(_ context.Context, a *account.Account) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accountByEmail[a.Email]; exists {
		return shared.ErrDuplicateAccount
	}
	s.accounts[a.ID] = copyAccount(a)
	s.accountByEmail[a.Email] = a.ID
	return nil
}

// GetByID implements account.Repository.
func (r *AccountRepo) GetByID(_ context.Context, id string) (*account.Account, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, shared.ErrAccountNotFound
	}
	return copyAccount(a), nil
}

// GetByEmail implements account.Repository.
func (r *AccountRepo) GetByEmail(_ context.Context, email shared.Email) (*account.Account, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.accountByEmail[email]
	if !ok {
		return nil, shared.ErrAccountNotFound
	}
	return copyAccount(s.accounts[id]), nil
}

// UpdateLoginState implements account.Repository. A per-email mutex stands
// in for the row lock so slow hash comparisons do not block other accounts.
func (r *AccountRepo) UpdateLoginState(ctx context.Context, email shared.Email, fn account.LoginMutation) (*account.Account, error) {
	s := r.s
	unlock, err := s.loginLocks.Lock(ctx, string(email))
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := r.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	events := fn(current)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[current.ID] = copyAccount(current)
	s.events = append(s.events, events...)
	return copyAccount(current), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Security log
// ═══════════════════════════════════════════════════════════════════════════

// Append implements security.Log.
func (r *SecurityLog) Append(_ context.Context, e security.Event) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

// ListByAccount implements security.Log.
func (r *SecurityLog) ListByAccount(_ context.Context, accountID string, limit int) ([]security.Event, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []security.Event
	for i := len(s.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.events[i].AccountID == accountID {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Catalog
// ═══════════════════════════════════════════════════════════════════════════

func copyCourse(c *catalog.Course) *catalog.Course {
	out := *c
	out.Modules = append([]catalog.Module(nil), c.Modules...)
	return &out
}

// List implements catalog.Repository.
func (r *CourseRepo) List(_ context.Context) ([]catalog.Course, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Course, 0, len(s.courseOrder))
	for _, id := range s.courseOrder {
		out = append(out, *copyCourse(s.courses[id]))
	}
	return out, nil
}

// Get implements catalog.Repository.
func (r *CourseRepo) Get(_ context.Context, courseID string) (*catalog.Course, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.courses[courseID]
	if !ok {
		return nil, shared.ErrCourseNotFound
	}
	return copyCourse(c), nil
}

// Count implements catalog.Repository.
func (r *CourseRepo) Count(_ context.Context) (int, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.courses), nil
}

// Create implements catalog.Repository.
func (r *CourseRepo) Create(_ context.Context, c *catalog.Course) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.courses[c.ID]; exists {
		return shared.NewDomainError("catalog", "Create", shared.ErrAlreadyExists, "course already exists")
	}
	stored := copyCourse(c)
	stored.SortModules()
	s.courses[c.ID] = stored
	s.courseOrder = append(s.courseOrder, c.ID)
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress
// ═══════════════════════════════════════════════════════════════════════════

// Insert implements progress.Repository.
func (r *ProgressRepo) Insert(_ context.Context, p progress.Progress) (progress.Progress, bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	key := p.AccountID + "|" + p.ModuleID
	if existing, ok := s.progress[key]; ok {
		return existing, false, nil
	}
	s.progress[key] = p
	return p, true, nil
}

// ListForCourse implements progress.Repository.
func (r *ProgressRepo) ListForCourse(_ context.Context, accountID, courseID string) ([]progress.Progress, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []progress.Progress
	for _, p := range s.progress {
		if p.AccountID == accountID && p.CourseID == courseID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Before(out[j].CompletedAt) })
	return out, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Enrollment
// ═══════════════════════════════════════════════════════════════════════════

func copyIntent(i *enrollment.PaymentIntent) *enrollment.PaymentIntent {
	out := *i
	out.Legs = append([]enrollment.PaymentLeg(nil), i.Legs...)
	return &out
}

// Create implements enrollment.Repository.
func (r *IntentRepo) Create(_ context.Context, intent *enrollment.PaymentIntent) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.intents {
		if existing.AccountID == intent.AccountID && existing.CourseID == intent.CourseID && existing.IsActive() {
			return shared.ErrDuplicateActiveIntent
		}
	}
	s.intents[intent.ID] = copyIntent(intent)
	for _, leg := range intent.Legs {
		s.intentByRef[leg.Reference] = intent.ID
	}
	return nil
}

// Save implements enrollment.Repository.
func (r *IntentRepo) Save(_ context.Context, intent *enrollment.PaymentIntent) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.intents[intent.ID]; !ok {
		return shared.ErrIntentNotFound
	}
	s.intents[intent.ID] = copyIntent(intent)
	for _, leg := range intent.Legs {
		s.intentByRef[leg.Reference] = intent.ID
	}
	return nil
}

// Settle implements enrollment.Repository.
func (r *IntentRepo) Settle(_ context.Context, intent *enrollment.PaymentIntent, reference string) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.intents[intent.ID]
	if !ok {
		return false, shared.ErrIntentNotFound
	}
	leg, ok := stored.Leg(reference)
	if !ok {
		return false, shared.ErrLegNotFound
	}
	if leg.IsSettled() {
		return false, nil
	}
	s.intents[intent.ID] = copyIntent(intent)
	return true, nil
}

// Get implements enrollment.Repository.
func (r *IntentRepo) Get(_ context.Context, id string) (*enrollment.PaymentIntent, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	intent, ok := s.intents[id]
	if !ok {
		return nil, shared.ErrIntentNotFound
	}
	return copyIntent(intent), nil
}

// GetByReference implements enrollment.Repository.
func (r *IntentRepo) GetByReference(_ context.Context, reference string) (*enrollment.PaymentIntent, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.intentByRef[reference]
	if !ok {
		return nil, shared.ErrLegNotFound
	}
	return copyIntent(s.intents[id]), nil
}

// FindActive implements enrollment.Repository.
func (r *IntentRepo) FindActive(_ context.Context, accountID, courseID string) (*enrollment.PaymentIntent, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, intent := range s.intents {
		if intent.AccountID == accountID && intent.CourseID == courseID && intent.IsActive() {
			return copyIntent(intent), nil
		}
	}
	return nil, shared.ErrIntentNotFound
}

// ListByAccount implements enrollment.Repository.
func (r *IntentRepo) ListByAccount(_ context.Context, accountID string) ([]*enrollment.PaymentIntent, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*enrollment.PaymentIntent
	for _, intent := range s.intents {
		if intent.AccountID == accountID {
			out = append(out, copyIntent(intent))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// ListWithPendingLegs implements enrollment.Repository.
func (r *IntentRepo) ListWithPendingLegs(_ context.Context, before time.Time) ([]*enrollment.PaymentIntent, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*enrollment.PaymentIntent
	for _, intent := range s.intents {
		if leg, ok := intent.PendingLeg(); ok && leg.CreatedAt.Before(before) {
			out = append(out, copyIntent(intent))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func sortNewestFirst(intents []*enrollment.PaymentIntent) {
	sort.Slice(intents, func(i, j int) bool { return intents[i].CreatedAt.After(intents[j].CreatedAt) })
}
