// Package storetest holds in-memory stand-ins for the pgx repositories. They
// mirror the WHERE clauses of the repository's conditional writes: a debit
// needs is_active, end_date >= now and sessions_remaining >= n, and a session
// save or completion needs the expected prior status. The repository package
// runs one input table against both to keep them aligned.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"studio-backend/internal/models"
	"studio-backend/internal/repository"
)

type Members struct {
	mu      sync.Mutex
	members map[uuid.UUID]models.Member
}

// NewMembers seeds placeholder members with the given ids.
func NewMembers(ids ...uuid.UUID) *Members {
	m := &Members{members: make(map[uuid.UUID]models.Member)}
	for _, id := range ids {
		m.members[id] = models.Member{ID: id, FullName: "Member " + id.String()[:8]}
	}
	return m
}

func (m *Members) Add(ids ...uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.members[id] = models.Member{ID: id, FullName: "Member " + id.String()[:8]}
	}
}

func (m *Members) Create(ctx context.Context, member *models.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	member.ID = uuid.New()
	member.CreatedAt = time.Now()
	m.members[member.ID] = *member
	return nil
}

func (m *Members) GetByID(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &member, nil
}

func (m *Members) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.members[id]
	return ok, nil
}

type Packages struct {
	mu       sync.Mutex
	packages map[uuid.UUID]models.Package
	usages   []*models.PackageUsage
}

func NewPackages(pkgs ...models.Package) *Packages {
	f := &Packages{packages: make(map[uuid.UUID]models.Package)}
	for _, p := range pkgs {
		f.packages[p.ID] = p
	}
	return f
}

// Put inserts or overwrites p as stored.
func (f *Packages) Put(p models.Package) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packages[p.ID] = p
}

// Usages returns every recorded debit in insertion order.
func (f *Packages) Usages() []*models.PackageUsage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.PackageUsage(nil), f.usages...)
}

func (f *Packages) Create(ctx context.Context, p *models.Package) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	f.packages[p.ID] = *p
	return nil
}

func (f *Packages) GetByID(ctx context.Context, id uuid.UUID) (*models.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.packages[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &p, nil
}

func (f *Packages) ListByMember(ctx context.Context, memberID uuid.UUID) ([]*models.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Package, 0)
	for _, p := range f.packages {
		if p.MemberID == memberID {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.After(out[j].EndDate) })
	return out, nil
}

// debit must be called with f.mu held.
func (f *Packages) debit(id uuid.UUID, n int, now time.Time, sessionID *uuid.UUID, notes *string) (*models.Package, error) {
	p, ok := f.packages[id]
	if !ok || !p.IsActive || now.After(p.EndDate) || p.SessionsRemaining < n {
		return nil, repository.ErrInsufficientCredit
	}
	p.SessionsRemaining -= n
	p.UpdatedAt = now
	f.packages[id] = p
	f.usages = append(f.usages, &models.PackageUsage{
		ID: uuid.New(), PackageID: id, SessionID: sessionID, SessionsUsed: n, Notes: notes, CreatedAt: now,
	})
	return &p, nil
}

func (f *Packages) UseSessions(ctx context.Context, id uuid.UUID, n int, notes *string, now time.Time) (*models.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.debit(id, n, now, nil, notes)
}

func (f *Packages) Extend(ctx context.Context, id uuid.UUID, additional int, newEndDate *time.Time) (*models.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.packages[id]
	if !ok || !p.IsActive {
		return nil, repository.ErrPackageInactive
	}
	p.TotalSessions += additional
	p.SessionsRemaining += additional
	if newEndDate != nil {
		p.EndDate = *newEndDate
	}
	f.packages[id] = p
	return &p, nil
}

func (f *Packages) Deactivate(ctx context.Context, id uuid.UUID) (*models.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.packages[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	p.IsActive = false
	f.packages[id] = p
	return &p, nil
}

func (f *Packages) FindExpiring(ctx context.Context, now, until time.Time, limit int) ([]*models.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Package, 0)
	for _, p := range f.packages {
		if p.IsActive && !p.EndDate.Before(now) && !p.EndDate.After(until) {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *Packages) ListUsages(ctx context.Context, packageID uuid.UUID, limit int) ([]*models.PackageUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.PackageUsage, 0)
	for i := len(f.usages) - 1; i >= 0 && len(out) < limit; i-- {
		if f.usages[i].PackageID == packageID {
			out = append(out, f.usages[i])
		}
	}
	return out, nil
}

type Sessions struct {
	mu         sync.Mutex
	sessions   map[uuid.UUID]models.Session
	packages   *Packages
	lockCalls  [][]string
	lastSearch models.SessionSearchParams

	// FailWrite, when set, is returned by every write inside WithDeviceLock.
	FailWrite error
}

// NewSessions builds a session store whose CompleteWithDebit debits packages.
func NewSessions(packages *Packages, existing ...models.Session) *Sessions {
	f := &Sessions{sessions: make(map[uuid.UUID]models.Session), packages: packages}
	for _, s := range existing {
		f.sessions[s.ID] = s
	}
	return f
}

func (f *Sessions) Put(s models.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s
}

func (f *Sessions) Status(id uuid.UUID) models.SessionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id].Status
}

// LockCalls returns the sub-device sets passed to WithDeviceLock, in order.
func (f *Sessions) LockCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.lockCalls...)
}

func (f *Sessions) LastSearch() models.SessionSearchParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSearch
}

func (f *Sessions) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &s, nil
}

// Search filters on sub-device, member and status and orders by start time.
// Paging is applied; other sort fields are ignored.
func (f *Sessions) Search(ctx context.Context, p models.SessionSearchParams) ([]*models.Session, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSearch = p

	matched := make([]*models.Session, 0)
	for _, s := range f.sessions {
		if p.SubDeviceID != "" && s.SubDeviceID != p.SubDeviceID {
			continue
		}
		if p.MemberID != nil && s.MemberID != *p.MemberID {
			continue
		}
		if len(p.Statuses) > 0 && !statusIn(s.Status, p.Statuses) {
			continue
		}
		s := s
		matched = append(matched, &s)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].StartTime.Before(matched[j].StartTime) })

	total := len(matched)
	if p.Limit > 0 {
		from := p.Offset()
		if from > total {
			from = total
		}
		to := from + p.Limit
		if to > total {
			to = total
		}
		matched = matched[from:to]
	}
	return matched, total, nil
}

func (f *Sessions) FindUpcomingByMember(ctx context.Context, memberID uuid.UUID, from time.Time, limit int) ([]*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Session, 0)
	for _, s := range f.sessions {
		if s.MemberID == memberID && !s.StartTime.Before(from) && s.Status.Active() {
			s := s
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// WithDeviceLock serialises every locked section and applies fn's writes
// only when it returns nil.
func (f *Sessions) WithDeviceLock(ctx context.Context, subDeviceIDs []string, fn func(tx repository.SessionTx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lockCalls = append(f.lockCalls, append([]string(nil), subDeviceIDs...))

	tx := &sessionTx{parent: f, staged: make(map[uuid.UUID]models.Session)}
	if err := fn(tx); err != nil {
		return err
	}
	for id, s := range tx.staged {
		f.sessions[id] = s
	}
	return nil
}

func (f *Sessions) TransitionStatus(ctx context.Context, id uuid.UUID, from []models.SessionStatus, to models.SessionStatus) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || !statusIn(s.Status, from) {
		return nil, repository.ErrStaleStatus
	}
	s.Status = to
	s.UpdatedAt = time.Now()
	f.sessions[id] = s
	return &s, nil
}

func (f *Sessions) CompleteWithDebit(ctx context.Context, sessionID, packageID uuid.UUID, now time.Time) (*models.Session, *models.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok || s.Status != models.SessionConfirmed {
		return nil, nil, repository.ErrStaleStatus
	}

	f.packages.mu.Lock()
	defer f.packages.mu.Unlock()
	pkg, err := f.packages.debit(packageID, 1, now, &sessionID, nil)
	if err != nil {
		return nil, nil, err
	}

	s.Status = models.SessionCompleted
	s.UpdatedAt = now
	f.sessions[sessionID] = s
	return &s, pkg, nil
}

func (f *Sessions) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(f.sessions, id)
	return nil
}

func statusIn(st models.SessionStatus, set []models.SessionStatus) bool {
	for _, s := range set {
		if s == st {
			return true
		}
	}
	return false
}

type sessionTx struct {
	parent *Sessions
	staged map[uuid.UUID]models.Session
}

func (t *sessionTx) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, ok := t.parent.sessions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &s, nil
}

func (t *sessionTx) ListActiveOnDevice(ctx context.Context, subDeviceID string, from, to time.Time) ([]*models.Session, error) {
	out := make([]*models.Session, 0)
	for _, s := range t.parent.sessions {
		if s.SubDeviceID == subDeviceID && s.Status.Active() && s.StartTime.Before(to) && s.EndTime().After(from) {
			s := s
			out = append(out, &s)
		}
	}
	return out, nil
}

func (t *sessionTx) Insert(ctx context.Context, s *models.Session) error {
	if t.parent.FailWrite != nil {
		return t.parent.FailWrite
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	t.staged[s.ID] = *s
	return nil
}

func (t *sessionTx) Save(ctx context.Context, s *models.Session, from models.SessionStatus) error {
	if t.parent.FailWrite != nil {
		return t.parent.FailWrite
	}
	current, ok := t.parent.sessions[s.ID]
	if !ok || current.Status != from {
		return repository.ErrStaleStatus
	}
	s.UpdatedAt = time.Now()
	t.staged[s.ID] = *s
	return nil
}
