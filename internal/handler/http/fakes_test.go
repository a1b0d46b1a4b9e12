package http

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/labqa/qualitylab/internal/domain"
	apperrors "github.com/labqa/qualitylab/pkg/errors"
	"github.com/labqa/qualitylab/pkg/pagination"
)

// --- In-memory stores ---

type memUsers struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[string]domain.User{}}
}

func (m *memUsers) Create(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Email]; ok {
		return apperrors.AlreadyExists("user", "email", u.Email)
	}
	m.users[u.Email] = *u
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, apperrors.NotFound("user", email)
	}
	return &u, nil
}

func (m *memUsers) Update(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Email]; !ok {
		return apperrors.NotFound("user", u.Email)
	}
	m.users[u.Email] = *u
	return nil
}

func (m *memUsers) Delete(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[email]; !ok {
		return apperrors.NotFound("user", email)
	}
	delete(m.users, email)
	return nil
}

type memCreds struct {
	mu    sync.Mutex
	creds map[string]domain.RefreshCredential
}

func newMemCreds() *memCreds {
	return &memCreds{creds: map[string]domain.RefreshCredential{}}
}

func (m *memCreds) Create(_ context.Context, c *domain.RefreshCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[c.Token] = *c
	return nil
}

func (m *memCreds) FindByToken(_ context.Context, token string) (*domain.RefreshCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[token]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &c, nil
}

func (m *memCreds) Delete(_ context.Context, token string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.creds[token]; !ok {
		return 0, nil
	}
	delete(m.creds, token)
	return 1, nil
}

func (m *memCreds) DeleteByOwner(_ context.Context, owner string) (int64, error) {
	return m.deleteWhere(func(c domain.RefreshCredential) bool { return c.Owner == owner }), nil
}

func (m *memCreds) DeleteByOwnerIssuedBefore(_ context.Context, owner string, cutoff time.Time) (int64, error) {
	return m.deleteWhere(func(c domain.RefreshCredential) bool {
		return c.Owner == owner && c.CreatedAt.Before(cutoff)
	}), nil
}

func (m *memCreds) DeleteAll(_ context.Context) (int64, error) {
	return m.deleteWhere(func(domain.RefreshCredential) bool { return true }), nil
}

func (m *memCreds) DeleteExpiredByOwner(_ context.Context, owner string, now time.Time) (int64, error) {
	return m.deleteWhere(func(c domain.RefreshCredential) bool {
		return c.Owner == owner && c.ExpiredAt(now)
	}), nil
}

func (m *memCreds) deleteWhere(match func(domain.RefreshCredential) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for token, c := range m.creds {
		if match(c) {
			delete(m.creds, token)
			n++
		}
	}
	return n
}

func (m *memCreds) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.creds)
}

type memTests struct {
	mu    sync.Mutex
	tests map[int64]domain.Test
}

func newMemTests(tests ...domain.Test) *memTests {
	m := &memTests{tests: map[int64]domain.Test{}}
	for _, t := range tests {
		m.tests[t.ID] = t
	}
	return m
}

func (m *memTests) List(_ context.Context, f domain.TestFilter, page pagination.Params) ([]domain.Test, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Test
	for _, t := range m.tests {
		if f.HideClosed && t.State.Closed() {
			continue
		}
		if f.Viewer != "" && t.ExclusiveTo != "" && t.ExclusiveTo != f.Viewer {
			continue
		}
		if f.Viewer != "" && t.ExclusiveTo == "" && t.SamplingScope == domain.ScopeOwner {
			continue
		}
		if f.Scopes != nil && !slices.Contains(f.Scopes, t.SamplingScope) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	total := len(out)
	start := min(page.Offset(), total)
	end := min(start+page.PerPage, total)
	return out[start:end], total, nil
}

func (m *memTests) GetByID(_ context.Context, id int64) (*domain.Test, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tests[id]
	if !ok {
		return nil, apperrors.NotFound("test", "")
	}
	return &t, nil
}

func (m *memTests) UpdateState(_ context.Context, c domain.StateChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tests[c.TestID]
	if !ok {
		return apperrors.NotFound("test", "")
	}
	t.State = c.State
	t.FinishedAt = c.FinishedAt
	t.LastUser = c.Actor
	m.tests[c.TestID] = t
	return nil
}

func (m *memTests) get(id int64) domain.Test {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tests[id]
}
