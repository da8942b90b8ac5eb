package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/mindwell/internal/apperr"
	"github.com/iliyamo/mindwell/internal/model"
)

type Users struct{ s *state }

func cloneUser(u model.User) *model.User {
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		u.LastLoginAt = &t
	}
	return &u
}

func (r *Users) Create(_ context.Context, u *model.User) error {
	u.Username = strings.TrimSpace(u.Username)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usernames[u.Username]; ok {
		return apperr.Conflict("username or email already registered")
	}
	if _, ok := s.emails[u.Email]; ok {
		return apperr.Conflict("username or email already registered")
	}
	u.ID = s.nextID("users")
	s.users[u.ID] = *cloneUser(*u)
	s.usernames[u.Username] = u.ID
	s.emails[u.Email] = u.ID
	return nil
}

func (r *Users) GetByID(_ context.Context, id uint64) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, apperr.NotFound("user %d", id)
	}
	return cloneUser(u), nil
}

func (r *Users) GetByUsername(_ context.Context, username string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.usernames[strings.TrimSpace(username)]
	if !ok {
		return nil, apperr.NotFound("user %q", username)
	}
	return cloneUser(r.s.users[id]), nil
}

func (r *Users) List(_ context.Context, f model.UserFilter) ([]model.User, int, error) {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	r.s.mu.RLock()
	matched := make([]model.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(u.Username), search) &&
			!strings.Contains(u.Email, search) {
			continue
		}
		matched = append(matched, *cloneUser(u))
	}
	r.s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return window(matched, f.Skip, f.Limit), len(matched), nil
}

func (r *Users) Update(_ context.Context, id uint64, fn func(u *model.User) error) (*model.User, error) {
	unlock := r.s.locks.Lock(userKey(id))
	defer unlock()

	r.s.mu.RLock()
	cur, ok := r.s.users[id]
	r.s.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("user %d", id)
	}
	u := cloneUser(cur)
	if err := fn(u); err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	stored := r.s.users[id]
	if stored.Role != u.Role {
		if appID, ok := r.s.appByApplicant[id]; ok {
			app := r.s.apps[appID]
			app.PromotedRole = ""
			r.s.apps[appID] = app
		}
	}
	stored.Role = u.Role
	stored.IsActive = u.IsActive
	r.s.users[id] = stored
	r.s.mu.Unlock()
	return cloneUser(stored), nil
}

func (r *Users) TouchLogin(_ context.Context, id uint64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return apperr.NotFound("user %d", id)
	}
	t := at.UTC()
	u.LastLoginAt = &t
	r.s.users[id] = u
	return nil
}

type Tokens struct{ s *state }

func (r *Tokens) StoreRefresh(_ context.Context, userID uint64, tokenHash string, exp time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tokens[tokenHash]; ok {
		return apperr.Conflict("refresh token already stored")
	}
	r.s.tokens[tokenHash] = tokenRow{userID: userID, exp: exp.UTC().UnixNano()}
	return nil
}

func (r *Tokens) ValidateRefresh(_ context.Context, tokenHash string) (uint64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tokens[tokenHash]
	if !ok || t.revoked || time.Now().UTC().UnixNano() > t.exp {
		return 0, apperr.NotFound("refresh token")
	}
	return t.userID, nil
}

func (r *Tokens) RevokeByHash(_ context.Context, tokenHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t, ok := r.s.tokens[tokenHash]; ok {
		t.revoked = true
		r.s.tokens[tokenHash] = t
	}
	return nil
}

func (r *Tokens) RevokeAllForUser(_ context.Context, userID uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for h, t := range r.s.tokens {
		if t.userID == userID && !t.revoked {
			t.revoked = true
			r.s.tokens[h] = t
		}
	}
	return nil
}
