// Package memstore is an in-memory implementation of the repository
// interfaces. It backs tests and STORE_DRIVER=memory deployments.
//
// Concurrency: every workflow entity has its own mutex (keyed by entity),
// held while the caller's transition callback runs. All writes belonging to
// one unit of work are applied under a single short critical section on
// the state maps, so readers observe either all of them or none.
package memstore

import (
	"sort"
	"strconv"
	"sync"

	"github.com/iliyamo/mindwell/internal/model"
	"github.com/iliyamo/mindwell/internal/repository"
)

type tokenRow struct {
	userID  uint64
	exp     int64
	revoked bool
}

type state struct {
	mu sync.RWMutex

	seq map[string]uint64

	users     map[uint64]model.User
	usernames map[string]uint64
	emails    map[string]uint64
	tokens    map[string]tokenRow

	apps           map[uint64]model.TherapistApplication
	appByApplicant map[uint64]uint64
	plans          map[uint64]model.TreatmentPlan
	reports        map[uint64]model.ProblemReport
	reviews        map[uint64]model.Review

	disorders map[string]struct{}
	symptoms  map[string]struct{}
	links     map[string]map[string]struct{} // disorder -> symptoms

	locks keyedMutex
}

// Store bundles one implementation per repository interface, all sharing
// the same state.
type Store struct {
	Users        *Users
	Tokens       *Tokens
	Applications *Applications
	Plans        *Plans
	Reports      *Reports
	Reviews      *Reviews
	Knowledge    *Knowledge
}

var (
	_ repository.UserStore        = (*Users)(nil)
	_ repository.TokenStore       = (*Tokens)(nil)
	_ repository.ApplicationStore = (*Applications)(nil)
	_ repository.PlanStore        = (*Plans)(nil)
	_ repository.ReportStore      = (*Reports)(nil)
	_ repository.ReviewStore      = (*Reviews)(nil)
	_ repository.KnowledgeStore   = (*Knowledge)(nil)
)

func New() *Store {
	s := &state{
		seq:            map[string]uint64{},
		users:          map[uint64]model.User{},
		usernames:      map[string]uint64{},
		emails:         map[string]uint64{},
		tokens:         map[string]tokenRow{},
		apps:           map[uint64]model.TherapistApplication{},
		appByApplicant: map[uint64]uint64{},
		plans:          map[uint64]model.TreatmentPlan{},
		reports:        map[uint64]model.ProblemReport{},
		reviews:        map[uint64]model.Review{},
		disorders:      map[string]struct{}{},
		symptoms:       map[string]struct{}{},
		links:          map[string]map[string]struct{}{},
		locks:          keyedMutex{m: map[string]*keyLock{}},
	}
	return &Store{
		Users:        &Users{s: s},
		Tokens:       &Tokens{s: s},
		Applications: &Applications{s: s},
		Plans:        &Plans{s: s},
		Reports:      &Reports{s: s},
		Reviews:      &Reviews{s: s},
		Knowledge:    &Knowledge{s: s},
	}
}

// nextID must be called with s.mu held for writing.
func (s *state) nextID(table string) uint64 {
	s.seq[table]++
	return s.seq[table]
}

func userKey(id uint64) string   { return "user:" + strconv.FormatUint(id, 10) }
func planKey(id uint64) string   { return "plan:" + strconv.FormatUint(id, 10) }
func reportKey(id uint64) string { return "report:" + strconv.FormatUint(id, 10) }

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu sync.Mutex
	m  map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

// Lock blocks until key is free and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.m[key]
	if !ok {
		l = &keyLock{}
		k.m[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.m, key)
		}
		k.mu.Unlock()
	}
}

func window[T any](items []T, skip, limit int) []T {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = repository.DefaultPageSize
	}
	if limit > repository.MaxPageSize {
		limit = repository.MaxPageSize
	}
	if skip >= len(items) {
		return []T{}
	}
	end := skip + limit
	if end > len(items) {
		end = len(items)
	}
	return items[skip:end]
}

// newestFirst orders by creation time then id, both descending.
func newestFirst[T any](items []T, key func(T) (int64, uint64)) {
	sort.Slice(items, func(i, j int) bool {
		ti, ii := key(items[i])
		tj, ij := key(items[j])
		if ti != tj {
			return ti > tj
		}
		return ii > ij
	})
}
