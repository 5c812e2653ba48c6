package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/justgu1/cepapi/internal/errs"
	"github.com/justgu1/cepapi/internal/limiter"
	"github.com/justgu1/cepapi/internal/model"
	"github.com/justgu1/cepapi/internal/repository"
	"github.com/justgu1/cepapi/internal/viacep"
	"github.com/justgu1/cepapi/internal/zipcode"
)

func sp(s string) *string { return &s }

func payload(t *testing.T, js string) *viacep.Payload {
	t.Helper()
	var p viacep.Payload
	if err := json.Unmarshal([]byte(js), &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	return &p
}

/************ ceps ************/

type fakeCeps struct {
	mu      sync.Mutex
	byCode  map[zipcode.Code]*model.PostalRecord
	nextID  int64
	finds   int
	upserts []model.Attributes

	findErr   error
	upsertErr error
}

var _ repository.CepRepository = (*fakeCeps)(nil)

func newFakeCeps() *fakeCeps { return &fakeCeps{byCode: map[zipcode.Code]*model.PostalRecord{}} }

func (f *fakeCeps) seed(code string, a model.Attributes) *model.PostalRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rec := &model.PostalRecord{ID: f.nextID, Code: code, Attributes: a, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	f.byCode[zipcode.Code(code)] = rec
	return rec
}

func (f *fakeCeps) FindByCode(_ context.Context, code zipcode.Code) (*model.PostalRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds++
	if f.findErr != nil {
		return nil, f.findErr
	}
	rec, ok := f.byCode[code]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *rec
	return &c, nil
}

func (f *fakeCeps) Upsert(_ context.Context, code zipcode.Code, a model.Attributes) (*model.PostalRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	f.upserts = append(f.upserts, a)
	rec, ok := f.byCode[code]
	if !ok {
		f.nextID++
		rec = &model.PostalRecord{ID: f.nextID, Code: string(code), CreatedAt: time.Now()}
		f.byCode[code] = rec
	}
	rec.Attributes = a
	rec.UpdatedAt = time.Now()
	c := *rec
	return &c, nil
}

/************ upstream ************/

type fakeFetcher struct {
	byDigits map[string]*viacep.Payload
	err      error
	calls    atomic.Int32
	release  chan struct{} // when set, Fetch waits on it
}

var _ Fetcher = (*fakeFetcher)(nil)

func (f *fakeFetcher) Fetch(ctx context.Context, digits string) (*viacep.Payload, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.byDigits[digits]
	if !ok {
		return nil, errs.ErrLookupFailed
	}
	return p, nil
}

/************ favorites ************/

type favRow struct {
	seq      int
	user     uuid.UUID
	recordID int64
	nickname string
}

type fakeFavs struct {
	mu    sync.Mutex
	ceps  *fakeCeps
	rows  []favRow
	seq   int
	adds  int
	limit int
	off   int

	existsErr error
	addErr    error
	listErr   error
}

var _ repository.FavoriteRepository = (*fakeFavs)(nil)

func (f *fakeFavs) Exists(_ context.Context, user uuid.UUID, recordID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	for _, r := range f.rows {
		if r.user == user && r.recordID == recordID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeFavs) Add(_ context.Context, user uuid.UUID, recordID int64, nickname string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds++
	if f.addErr != nil {
		return f.addErr
	}
	for _, r := range f.rows {
		if r.user == user && r.recordID == recordID {
			return errs.ErrAlreadyExists
		}
	}
	f.seq++
	f.rows = append(f.rows, favRow{seq: f.seq, user: user, recordID: recordID, nickname: nickname})
	return nil
}

func (f *fakeFavs) Remove(_ context.Context, user uuid.UUID, recordID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.rows {
		if r.user == user && r.recordID == recordID {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return errs.ErrNotFound
}

func (f *fakeFavs) List(_ context.Context, user uuid.UUID, limit, offset int) ([]model.Favorite, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limit, f.off = limit, offset
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	var mine []favRow
	for _, r := range f.rows {
		if r.user == user {
			mine = append(mine, r)
		}
	}
	sort.Slice(mine, func(i, j int) bool { return mine[i].seq < mine[j].seq })

	out := []model.Favorite{}
	for i := offset; i < len(mine) && i < offset+limit; i++ {
		fav := model.Favorite{UserID: user, Nickname: mine[i].nickname}
		for _, rec := range f.ceps.byCode {
			if rec.ID == mine[i].recordID {
				fav.Record = *rec
			}
		}
		out = append(out, fav)
	}
	return out, len(mine), nil
}

/************ users / limiter / revoke ************/

type fakeUsers struct {
	byEmail map[string]*model.User

	createErr error
	getErr    error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.byEmail == nil {
		f.byEmail = map[string]*model.User{}
	}
	if _, exists := f.byEmail[u.Email]; exists {
		return errs.ErrAlreadyExists
	}
	cpy := *u
	f.byEmail[u.Email] = &cpy
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
	lastEmail    string
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(_ context.Context, email string, _ []byte) (bool, time.Duration, error) {
	l.allowCalls++
	l.lastEmail = email
	return l.allowOK, 0, l.allowErr
}

func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}

func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

type fakeRevoke struct {
	ids   map[string]time.Duration
	isErr error
}

func (r *fakeRevoke) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	r.ids[jti] = ttl
	return nil
}

func (r *fakeRevoke) IsRevoked(_ context.Context, jti string) (bool, error) {
	if r.isErr != nil {
		return false, r.isErr
	}
	_, ok := r.ids[jti]
	return ok, nil
}
