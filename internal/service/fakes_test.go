package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/medhome/internal/dbx"
	"github.com/iliyamo/medhome/internal/model"
	"github.com/iliyamo/medhome/internal/queue"
	"github.com/iliyamo/medhome/internal/repository"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func ptr[T any](v T) *T { return &v }

// memStore is an in-memory stand-in for the four tables.  It ignores the
// DBTX it is bound to, so transactional tests assert Begin/Commit/Rollback
// through sqlmock instead.
type memStore struct {
	mu       sync.Mutex
	nextID   uint64
	users    map[string]*model.User
	devices  []*model.Device
	sessions map[string]*model.Session
	vitals   []model.VitalsRecord

	err error // returned by every call when set
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]*model.User{},
		sessions: map[string]*model.Session{},
	}
}

func (s *memStore) addUser(u model.User) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	u.ID = s.nextID
	s.users[u.Username] = &u
	return &u
}

func (s *memStore) addDevice(serial string, owner *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = append(s.devices, &model.Device{ID: uint64(len(s.devices) + 1), SerialNum: serial, Owner: owner})
}

func (s *memStore) Users(dbx.DBTX) repository.UserRepository       { return memUsers{s} }
func (s *memStore) Devices(dbx.DBTX) repository.DeviceRepository   { return memDevices{s} }
func (s *memStore) Sessions(dbx.DBTX) repository.SessionRepository { return memSessions{s} }
func (s *memStore) Vitals(dbx.DBTX) repository.VitalsRepository    { return memVitals{s} }

type memUsers struct{ s *memStore }

func (r memUsers) Create(_ context.Context, u *model.User) (uint64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.err != nil {
		return 0, r.s.err
	}
	if _, ok := r.s.users[u.Username]; ok {
		return 0, repository.ErrConflict
	}
	r.s.nextID++
	cp := *u
	cp.ID = r.s.nextID
	r.s.users[u.Username] = &cp
	return cp.ID, nil
}

func (r memUsers) GetByID(_ context.Context, id uint64) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.err != nil {
		return nil, r.s.err
	}
	for _, u := range r.s.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.err != nil {
		return nil, r.s.err
	}
	u, ok := r.s.users[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r memUsers) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.err != nil {
		return false, r.s.err
	}
	for _, u := range r.s.users {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r memUsers) SetSerial(_ context.Context, id uint64, serial *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.ID == id {
			u.SerialNum = serial
		}
	}
	return r.s.err
}

type memDevices struct{ s *memStore }

func (r memDevices) Insert(_ context.Context, serial string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.err != nil {
		return false, r.s.err
	}
	for _, d := range r.s.devices {
		if d.SerialNum == serial {
			return false, nil
		}
	}
	r.s.devices = append(r.s.devices, &model.Device{ID: uint64(len(r.s.devices) + 1), SerialNum: serial})
	return true, nil
}

func (r memDevices) CountUnassigned(context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, d := range r.s.devices {
		if d.Owner == nil {
			n++
		}
	}
	return n, r.s.err
}

func (r memDevices) ClaimUnassigned(_ context.Context, owner string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.err != nil {
		return "", r.s.err
	}
	for _, d := range r.s.devices {
		if d.Owner == nil {
			d.Owner = ptr(owner)
			return d.SerialNum, nil
		}
	}
	return "", repository.ErrNoDeviceAvailable
}

func (r memDevices) GetBySerial(_ context.Context, serial string) (*model.Device, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.err != nil {
		return nil, r.s.err
	}
	for _, d := range r.s.devices {
		if d.SerialNum == serial {
			cp := *d
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memDevices) GetByOwner(_ context.Context, owner string) ([]model.Device, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Device
	for _, d := range r.s.devices {
		if d.Owner != nil && *d.Owner == owner {
			out = append(out, *d)
		}
	}
	return out, r.s.err
}

func (r memDevices) Unassign(_ context.Context, serial string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, d := range r.s.devices {
		if d.SerialNum == serial {
			if d.Owner == nil {
				return "", nil
			}
			prev := *d.Owner
			d.Owner = nil
			return prev, nil
		}
	}
	return "", repository.ErrNotFound
}

type memSessions struct{ s *memStore }

func (r memSessions) Create(_ context.Context, id string, userID uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.err != nil {
		return r.s.err
	}
	r.s.sessions[id] = &model.Session{ID: id, UserID: userID, CreatedAt: time.Now()}
	return nil
}

func (r memSessions) Get(_ context.Context, id string) (*model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.err != nil {
		return nil, r.s.err
	}
	sess, ok := r.s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (r memSessions) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.sessions, id)
	return r.s.err
}

func (r memSessions) DeleteAll(context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := int64(len(r.s.sessions))
	r.s.sessions = map[string]*model.Session{}
	return n, r.s.err
}

func (r memSessions) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, sess := range r.s.sessions {
		if sess.CreatedAt.Before(cutoff) {
			delete(r.s.sessions, id)
			n++
		}
	}
	return n, r.s.err
}

type memVitals struct{ s *memStore }

func (r memVitals) Append(_ context.Context, rec *model.VitalsRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.err != nil {
		return r.s.err
	}
	rec.ID = uint64(len(r.s.vitals) + 1)
	r.s.vitals = append(r.s.vitals, *rec)
	return nil
}

func (r memVitals) ListRecent(_ context.Context, owner string, limit int) ([]model.VitalsRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.err != nil {
		return nil, r.s.err
	}
	var out []model.VitalsRecord
	for _, v := range r.s.vitals {
		if v.Owner == owner {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu       sync.Mutex
	claimed  []queue.DeviceClaimedEvent
	recorded []queue.VitalsRecordedEvent
	err      error
}

func (p *recordingPublisher) PublishDeviceClaimed(_ context.Context, ev queue.DeviceClaimedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.claimed = append(p.claimed, ev)
	return p.err
}

func (p *recordingPublisher) PublishVitalsRecorded(_ context.Context, ev queue.VitalsRecordedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recorded = append(p.recorded, ev)
	return p.err
}
