package repository

import (
	"context"
	"time"

	"github.com/iliyamo/medhome/internal/dbx"
	"github.com/iliyamo/medhome/internal/model"
)

// UserRepository persists accounts.
type UserRepository interface {
	Create(ctx context.Context, u *model.User) (uint64, error)
	GetByID(ctx context.Context, id uint64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	SetSerial(ctx context.Context, id uint64, serial *string) error
}

// DeviceRepository persists the device pool.  ClaimUnassigned is the
// atomic read-and-mark primitive behind pairing.
type DeviceRepository interface {
	Insert(ctx context.Context, serial string) (bool, error)
	CountUnassigned(ctx context.Context) (int, error)
	ClaimUnassigned(ctx context.Context, owner string) (string, error)
	GetBySerial(ctx context.Context, serial string) (*model.Device, error)
	GetByOwner(ctx context.Context, owner string) ([]model.Device, error)
	Unassign(ctx context.Context, serial string) (string, error)
}

// SessionRepository persists opaque session tokens.
type SessionRepository interface {
	Create(ctx context.Context, id string, userID uint64) error
	Get(ctx context.Context, id string) (*model.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// VitalsRepository persists the append-only daily readings.
type VitalsRepository interface {
	Append(ctx context.Context, rec *model.VitalsRecord) error
	ListRecent(ctx context.Context, owner string, limit int) ([]model.VitalsRecord, error)
}

// Manager vends repositories bound to either the pool or a transaction so
// services can compose several writes into one unit.
type Manager interface {
	Users(db dbx.DBTX) UserRepository
	Devices(db dbx.DBTX) DeviceRepository
	Sessions(db dbx.DBTX) SessionRepository
	Vitals(db dbx.DBTX) VitalsRepository
}

// MySQLManager is the Manager backed by the MySQL repositories.
type MySQLManager struct{}

// NewMySQLManager returns the MySQL-backed Manager.
func NewMySQLManager() *MySQLManager { return &MySQLManager{} }

func (MySQLManager) Users(db dbx.DBTX) UserRepository       { return NewUserRepo(db) }
func (MySQLManager) Devices(db dbx.DBTX) DeviceRepository   { return NewDeviceRepo(db) }
func (MySQLManager) Sessions(db dbx.DBTX) SessionRepository { return NewSessionRepo(db) }
func (MySQLManager) Vitals(db dbx.DBTX) VitalsRepository    { return NewVitalsRepo(db) }
