package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/medhome/internal/dbx"
	"github.com/iliyamo/medhome/internal/model"
	"github.com/iliyamo/medhome/internal/repository"
)

// maxSerialCollisions bounds TopUp when freshly generated serials keep
// colliding with existing ones.
const maxSerialCollisions = 16

// Inventory manages the pool of devices and their ownership.
type Inventory struct {
	db     *sql.DB
	repos  repository.Manager
	prefix string
	log    *zap.Logger
}

// NewInventory returns an Inventory.  Serials are generated as
// "<prefix>-XXXXXXXX".
func NewInventory(db *sql.DB, repos repository.Manager, prefix string, log *zap.Logger) *Inventory {
	if prefix == "" {
		prefix = "MH"
	}
	return &Inventory{db: db, repos: repos, prefix: prefix, log: log.Named("inventory")}
}

// NewSerial returns prefix + "-" + the first eight hex digits of a random
// UUID, upper-cased.
func NewSerial(prefix string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "-" + strings.ToUpper(hex[:8])
}

// GenerateSerial returns a fresh candidate serial.  Uniqueness is checked
// when the serial is stocked.
func (i *Inventory) GenerateSerial() string {
	return NewSerial(i.prefix)
}

// Stock adds unowned devices.  Serials that already exist are left alone
// and not counted.
func (i *Inventory) Stock(ctx context.Context, serials []string) (int, error) {
	devices := i.repos.Devices(i.db)
	added := 0
	for _, s := range serials {
		s = strings.TrimSpace(s)
		if s == "" {
			return added, fmt.Errorf("%w: empty serial", ErrInvalidInput)
		}
		ok, err := devices.Insert(ctx, s)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// TopUp generates and stocks devices until at least minFree of them are
// unowned.  It returns how many were added.
func (i *Inventory) TopUp(ctx context.Context, minFree int) (int, error) {
	free, err := i.repos.Devices(i.db).CountUnassigned(ctx)
	if err != nil {
		return 0, err
	}

	added, collisions := 0, 0
	for free+added < minFree {
		serial := i.GenerateSerial()
		n, err := i.Stock(ctx, []string{serial})
		if err != nil {
			return added, err
		}
		if n == 0 {
			collisions++
			if collisions > maxSerialCollisions {
				return added, fmt.Errorf("top up: %d serial collisions", collisions)
			}
			continue
		}
		added++
		i.log.Info("device stocked", zap.String("serial", serial))
	}
	return added, nil
}

// ClaimUnassigned assigns one unowned device to owner and returns its
// serial.  db must be the transaction that also creates the owner so a
// failed signup leaves the device free.  ErrNoDeviceAvailable is returned
// when the pool is empty.
func (i *Inventory) ClaimUnassigned(ctx context.Context, db dbx.DBTX, owner string) (string, error) {
	return i.repos.Devices(db).ClaimUnassigned(ctx, owner)
}

// LookupOwner returns the username owning serial.  Unknown and unowned
// serials yield ErrNotFound.
func (i *Inventory) LookupOwner(ctx context.Context, serial string) (string, error) {
	d, err := i.repos.Devices(i.db).GetBySerial(ctx, serial)
	if err != nil {
		return "", err
	}
	if !d.Claimed() {
		return "", ErrNotFound
	}
	return *d.Owner, nil
}

// Release unpairs the device held by u.  The user's recorded serial must
// still be owned by u; otherwise ErrNotFound is returned and nothing
// changes.  It returns the released serial.
func (i *Inventory) Release(ctx context.Context, u *model.User) (string, error) {
	if u == nil || u.SerialNum == nil {
		return "", ErrNotFound
	}
	serial := *u.SerialNum
	owner, err := i.LookupOwner(ctx, serial)
	if err != nil {
		return "", err
	}
	if owner != u.Username {
		return "", ErrNotFound
	}
	if err := i.Unassign(ctx, serial); err != nil {
		return "", err
	}
	return serial, nil
}

// Unassign returns serial to the free pool and clears the former owner's
// serial in the same transaction.  Unassigning a free device is a no-op.
func (i *Inventory) Unassign(ctx context.Context, serial string) error {
	return dbx.WithTx(ctx, i.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		owner, err := i.repos.Devices(tx).Unassign(ctx, serial)
		if err != nil {
			return err
		}
		if owner == "" {
			return nil
		}
		users := i.repos.Users(tx)
		u, err := users.GetByUsername(ctx, owner)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := users.SetSerial(ctx, u.ID, nil); err != nil {
			return err
		}
		i.log.Info("device unassigned", zap.String("serial", serial), zap.String("owner", owner))
		return nil
	})
}
