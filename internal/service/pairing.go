package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/medhome/internal/dbx"
	"github.com/iliyamo/medhome/internal/model"
	"github.com/iliyamo/medhome/internal/queue"
	"github.com/iliyamo/medhome/internal/repository"
)

// SignupInput carries the signup form.  Field names follow the web form.
type SignupInput struct {
	Username  string `json:"user" form:"user"`
	FirstName string `json:"fname" form:"fname"`
	LastName  string `json:"lname" form:"lname"`
	Email     string `json:"email" form:"email"`
	Password  string `json:"password" form:"password"`
}

func (in *SignupInput) normalize() error {
	in.Username = strings.TrimSpace(in.Username)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	var missing []string
	for name, v := range map[string]string{
		"user": in.Username, "fname": in.FirstName, "lname": in.LastName,
		"email": in.Email, "password": in.Password,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %d required field(s) empty", ErrInvalidInput, len(missing))
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return fmt.Errorf("%w: email", ErrInvalidInput)
	}
	return nil
}

// Pairing creates accounts.  Every account is created together with the
// claim of one device; an account never exists without one.
type Pairing struct {
	db     *sql.DB
	repos  repository.Manager
	inv    *Inventory
	cred   *Credential
	events EventPublisher
	now    func() time.Time
	log    *zap.Logger
}

// NewPairing returns a Pairing service.
func NewPairing(db *sql.DB, repos repository.Manager, inv *Inventory, cred *Credential, events EventPublisher, log *zap.Logger) *Pairing {
	return &Pairing{
		db:     db,
		repos:  repos,
		inv:    inv,
		cred:   cred,
		events: events,
		now:    time.Now,
		log:    log.Named("pairing"),
	}
}

// Signup creates the user, claims one free device and links it, all in one
// transaction.  When no device is free the transaction is rolled back and
// ErrNoDeviceAvailable is returned; no user row remains.  A taken username
// or email yields ErrConflict.
func (p *Pairing) Signup(ctx context.Context, in SignupInput) (*model.User, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	exists, err := p.repos.Users(p.db).ExistsByUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrConflict
	}

	hash, err := p.cred.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		Username:     in.Username,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		PasswordHash: hash,
	}
	err = dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		users := p.repos.Users(tx)
		id, err := users.Create(ctx, u)
		if err != nil {
			return err
		}
		serial, err := p.inv.ClaimUnassigned(ctx, tx, u.Username)
		if err != nil {
			return err
		}
		if err := users.SetSerial(ctx, id, &serial); err != nil {
			return err
		}
		u.ID = id
		u.SerialNum = &serial
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.log.Info("user paired", zap.String("username", u.Username), zap.String("serial", u.Serial()))
	if err := p.events.PublishDeviceClaimed(ctx, queue.DeviceClaimedEvent{
		UserID:    u.ID,
		Username:  u.Username,
		SerialNum: u.Serial(),
		ClaimedAt: p.now().UTC().Format(time.RFC3339),
	}); err != nil {
		p.log.Warn("publish device.claimed failed", zap.String("username", u.Username), zap.Error(err))
	}
	return u, nil
}
