package storage

import (
	"context"
	"errors"

	"adslots/internal/domain/accesscontrol"
	"adslots/internal/domain/advertisements"
	"adslots/internal/domain/overrides"
	"adslots/internal/domain/paymentlogs"
	"adslots/internal/domain/pricing"
	"adslots/internal/domain/pushtokens"
	"adslots/internal/domain/slotbookings"
	"adslots/internal/domain/users"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Container holds the pool-backed repositories used outside the allocation
// unit of work.
type Container struct {
	pool       *pgxpool.Pool
	Users      users.Store
	Roles      accesscontrol.Store
	PushTokens pushtokens.Store
	PayLogs    paymentlogs.Store
}

func NewContainer(db *pgxpool.Pool) *Container {
	return &Container{
		pool:       db,
		Users:      users.NewRepository(db),
		Roles:      accesscontrol.NewRepository(db),
		PushTokens: pushtokens.NewRepository(db),
		PayLogs:    paymentlogs.NewRepository(db),
	}
}

// Tx is a tx-scoped set of repositories for one atomic allocation step.
type Tx struct {
	Advertisements advertisements.Store
	Bookings       slotbookings.Store
	Overrides      overrides.Store
	Pricing        pricing.Store
	PayLogs        paymentlogs.Store
}

// WithTx runs fn in a single database transaction. Any error from fn rolls
// back every write it made.
func (c *Container) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	if c.pool == nil {
		return errors.New("storage container has no pool")
	}

	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	if err := fn(&Tx{
		Advertisements: advertisements.NewRepository(tx),
		Bookings:       slotbookings.NewRepository(tx),
		Overrides:      overrides.NewRepository(tx),
		Pricing:        pricing.NewRepository(tx),
		PayLogs:        paymentlogs.NewRepository(tx),
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (c *Container) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}
