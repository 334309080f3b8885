// Package bunstore provides an alternate store.Driver built on the bun ORM
// over its native pgdriver. It mirrors the sqlx driver's semantics so either
// backend can serve the same repositories.
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/kingsalliance/bidbot/internal/clock"
	"github.com/kingsalliance/bidbot/internal/config"
	"github.com/kingsalliance/bidbot/internal/store"
)

func init() {
	store.Register("bun", openBun)
}

// openBun is the store.Driver for the "bun" backend.
func openBun(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &store.Repositories{
		Clans:    NewClanRepo(db, clk),
		Recruits: NewRecruitRepo(db),
		Auctions: NewAuctionRepo(db, clk),
		Sessions: NewSessionRepo(db),
		Events:   NewEventStore(db),
		Closer:   db,
		Ping:     db.PingContext,
	}, nil
}

// Connect opens and verifies a bun.DB over pgdriver.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*bun.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN())))
	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// failure surfaced by pgdriver.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}
