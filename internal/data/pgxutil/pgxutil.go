// Package pgxutil bridges the database/sql pool to native pgx connections.
//
// The audit store pools connections through database/sql but issues its
// queries with pgx-native types, so it borrows the raw *pgx.Conn from the
// stdlib driver for the duration of each call.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// WithPgxConn checks a connection out of db, unwraps the underlying
// *pgx.Conn, and runs fn with it. The connection returns to the pool when
// fn finishes, so fn must not retain the conn.
func WithPgxConn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("checkout conn: %w", err)
	}
	defer conn.Close() //nolint:errcheck // pool close failure has no caller remedy

	return conn.Raw(func(driverConn any) error {
		bridged, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return errors.New("driver connection is not *stdlib.Conn")
		}
		return fn(bridged.Conn())
	})
}
