package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// sqlQueries holds the dialect-specific statements of a sqlBackend.
type sqlQueries struct {
	insert        string
	get           string
	replace       string
	touch         string
	delete        string
	deleteExpired string
}

// sqlBackend runs every statement on one pinned connection taken from db.
type sqlBackend struct {
	db          *sql.DB
	conn        *sql.Conn
	insertStmt  *sql.Stmt
	getStmt     *sql.Stmt
	replaceStmt *sql.Stmt
	touchStmt   *sql.Stmt
	deleteStmt  *sql.Stmt
	cleanupStmt *sql.Stmt
}

// newSQLBackend takes ownership of db: it is closed on failure and by Close.
func newSQLBackend(ctx context.Context, db *sql.DB, q sqlQueries) (*sqlBackend, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	b := &sqlBackend{db: db, conn: conn}

	stmts := []struct {
		dst   **sql.Stmt
		query string
		name  string
	}{
		{&b.insertStmt, q.insert, "insert"},
		{&b.getStmt, q.get, "get"},
		{&b.replaceStmt, q.replace, "replace"},
		{&b.touchStmt, q.touch, "touch"},
		{&b.deleteStmt, q.delete, "delete"},
		{&b.cleanupStmt, q.deleteExpired, "cleanup"},
	}
	for _, s := range stmts {
		stmt, err := conn.PrepareContext(ctx, s.query)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to prepare %s statement: %w", s.name, err)
		}
		*s.dst = stmt
	}

	return b, nil
}

func (b *sqlBackend) Insert(ctx context.Context, rec Record) error {
	res, err := b.insertStmt.ExecContext(ctx, rec.ID, rec.Payload, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	if n == 0 {
		return ErrKeyExists
	}
	return nil
}

func (b *sqlBackend) Get(ctx context.Context, id string) (*Record, error) {
	rec := &Record{ID: id}
	err := b.getStmt.QueryRowContext(ctx, id).Scan(&rec.Payload, &rec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return rec, nil
}

func (b *sqlBackend) Replace(ctx context.Context, rec Record) (bool, error) {
	res, err := b.replaceStmt.ExecContext(ctx, rec.Payload, rec.ExpiresAt, rec.ID)
	if err != nil {
		return false, fmt.Errorf("failed to update session: %w", err)
	}
	return affectedOne(res, "update session")
}

func (b *sqlBackend) Touch(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	res, err := b.touchStmt.ExecContext(ctx, expiresAt, id)
	if err != nil {
		return false, fmt.Errorf("failed to update session ttl: %w", err)
	}
	return affectedOne(res, "update session ttl")
}

func (b *sqlBackend) Delete(ctx context.Context, id string) (bool, error) {
	res, err := b.deleteStmt.ExecContext(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return affectedOne(res, "delete session")
}

func (b *sqlBackend) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := b.cleanupStmt.ExecContext(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired sessions: %w", err)
	}
	return n, nil
}

func (b *sqlBackend) Close() error {
	for _, stmt := range []*sql.Stmt{
		b.insertStmt, b.getStmt, b.replaceStmt, b.touchStmt, b.deleteStmt, b.cleanupStmt,
	} {
		if stmt != nil {
			stmt.Close()
		}
	}
	if b.conn != nil {
		b.conn.Close()
	}
	return b.db.Close()
}

// affectedOne reports whether a keyed statement touched its row. The id is
// the primary key, so more than one row can only mean a broken schema.
func affectedOne(res sql.Result, what string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", what, err)
	}
	if n > 1 {
		return false, fmt.Errorf("failed to %s: %d rows matched one id", what, n)
	}
	return n == 1, nil
}
