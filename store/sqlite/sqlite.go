// Package sqlite 基于 SQLite 的 Store 实现。
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/favbox/chainkit/store"
)

//go:embed schema.sql
var schemaSQL string

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
}

// Store SQLite 存储。
type Store struct {
	db *sql.DB
}

// Open 打开或创建 path 处的数据库并建表，可重复调用。
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}

	// SQLite 同一时刻只有一个写者
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Put(ctx context.Context, name, text string) (string, error) {
	if err := store.ValidateName(name); err != nil {
		return "", err
	}
	rev := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trees (name, text, revision, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			text = excluded.text,
			revision = excluded.revision,
			updated_at = excluded.updated_at`,
		name, text, rev, time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("sqlite put %s: %w", name, err)
	}
	return rev, nil
}

func (s *Store) Get(ctx context.Context, name string) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx, `SELECT text FROM trees WHERE name = ?`, name).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlite get %s: %w", name, err)
	}
	return text, nil
}

// Revision 返回 name 当前的修订号。
func (s *Store) Revision(ctx context.Context, name string) (string, error) {
	var rev string
	err := s.db.QueryRowContext(ctx, `SELECT revision FROM trees WHERE name = ?`, name).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	return rev, err
}

func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM trees WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("sqlite delete %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM trees ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite list: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ store.Store = (*Store)(nil)
