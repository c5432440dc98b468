package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bakkal/backoffice/internal/store"
)

const notifyChannel = "store_changes"

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Get(ctx context.Context, path string) (*store.Document, error) {
	collection, id, err := store.Split(path)
	if err != nil {
		return nil, err
	}
	var (
		raw     []byte
		updated time.Time
	)
	err = s.pool.QueryRow(ctx, `
		SELECT data, updated_at FROM documents WHERE collection = $1 AND id = $2
	`, collection, id).Scan(&raw, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	data, err := store.Decode(raw)
	if err != nil {
		return nil, err
	}
	return &store.Document{Path: path, ID: id, Data: data, UpdateTime: updated.UTC()}, nil
}

func (s *Store) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	b := s.Batch()
	b.Set(path, data, merge)
	return b.Commit(ctx)
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	b := s.Batch()
	b.Update(path, fields)
	return b.Commit(ctx)
}

func (s *Store) Delete(ctx context.Context, path string) error {
	b := s.Batch()
	b.Delete(path)
	return b.Commit(ctx)
}

func (s *Store) List(ctx context.Context, collection string, q store.Query) ([]store.Document, error) {
	where := []string{"collection = $1"}
	args := []any{collection}
	for _, f := range q.Where {
		if f.Value == nil {
			args = append(args, f.Field)
			n := len(args)
			where = append(where, fmt.Sprintf("(data -> $%d::text IS NULL OR data -> $%d::text = 'null'::jsonb)", n, n))
			continue
		}
		probe, err := json.Marshal(map[string]any{f.Field: f.Value})
		if err != nil {
			return nil, err
		}
		args = append(args, string(probe))
		where = append(where, fmt.Sprintf("data @> $%d::jsonb", len(args)))
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, data, updated_at FROM documents
		WHERE `+strings.Join(where, " AND "), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]store.Document, 0, 64)
	for rows.Next() {
		var (
			id      string
			raw     []byte
			updated time.Time
		)
		if err := rows.Scan(&id, &raw, &updated); err != nil {
			return nil, err
		}
		data, err := store.Decode(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, store.Document{
			Path:       store.Join(collection, id),
			ID:         id,
			Data:       data,
			UpdateTime: updated.UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return store.Arrange(docs, q), nil
}

func (s *Store) Batch() store.Batch {
	return &batch{store: s}
}

type batch struct {
	store.Ops
	store *Store
}

func (b *batch) Commit(ctx context.Context) error {
	if err := b.Validate(); err != nil {
		return err
	}
	tx, err := b.store.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var at time.Time
	if err := tx.QueryRow(ctx, "SELECT now()").Scan(&at); err != nil {
		return err
	}

	queued := &pgx.Batch{}
	touched := make([]string, 0, 4)
	seen := make(map[string]struct{})
	for _, op := range b.List {
		collection, id, _ := store.Split(op.Path)
		if _, ok := seen[collection]; !ok {
			seen[collection] = struct{}{}
			touched = append(touched, collection)
		}
		switch op.Kind {
		case store.OpSet, store.OpMerge, store.OpUpdate:
			data, err := store.Normalize(op.Data, at)
			if err != nil {
				return err
			}
			raw, err := json.Marshal(data)
			if err != nil {
				return err
			}
			switch op.Kind {
			case store.OpSet:
				queued.Queue(`
					INSERT INTO documents (collection, id, data, created_at, updated_at)
					VALUES ($1, $2, $3::jsonb, $4, $4)
					ON CONFLICT (collection, id)
					DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
				`, collection, id, string(raw), at)
			case store.OpMerge:
				queued.Queue(`
					INSERT INTO documents (collection, id, data, created_at, updated_at)
					VALUES ($1, $2, $3::jsonb, $4, $4)
					ON CONFLICT (collection, id)
					DO UPDATE SET data = documents.data || EXCLUDED.data, updated_at = EXCLUDED.updated_at
				`, collection, id, string(raw), at)
			default:
				queued.Queue(`
					UPDATE documents SET data = data || $3::jsonb, updated_at = $4
					WHERE collection = $1 AND id = $2
				`, collection, id, string(raw), at)
			}
		case store.OpDelete:
			queued.Queue(`DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
		case store.OpIncrement:
			queued.Queue(`
				INSERT INTO documents (collection, id, data, created_at, updated_at)
				VALUES ($1, $2, jsonb_build_object($3::text, $4::numeric), $5, $5)
				ON CONFLICT (collection, id)
				DO UPDATE SET
					data = documents.data || jsonb_build_object(
						$3::text,
						COALESCE(NULLIF(documents.data ->> $3::text, '')::numeric, 0) + $4::numeric
					),
					updated_at = EXCLUDED.updated_at
			`, collection, id, op.Field, op.Delta.String(), at)
		}
	}
	for _, collection := range touched {
		queued.Queue("SELECT pg_notify($1, $2)", notifyChannel, collection)
	}

	results := tx.SendBatch(ctx, queued)
	for _, op := range b.List {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return err
		}
		if op.Kind == store.OpUpdate && tag.RowsAffected() == 0 {
			_ = results.Close()
			return fmt.Errorf("%w: %s", store.ErrNotFound, op.Path)
		}
	}
	for range touched {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	if err := results.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Subscribe re-queries the collection on every change notification. The
// listening connection is re-acquired with backoff when it drops.
func (s *Store) Subscribe(ctx context.Context, collection string, q store.Query) (<-chan store.Snapshot, error) {
	ch := make(chan store.Snapshot, 1)
	go func() {
		defer close(ch)
		backoff := time.Second
		for ctx.Err() == nil {
			err := s.listen(ctx, collection, q, ch)
			if ctx.Err() != nil {
				return
			}
			log.Printf("[postgres-store] WARN: subscription on %s dropped: %v", collection, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()
	return ch, nil
}

func (s *Store) listen(ctx context.Context, collection string, q store.Query, ch chan store.Snapshot) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), "UNLISTEN "+notifyChannel)
	}()

	push := func() error {
		docs, err := s.List(ctx, collection, q)
		if err != nil {
			return err
		}
		store.Latest(ch, store.Snapshot{Collection: collection, Docs: docs, At: time.Now().UTC()})
		return nil
	}
	if err := push(); err != nil {
		return err
	}
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if n.Payload != collection {
			continue
		}
		if err := push(); err != nil {
			return err
		}
	}
}
