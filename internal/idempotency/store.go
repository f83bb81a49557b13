package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/backoffice-ledger/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound      = errors.New("idempotency key not found")
	ErrHashMismatch  = errors.New("idempotency key reused with a different request")
	ErrOwnerMismatch = errors.New("idempotency key belongs to another caller")
	ErrInProgress    = errors.New("idempotency key in progress")
)

const defaultPollInterval = 50 * time.Millisecond

// Request identifies one keyed mutation. Owner is the authenticated account
// id and is empty on routes that run without auth.
type Request struct {
	Key    string
	Owner  string
	Hash   string
	Method string
	Path   string
}

// Response is the handler outcome recorded against a key.
type Response struct {
	Status      int
	Body        []byte
	ContentType string
}

// Record is a completed response together with the tier that served it.
type Record struct {
	Request
	Response
	ServedBy string
}

// matches rejects a stored request that was made by another owner or with a
// different payload. The owner is checked first so a foreign key never leaks
// whether the payloads match.
func (r Request) matches(stored Request) error {
	if stored.Owner != r.Owner {
		return ErrOwnerMismatch
	}
	if stored.Hash != r.Hash {
		return ErrHashMismatch
	}
	return nil
}

// Store keeps keyed responses in Postgres. Completed responses are also
// cached in Redis so replays skip the database.
type Store struct {
	db    *pgxpool.Pool
	cache *responseCache
	poll  time.Duration
}

func NewStore(rdb redis.Cmdable, db *pgxpool.Pool, ttl time.Duration) *Store {
	return &Store{db: db, cache: newResponseCache(rdb, ttl), poll: defaultPollInterval}
}

// Lookup returns the completed response for req.Key. It fails with
// ErrNotFound for an unused key, ErrInProgress while the first request is
// still running, and ErrOwnerMismatch or ErrHashMismatch when req does not
// match the request that claimed the key.
func (s *Store) Lookup(ctx context.Context, req Request) (*Record, error) {
	if rec, ok := s.cache.get(ctx, req.Key); ok {
		if err := req.matches(rec.Request); err != nil {
			return nil, err
		}
		return rec, nil
	}

	row, err := repository.New(s.db).GetIdempotencyKey(ctx, req.Key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}

	rec := recordFromRow(row)
	if err := req.matches(rec.Request); err != nil {
		return nil, err
	}
	if row.InProgress {
		return nil, ErrInProgress
	}
	s.cache.put(ctx, rec)
	return &rec, nil
}

// Reserve claims req.Key. It returns false when the key is already claimed.
func (s *Store) Reserve(ctx context.Context, req Request) (bool, error) {
	_, err := repository.New(s.db).ReserveIdempotencyKey(ctx, repository.ReserveIdempotencyKeyParams{
		IdempotencyKey: req.Key,
		AccountID:      req.Owner,
		RequestHash:    req.Hash,
		Method:         req.Method,
		Path:           req.Path,
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	default:
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
}

// Finalize stores resp against a key reserved by req and caches it.
func (s *Store) Finalize(ctx context.Context, req Request, resp Response) (*Record, error) {
	row, err := repository.New(s.db).FinalizeIdempotencyKey(ctx, repository.FinalizeIdempotencyKeyParams{
		ResponseStatus: int32(resp.Status),
		ResponseBody:   resp.Body,
		ContentType:    resp.ContentType,
		IdempotencyKey: req.Key,
		AccountID:      req.Owner,
		RequestHash:    req.Hash,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finalize idempotency key: %w", err)
	}

	rec := recordFromRow(row)
	s.cache.put(ctx, rec)
	return &rec, nil
}

// Release drops an in-flight reservation made by req so the key can be
// retried after a server error.
func (s *Store) Release(ctx context.Context, req Request) error {
	if _, err := repository.New(s.db).ReleaseIdempotencyKey(ctx, repository.ReleaseIdempotencyKeyParams{
		IdempotencyKey: req.Key,
		AccountID:      req.Owner,
		RequestHash:    req.Hash,
	}); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// Sweep deletes completed records last updated before the cutoff.
func (s *Store) Sweep(ctx context.Context, before time.Time) (int64, error) {
	deleted, err := repository.New(s.db).DeleteExpiredIdempotencyKeys(ctx, repository.ToPgTimestamptz(before))
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}
	return deleted, nil
}

// WaitForCompletion polls until the request holding req.Key finishes or ctx
// is done.
func (s *Store) WaitForCompletion(ctx context.Context, req Request) (*Record, error) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		rec, err := s.Lookup(ctx, req)
		if !errors.Is(err, ErrInProgress) {
			return rec, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func recordFromRow(row repository.IdempotencyKey) Record {
	return Record{
		Request: Request{
			Key:    row.IdempotencyKey,
			Owner:  row.AccountID,
			Hash:   row.RequestHash,
			Method: row.Method,
			Path:   row.Path,
		},
		Response: Response{
			Status:      int(row.ResponseStatus),
			Body:        row.ResponseBody,
			ContentType: row.ContentType,
		},
		ServedBy: "postgres",
	}
}
