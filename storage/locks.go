package storage

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"

	"github.com/go-pg/pg/v10"
	"github.com/go-pg/pg/v10/orm"
	"golang.org/x/xerrors"
)

var ErrLockNotAcquired = errors.New("advisory lock not acquired")

// SchemaLock guards schema migrations.
const SchemaLock AdvisoryLock = 7_501_000

type queryer interface {
	QueryOneContext(ctx context.Context, model, query interface{}, params ...interface{}) (orm.Result, error)
}

// An AdvisoryLock is a lock that is managed by Postgres but is only enforced by the application. Advisory
// locks are automatically released at the end of a session. It is safe to hold both a shared and exclusive
// lock within a single session.
type AdvisoryLock int64

// IndexerLock returns the lock held by the single writer of a contract's event stream.
func IndexerLock(contract string) AdvisoryLock {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(contract)))
	return AdvisoryLock(int64(SchemaLock) + 1 + int64(h.Sum32()))
}

// LockExclusive tries to acquire a session scoped exclusive advisory lock.
func (l AdvisoryLock) LockExclusive(ctx context.Context, db queryer) error {
	var acquired bool
	_, err := db.QueryOneContext(ctx, pg.Scan(&acquired), `SELECT pg_try_advisory_lock(?);`, int64(l))
	if err != nil {
		return xerrors.Errorf("acquiring exclusive lock: %w", err)
	}
	if !acquired {
		return xerrors.Errorf("exclusive lock %d: %w", int64(l), ErrLockNotAcquired)
	}
	return nil
}

// UnlockExclusive releases an exclusive advisory lock.
func (l AdvisoryLock) UnlockExclusive(ctx context.Context, db queryer) error {
	var released bool
	_, err := db.QueryOneContext(ctx, pg.Scan(&released), `SELECT pg_advisory_unlock(?);`, int64(l))
	if err != nil {
		return xerrors.Errorf("unlocking exclusive lock: %w", err)
	}
	if !released {
		return xerrors.Errorf("exclusive lock not released (maybe it was not held)")
	}
	return nil
}

// A SessionLocker holds an exclusive advisory lock on a dedicated connection so the lock survives for as long as
// the job that acquired it.
type SessionLocker struct {
	db   *Database
	lock AdvisoryLock
	conn *pg.Conn
}

// NewLocker returns a locker for the given advisory lock. The database must be connected before Lock is called.
func (d *Database) NewLocker(lock AdvisoryLock) *SessionLocker {
	return &SessionLocker{
		db:   d,
		lock: lock,
	}
}

func (s *SessionLocker) Lock(ctx context.Context) error {
	if s.db.db == nil {
		return ErrNotConnected
	}
	if s.conn != nil {
		return nil
	}
	conn := s.db.db.Conn()
	if err := s.lock.LockExclusive(ctx, conn); err != nil {
		_ = conn.Close()
		return err
	}
	s.conn = conn
	return nil
}

func (s *SessionLocker) Unlock(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	err := s.lock.UnlockExclusive(ctx, s.conn)
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	s.conn = nil
	return err
}
