package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/eternalApril/moonlink/resp"
	"go.uber.org/zap"
)

// lockRetryInterval is the pause between two acquisition attempts
const lockRetryInterval = 100 * time.Millisecond

// errLockBusy marks an attempt that lost against another holder
var errLockBusy = errors.New("lock busy")

// LockOption overrides a lock default for one call
type LockOption func(*lockOptions)

type lockOptions struct {
	owner   string
	expire  time.Duration
	timeout time.Duration
}

// WithOwner sets the identity stored in the lock keys
func WithOwner(owner string) LockOption {
	return func(o *lockOptions) {
		o.owner = owner
	}
}

// WithExpire sets how long the lock keys live without a refresh
func WithExpire(expire time.Duration) LockOption {
	return func(o *lockOptions) {
		o.expire = expire
	}
}

// WithTimeout bounds how long acquisition keeps retrying.
// Zero makes a single attempt
func WithTimeout(timeout time.Duration) LockOption {
	return func(o *lockOptions) {
		o.timeout = timeout
	}
}

func (s *Session) lockOptions(id string, opts []LockOption) (lockOptions, error) {
	if id == "" {
		return lockOptions{}, ErrEmptyLockID
	}

	o := lockOptions{
		expire:  s.opts.LockExpire,
		timeout: s.opts.LockTimeout,
	}
	for _, fn := range opts {
		fn(&o)
	}

	if o.owner == "" {
		owner, err := s.opts.Owner()
		if err != nil {
			return lockOptions{}, fmt.Errorf("resolve lock owner: %w", err)
		}
		o.owner = owner
	}
	if o.expire <= 0 {
		o.expire = DefaultLockExpire
	}
	if o.timeout < 0 {
		o.timeout = 0
	}

	return o, nil
}

// seconds renders expire for EX/EXPIRE, which do not accept less than one second
func (o lockOptions) seconds() string {
	secs := int64(o.expire / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

func writeKey(id string) string { return id + ".writelock" }
func readKey(id string) string  { return id + ".readlock" }

// acquire runs attempt until it succeeds, fails hard, or the timeout runs out.
// attempt returns errLockBusy to ask for another round
func (s *Session) acquire(kind, id string, timeout time.Duration, attempt func() error) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	policy := backoff.WithContext(backoff.NewConstantBackOff(lockRetryInterval), ctx)

	op := func() error {
		err := attempt()
		if err == nil || errors.Is(err, errLockBusy) {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(_ error, wait time.Duration) {
		if s.log.Core().Enabled(zap.DebugLevel) {
			s.log.Debug("lock busy, retrying",
				zap.String("kind", kind),
				zap.String("id", id),
				zap.Duration("wait", wait),
			)
		}
	}

	err := backoff.RetryNotify(op, policy, notify)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errLockBusy), errors.Is(err, context.DeadlineExceeded):
		return false, nil
	}
	return false, err
}

// LockRead takes a shared lock on id. It reports false when a writer kept
// the lock for the whole timeout
func (s *Session) LockRead(id string, opts ...LockOption) (bool, error) {
	o, err := s.lockOptions(id, opts)
	if err != nil {
		return false, err
	}

	w, r := writeKey(id), readKey(id)

	return s.acquire("read", id, o.timeout, func() error {
		reply, err := s.Multi(func(tx *Session) error {
			if _, err := tx.Do("EXISTS", w); err != nil {
				return err
			}
			if _, err := tx.Do("SADD", r, o.owner); err != nil {
				return err
			}
			_, err := tx.Do("EXPIRE", r, o.seconds())
			return err
		})
		if err != nil {
			return err
		}

		results, err := execResults(reply, 3)
		if err != nil {
			return err
		}
		writer, err := results[0].Bool()
		if err != nil {
			return fmt.Errorf("read lock %s: %w", id, err)
		}
		if !writer {
			return nil
		}

		if _, err = s.call("SREM", r, o.owner); err != nil {
			return fmt.Errorf("read lock %s: rollback: %w", id, err)
		}
		return errLockBusy
	})
}

// LockReadRefresh renews the read lock expiry if owner holds it.
// It reports whether the lock was held
func (s *Session) LockReadRefresh(id string, opts ...LockOption) (bool, error) {
	o, err := s.lockOptions(id, opts)
	if err != nil {
		return false, err
	}

	r := readKey(id)
	held, err := s.isReader(r, o.owner)
	if err != nil || !held {
		return false, err
	}

	if _, err = s.call("EXPIRE", r, o.seconds()); err != nil {
		return false, fmt.Errorf("refresh read lock %s: %w", id, err)
	}
	return true, nil
}

// UnlockRead removes owner from the readers of id if it is one of them.
// It reports whether the lock was held
func (s *Session) UnlockRead(id string, opts ...LockOption) (bool, error) {
	o, err := s.lockOptions(id, opts)
	if err != nil {
		return false, err
	}

	r := readKey(id)
	held, err := s.isReader(r, o.owner)
	if err != nil || !held {
		return false, err
	}

	reply, err := s.Multi(func(tx *Session) error {
		if _, err := tx.Do("SREM", r, o.owner); err != nil {
			return err
		}
		_, err := tx.Do("EXPIRE", r, o.seconds())
		return err
	})
	if err != nil {
		return false, fmt.Errorf("unlock read %s: %w", id, err)
	}
	if _, err = execResults(reply, 2); err != nil {
		return false, fmt.Errorf("unlock read %s: %w", id, err)
	}
	return true, nil
}

// LockWrite takes the exclusive lock on id. It reports false when another
// writer or any reader kept the lock for the whole timeout
func (s *Session) LockWrite(id string, opts ...LockOption) (bool, error) {
	o, err := s.lockOptions(id, opts)
	if err != nil {
		return false, err
	}

	w, r := writeKey(id), readKey(id)

	return s.acquire("write", id, o.timeout, func() error {
		reply, err := s.Multi(func(tx *Session) error {
			if _, err := tx.Do("SET", w, o.owner, "NX", "EX", o.seconds()); err != nil {
				return err
			}
			_, err := tx.Do("EXISTS", r)
			return err
		})
		if err != nil {
			return err
		}

		results, err := execResults(reply, 2)
		if err != nil {
			return err
		}
		if err = results[0].Err(); err != nil {
			return fmt.Errorf("write lock %s: %w", id, err)
		}
		if results[0].IsNull {
			return errLockBusy
		}

		readers, err := results[1].Bool()
		if err != nil {
			return fmt.Errorf("write lock %s: %w", id, err)
		}
		if !readers {
			return nil
		}

		if _, err = s.call("DEL", w); err != nil {
			return fmt.Errorf("write lock %s: rollback: %w", id, err)
		}
		return errLockBusy
	})
}

// LockWriteRefresh renews the write lock expiry if owner holds it.
// It reports whether the lock was held
func (s *Session) LockWriteRefresh(id string, opts ...LockOption) (bool, error) {
	o, err := s.lockOptions(id, opts)
	if err != nil {
		return false, err
	}

	w := writeKey(id)
	held, err := s.isWriter(w, o.owner)
	if err != nil || !held {
		return false, err
	}

	if _, err = s.call("EXPIRE", w, o.seconds()); err != nil {
		return false, fmt.Errorf("refresh write lock %s: %w", id, err)
	}
	return true, nil
}

// UnlockWrite deletes the write lock if owner holds it.
// It reports whether the lock was held
func (s *Session) UnlockWrite(id string, opts ...LockOption) (bool, error) {
	o, err := s.lockOptions(id, opts)
	if err != nil {
		return false, err
	}

	w := writeKey(id)
	held, err := s.isWriter(w, o.owner)
	if err != nil || !held {
		return false, err
	}

	if _, err = s.call("DEL", w); err != nil {
		return false, fmt.Errorf("unlock write %s: %w", id, err)
	}
	return true, nil
}

func (s *Session) isReader(key, owner string) (bool, error) {
	reply, err := s.Do("SISMEMBER", key, owner)
	if err != nil {
		return false, err
	}
	return reply.Bool()
}

func (s *Session) isWriter(key, owner string) (bool, error) {
	reply, err := s.Do("GET", key)
	if err != nil {
		return false, err
	}
	holder, err := reply.Str()
	if errors.Is(err, resp.ErrNil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return holder == owner, nil
}

// execResults checks an EXEC reply carries n results
func execResults(reply resp.Value, n int) ([]resp.Value, error) {
	if reply.IsArray() && reply.IsNull {
		return nil, &ProtocolError{Msg: "transaction aborted", Reply: reply}
	}
	items, err := reply.Items()
	if err != nil {
		return nil, err
	}
	if len(items) != n {
		return nil, &ProtocolError{Msg: fmt.Sprintf("expected %d transaction results", n), Reply: reply}
	}
	return items, nil
}
