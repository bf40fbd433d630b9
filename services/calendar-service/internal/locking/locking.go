package locking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrBusy is returned when a lease is still held by another owner after the wait budget.
var ErrBusy = errors.New("lease held by another owner")

// Locker grants short-lived exclusive leases on string keys.
type Locker interface {
	TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) error
}

type Options struct {
	TTL  time.Duration
	Wait time.Duration
	Poll time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 30 * time.Second
	}
	if o.Wait < 0 {
		o.Wait = 0
	}
	if o.Poll <= 0 {
		o.Poll = 50 * time.Millisecond
	}
	return o
}

// Lease is a set of keys held by one owner.
type Lease struct {
	locker Locker
	owner  string
	keys   []string
}

// Release frees every key of the lease. It is safe to call on a nil Lease.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	var errs []error
	for i := len(l.keys) - 1; i >= 0; i-- {
		if err := l.locker.Release(ctx, l.keys[i], l.owner); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", l.keys[i], err))
		}
	}
	return errors.Join(errs...)
}

// Acquire takes all keys in sorted order, polling each until it is free or opts.Wait runs out.
// On failure every key already taken is released.
func Acquire(ctx context.Context, locker Locker, keys []string, opts Options) (*Lease, error) {
	opts = opts.withDefaults()
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	lease := &Lease{locker: locker, owner: uuid.NewString()}
	deadline := time.Now().Add(opts.Wait)
	for _, key := range sorted {
		if len(lease.keys) > 0 && lease.keys[len(lease.keys)-1] == key {
			continue
		}
		if err := acquireOne(ctx, locker, key, lease.owner, opts, deadline); err != nil {
			_ = lease.Release(context.WithoutCancel(ctx))
			return nil, err
		}
		lease.keys = append(lease.keys, key)
	}
	return lease, nil
}

func acquireOne(ctx context.Context, locker Locker, key, owner string, opts Options, deadline time.Time) error {
	for {
		ok, err := locker.TryAcquire(ctx, key, owner, opts.TTL)
		if err != nil {
			return fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("acquire %s: %w", key, ErrBusy)
		}
		timer := time.NewTimer(opts.Poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// WindowKeys returns one key per bucket that [start, end) touches.
func WindowKeys(prefix string, start, end time.Time, bucket time.Duration) []string {
	if bucket <= 0 {
		bucket = time.Hour
	}
	if !end.After(start) {
		end = start.Add(time.Nanosecond)
	}
	first := start.UTC().Truncate(bucket)
	last := end.Add(-time.Nanosecond).UTC().Truncate(bucket)
	var keys []string
	for b := first; !b.After(last); b = b.Add(bucket) {
		keys = append(keys, prefix+":"+b.Format(time.RFC3339))
	}
	return keys
}
