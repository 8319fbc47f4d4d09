package valkey

import (
	"context"
	"fmt"
	"time"

	scheduler "github.com/AzielCF/az-post/scheduler/domain"
	"github.com/google/uuid"
)

// Lua script for atomic lock release (only delete if token matches)
const releaseLockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Lock is a single-holder lease acquired with SET NX EX.
type Lock struct {
	client *Client
	key    string
	token  string
}

// TryLock attempts to take the lease once. It returns (nil, nil) when another holder owns it.
func (c *Client) TryLock(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	key := c.Key("lock", name)
	token := uuid.NewString()

	cmd := c.inner.B().Set().Key(key).Value(token).Nx().Ex(ttl).Build()
	if err := c.inner.Do(ctx, cmd).Error(); err != nil {
		if IsNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return &Lock{client: c, key: key, token: token}, nil
}

// Release drops the lease if it is still ours.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	inner := l.client.inner
	cmd := inner.B().Eval().Script(releaseLockScript).Numkeys(1).Key(l.key).Arg(l.token).Build()
	if err := inner.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Locker exposes TryLock as the scheduler's cross-instance tick guard.
type Locker struct {
	client *Client
}

func NewLocker(client *Client) *Locker {
	return &Locker{client: client}
}

func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (scheduler.Lease, error) {
	lock, err := l.client.TryLock(ctx, name, ttl)
	if err != nil || lock == nil {
		return nil, err
	}
	return lock, nil
}
