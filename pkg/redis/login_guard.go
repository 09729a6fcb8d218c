package redis

import (
	"context"
	"errors"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaRecordFailure increments the failure counter and starts its TTL on the
// first failure, so the lockout window does not slide with every attempt.
const luaRecordFailure = `
local key = KEYS[1]
local ttlSec = tonumber(ARGV[1])

local n = redis.call('INCR', key)
if n == 1 then
  redis.call('EXPIRE', key, ttlSec)
end
return n
`

// LoginGuard locks a username out after too many failed logins.
type LoginGuard struct {
	rdb         *rd.Client
	maxFailures int64
	window      time.Duration
}

func NewLoginGuard(rdb *rd.Client, maxFailures int64, window time.Duration) *LoginGuard {
	return &LoginGuard{rdb: rdb, maxFailures: maxFailures, window: window}
}

// Locked reports whether the username has reached the failure limit.
func (g *LoginGuard) Locked(ctx context.Context, username string) (bool, error) {
	n, err := g.rdb.Get(ctx, LoginFailureKey(username)).Int64()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return false, nil
		}
		return false, err
	}
	return n >= g.maxFailures, nil
}

// RecordFailure returns the failure count inside the current window.
func (g *LoginGuard) RecordFailure(ctx context.Context, username string) (int64, error) {
	ttlSec := int64(g.window / time.Second)
	if ttlSec <= 0 {
		ttlSec = 1
	}
	return g.rdb.Eval(ctx, luaRecordFailure, []string{LoginFailureKey(username)}, ttlSec).Int64()
}

// Reset clears the counter after a successful login.
func (g *LoginGuard) Reset(ctx context.Context, username string) error {
	return g.rdb.Del(ctx, LoginFailureKey(username)).Err()
}
