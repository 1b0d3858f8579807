package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaMarkOnce 通过 SETNX 保证同一个 key 只被首个调用方占到。
const luaMarkOnce = `
local key = KEYS[1]
local token = ARGV[1]
local ttlSec = tonumber(ARGV[2])

if redis.call('SETNX', key, token) == 1 then
  redis.call('EXPIRE', key, ttlSec)
  return 1
end
return 0
`

// luaReleaseIfMatch 仅当值等于 token 时才删除，避免误删别人的标记。
const luaReleaseIfMatch = `
local key = KEYS[1]
local token = ARGV[1]
if redis.call('GET', key) == token then
  return redis.call('DEL', key)
end
return 0
`

// Once 用于消费端去重：Kafka 至少一次投递，同一事件可能到达多次。
type Once struct {
	rdb *rd.Client
	ttl time.Duration
}

func NewOnce(rdb *rd.Client, ttl time.Duration) *Once {
	return &Once{rdb: rdb, ttl: ttl}
}

// Mark 首次标记返回 true，重复标记返回 false。
func (o *Once) Mark(ctx context.Context, key, token string) (bool, error) {
	ttlSec := int64(o.ttl / time.Second)
	if ttlSec < 1 {
		ttlSec = 1
	}
	n, err := o.rdb.Eval(ctx, luaMarkOnce, []string{key}, token, ttlSec).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Release 处理失败时撤销自己的标记，让重投可以再试。
func (o *Once) Release(ctx context.Context, key, token string) error {
	_, err := o.rdb.Eval(ctx, luaReleaseIfMatch, []string{key}, token).Int()
	return err
}
