package rate

import "errors"

// ErrRedisUnavailable wraps counter store failures from RedisStore.
var ErrRedisUnavailable = errors.New("redis unavailable")
