package utils

import "github.com/go-redis/redis/v7"

// GetRedis connects to redis at addr, or localhost when addr is empty. The
// tracker degrades gracefully when redis is down, so no ping here.
func GetRedis(addr string) *redis.Client {
	if addr == "" {
		addr = "localhost:6379"
	}
	return redis.NewClient(&redis.Options{Addr: addr})
}
