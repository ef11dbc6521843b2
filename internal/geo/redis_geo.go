package geo

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// PositionWriter is the subset of redis operations used to mirror positions.
type PositionWriter interface {
	GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error
	HSet(ctx context.Context, key string, values map[string]interface{}) error
}

type redisAdapter struct{ c *redis.Client }

func (r *redisAdapter) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	_, err := r.c.GeoAdd(ctx, key, loc).Result()
	return err
}

func (r *redisAdapter) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	_, err := r.c.HSet(ctx, key, values).Result()
	return err
}

// Redis GEO indexes only accept this latitude band (web mercator limits).
const (
	redisMaxLat = 85.05112878
	redisMaxLon = 180
)

// RedisPositions mirrors each user's latest position into a redis GEO set.
// Nothing is ever read back. Positions redis cannot index are left out of
// the GEO set; their last-active time is still written.
type RedisPositions struct {
	w        PositionWriter
	key      string
	attempts int
	delay    time.Duration
	closer   func() error
	skipped  int
}

func NewRedisPositions(addr, password, key string) *RedisPositions {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	p := NewPositions(&redisAdapter{c: c}, key)
	p.closer = c.Close
	return p
}

// NewPositions wraps an existing writer. Used directly by tests.
func NewPositions(w PositionWriter, key string) *RedisPositions {
	return &RedisPositions{w: w, key: key, attempts: 3, delay: 200 * time.Millisecond}
}

// WithRetry overrides the attempt count and initial backoff. At least one
// attempt is always made.
func (r *RedisPositions) WithRetry(attempts int, delay time.Duration) *RedisPositions {
	r.attempts = max(attempts, 1)
	r.delay = delay
	return r
}

// Skipped counts positions left out of the GEO set.
func (r *RedisPositions) Skipped() int { return r.skipped }

// Record stores the user's position and last-active time, retrying with
// exponential backoff.
func (r *RedisPositions) Record(ctx context.Context, username string, loc Location, lastActive int64) error {
	indexable := Indexable(loc)
	if !indexable {
		r.skipped++
	}
	delay := r.delay
	attempts := max(r.attempts, 1)
	var err error
	for i := 0; i < attempts; i++ {
		if err = r.write(ctx, username, loc, lastActive, indexable); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("mirror position for %s: %w", username, err)
}

func (r *RedisPositions) write(ctx context.Context, username string, loc Location, lastActive int64, indexable bool) error {
	if indexable {
		if err := r.w.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: loc.Lon, Latitude: loc.Lat, Name: username}); err != nil {
			return err
		}
	}
	return r.w.HSet(ctx, metaKey(username), map[string]interface{}{"last_active": strconv.FormatInt(lastActive, 10)})
}

func (r *RedisPositions) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

// Indexable reports whether redis GEOADD accepts loc. NaN fails both checks.
func Indexable(loc Location) bool {
	return math.Abs(loc.Lat) <= redisMaxLat && math.Abs(loc.Lon) <= redisMaxLon
}

func metaKey(username string) string { return "user:meta:" + username }
