package geo

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/rideflow/internal/models"
)

// RedisTracker implements Tracker on Redis GEO commands so the server and the
// heartbeat consumer share one position view.
type RedisTracker struct {
	client *redis.Client
	key    string
	ctx    context.Context
}

func NewRedisTracker(addr, password, key string) *RedisTracker {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisTracker{client: c, key: key, ctx: context.Background()}
}

func (r *RedisTracker) Record(hb models.Heartbeat) {
	_, _ = r.client.GeoAdd(r.ctx, r.key, &redis.GeoLocation{
		Longitude: hb.Loc.Lon,
		Latitude:  hb.Loc.Lat,
		Name:      hb.DriverID,
	}).Result()
	_ = r.client.HSet(r.ctx, metaKey(hb.DriverID), map[string]interface{}{
		"recorded": hb.Recorded.Format(time.RFC3339),
	}).Err()
}

func (r *RedisTracker) Last(driverID string) (models.Heartbeat, bool) {
	pos, err := r.client.GeoPos(r.ctx, r.key, driverID).Result()
	if err != nil || len(pos) == 0 || pos[0] == nil {
		return models.Heartbeat{}, false
	}
	hb := models.Heartbeat{DriverID: driverID}
	hb.Loc.Lat = pos[0].Latitude
	hb.Loc.Lon = pos[0].Longitude
	if m, err := r.client.HGetAll(r.ctx, metaKey(driverID)).Result(); err == nil {
		if v, ok := m["recorded"]; ok {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				hb.Recorded = ts
			}
		}
	}
	return hb, true
}

func metaKey(id string) string { return "driver:pos:" + id }
