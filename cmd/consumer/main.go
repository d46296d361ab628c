package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/rideflow/internal/config"
	"github.com/example/rideflow/internal/logging"
	"github.com/example/rideflow/internal/models"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rideflow_consumer_heartbeats_consumed_total",
		Help: "Total driver heartbeats consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rideflow_consumer_heartbeats_invalid_total",
		Help: "Total malformed heartbeats received",
	})
	redisUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rideflow_consumer_redis_updates_total",
		Help: "Total successful redis position updates",
	})
	redisErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rideflow_consumer_redis_errors_total",
		Help: "Total redis errors after retries",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, redisUpdates, redisErrors)
}

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("config load", "error", err)
		os.Exit(1)
	}

	brokers := cfg.KafkaBrokers
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	group := os.Getenv("KAFKA_GROUP")
	if group == "" {
		group = "rideflow-consumer"
	}
	redisAddr := cfg.RedisAddr
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	rc := redis.NewClient(&redis.Options{Addr: redisAddr, Password: cfg.RedisPassword})
	sink := &redisSink{c: rc}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: cfg.KafkaTopic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", brokers, "group", group)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Error("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		var hb models.Heartbeat
		if err := json.Unmarshal(m.Value, &hb); err != nil || hb.DriverID == "" {
			msgsInvalid.Inc()
			logger.Warn("invalid heartbeat", "error", err)
			continue
		}
		if hb.Recorded.IsZero() {
			hb.Recorded = time.Now()
		}

		if err := recordWithRetry(ctx, sink, cfg.RedisGeoKey, hb, 3, 200*time.Millisecond); err != nil {
			redisErrors.Inc()
			logger.Error("redis update failed", "driver", hb.DriverID, "error", err)
			continue
		}
		redisUpdates.Inc()
	}
}

// PositionSink is the subset of redis operations the consumer needs. It keeps
// the retry loop testable without a live server.
type PositionSink interface {
	GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error
	HSet(ctx context.Context, key string, values map[string]interface{}) error
}

type redisSink struct{ c *redis.Client }

func (r *redisSink) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	_, err := r.c.GeoAdd(ctx, key, loc).Result()
	return err
}

func (r *redisSink) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	_, err := r.c.HSet(ctx, key, values).Result()
	return err
}

// recordWithRetry writes a heartbeat to the shared geo set and the per-driver
// meta hash, retrying transient failures with doubling backoff. The key layout
// matches geo.RedisTracker so the server reads what the consumer writes.
func recordWithRetry(ctx context.Context, sink PositionSink, geoKey string, hb models.Heartbeat, attempts int, delay time.Duration) error {
	for i := 0; i < attempts; i++ {
		if err := sink.GeoAdd(ctx, geoKey, &redis.GeoLocation{Longitude: hb.Loc.Lon, Latitude: hb.Loc.Lat, Name: hb.DriverID}); err != nil {
			if i == attempts-1 {
				return err
			}
			time.Sleep(delay)
			delay *= 2
			continue
		}
		if err := sink.HSet(ctx, "driver:pos:"+hb.DriverID, map[string]interface{}{"recorded": hb.Recorded.Format(time.RFC3339)}); err != nil {
			if i == attempts-1 {
				return err
			}
			time.Sleep(delay)
			delay *= 2
			continue
		}
		return nil
	}
	return nil
}
