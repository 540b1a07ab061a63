// Package cache is a read-through Redis cache in front of a carbon intensity
// source. It only stores upstream responses, with a TTL.
package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/rshade/carbon-aware-sci/internal/carbon"
	"github.com/rshade/carbon-aware-sci/internal/datasource"
)

const keyPrefix = "carbonaware"

// Redis is the subset of *redis.Client used by the cache.
type Redis interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Config sets the TTLs of cached entries.
type Config struct {
	IntensityTTL time.Duration
	ForecastTTL  time.Duration
}

// Source caches GetCarbonIntensity and GetCurrentForecast results. Cache
// failures are logged and fall through to the wrapped source.
type Source struct {
	next   datasource.CarbonIntensitySource
	redis  Redis
	cfg    Config
	logger zerolog.Logger
}

var _ datasource.CarbonIntensitySource = (*Source)(nil)

// New wraps next with a Redis cache. Zero TTLs default to 1h for intensity
// and 5m for forecasts.
func New(next datasource.CarbonIntensitySource, rdb Redis, cfg Config, logger zerolog.Logger) *Source {
	if cfg.IntensityTTL <= 0 {
		cfg.IntensityTTL = time.Hour
	}
	if cfg.ForecastTTL <= 0 {
		cfg.ForecastTTL = 5 * time.Minute
	}
	return &Source{
		next:   next,
		redis:  rdb,
		cfg:    cfg,
		logger: logger.With().Str("source", next.Name()).Str("component", "cache").Logger(),
	}
}

// Name returns the wrapped source's name.
func (s *Source) Name() string {
	return s.next.Name()
}

// GetCarbonIntensity implements datasource.CarbonIntensitySource.
func (s *Source) GetCarbonIntensity(ctx context.Context, locations []carbon.Location, start, end time.Time) ([]carbon.EmissionsData, error) {
	key := s.intensityKey(locations, start, end)

	var cached []carbon.EmissionsData
	if s.load(ctx, key, &cached) {
		return cached, nil
	}

	data, err := s.next.GetCarbonIntensity(ctx, locations, start, end)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, data, s.cfg.IntensityTTL)
	return data, nil
}

type cachedForecast struct {
	GeneratedAt  time.Time              `json:"generatedAt"`
	Location     string                 `json:"location"`
	ForecastData []carbon.EmissionsData `json:"forecastData"`
}

// GetCurrentForecast implements datasource.CarbonIntensitySource.
func (s *Source) GetCurrentForecast(ctx context.Context, location carbon.Location) (carbon.Forecast, error) {
	key := fmt.Sprintf("%s:forecast:%s:%s", keyPrefix, s.next.Name(), strings.ToLower(location.RegionName))

	var cached cachedForecast
	if s.load(ctx, key, &cached) {
		return carbon.Forecast{
			GeneratedAt:  cached.GeneratedAt,
			Location:     cached.Location,
			ForecastData: cached.ForecastData,
		}, nil
	}

	f, err := s.next.GetCurrentForecast(ctx, location)
	if err != nil {
		return carbon.Forecast{}, err
	}
	s.store(ctx, key, cachedForecast{
		GeneratedAt:  f.GeneratedAt,
		Location:     f.Location,
		ForecastData: f.ForecastData,
	}, s.cfg.ForecastTTL)
	return f, nil
}

func (s *Source) intensityKey(locations []carbon.Location, start, end time.Time) string {
	names := make([]string, len(locations))
	for i, l := range locations {
		names[i] = strings.ToLower(l.RegionName)
	}
	slices.Sort(names)
	return fmt.Sprintf("%s:intensity:%s:%s:%d:%d",
		keyPrefix, s.next.Name(), strings.Join(names, ","), start.Unix(), end.Unix())
}

func (s *Source) load(ctx context.Context, key string, out any) bool {
	raw, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
		return false
	}
	s.logger.Debug().Str("key", key).Msg("cache hit")
	return true
}

func (s *Source) store(ctx context.Context, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache encode failed")
		return
	}
	if err := s.redis.Set(ctx, key, raw, ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
