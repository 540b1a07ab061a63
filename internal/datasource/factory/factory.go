// Package factory builds the configured data source variants and the
// decorators around them.
package factory

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/rshade/carbon-aware-sci/internal/config"
	"github.com/rshade/carbon-aware-sci/internal/datasource"
	"github.com/rshade/carbon-aware-sci/internal/datasource/azure"
	"github.com/rshade/carbon-aware-sci/internal/datasource/cache"
	"github.com/rshade/carbon-aware-sci/internal/datasource/jsonfile"
	"github.com/rshade/carbon-aware-sci/internal/datasource/telemetrydb"
	"github.com/rshade/carbon-aware-sci/internal/datasource/watttime"
	"github.com/rshade/carbon-aware-sci/internal/location"
	"github.com/rshade/carbon-aware-sci/internal/metrics"
)

// Deps are the shared collaborators handed to every variant.
type Deps struct {
	Logger zerolog.Logger

	// Metrics wraps every source with call counters when non-nil.
	Metrics *metrics.Metrics

	// HTTPClient is used by the REST variants; nil selects their default.
	HTTPClient *http.Client
}

// Sources holds the configured carbon intensity source and compute
// inventory. Close releases any connections they hold.
type Sources struct {
	Intensity datasource.CarbonIntensitySource
	Inventory datasource.ComputeInventory

	close func() error
}

// Close releases database and cache connections.
func (s *Sources) Close() error {
	return s.close()
}

// New builds both capabilities. When both are backed by the JSON dataset it
// is loaded once and shared.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*Sources, error) {
	b := &builder{cfg: cfg, deps: deps}

	intensity, err := b.intensity(ctx)
	if err != nil {
		_ = b.close()
		return nil, err
	}
	inventory, err := b.inventory(ctx)
	if err != nil {
		_ = b.close()
		return nil, err
	}

	return &Sources{Intensity: intensity, Inventory: inventory, close: b.close}, nil
}

// NewCarbonIntensitySource builds the configured carbon intensity source,
// wrapped with the Redis cache and metrics when enabled. The returned
// function releases its connections.
func NewCarbonIntensitySource(ctx context.Context, cfg *config.Config, deps Deps) (datasource.CarbonIntensitySource, func() error, error) {
	b := &builder{cfg: cfg, deps: deps}
	src, err := b.intensity(ctx)
	if err != nil {
		_ = b.close()
		return nil, nil, err
	}
	return src, b.close, nil
}

type builder struct {
	cfg     *config.Config
	deps    Deps
	dataset *jsonfile.Source
	closers []func() error
}

func (b *builder) close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}

func (b *builder) intensity(ctx context.Context) (datasource.CarbonIntensitySource, error) {
	var src datasource.CarbonIntensitySource

	switch b.cfg.CarbonIntensity {
	case config.KindJSON:
		ds, err := b.jsonSource(ctx)
		if err != nil {
			return nil, err
		}
		src = ds
	case config.KindWattTime:
		locations, err := location.DefaultCatalog()
		if err != nil {
			return nil, fmt.Errorf("failed to load location catalog: %w", err)
		}
		client, err := watttime.New(watttime.Config{
			BaseURL:    b.cfg.WattTime.BaseURL,
			Username:   b.cfg.WattTime.Username,
			Password:   b.cfg.WattTime.Password,
			HTTPClient: b.deps.HTTPClient,
		}, locations, b.deps.Logger)
		if err != nil {
			return nil, err
		}
		src = client
	default:
		return nil, fmt.Errorf("unknown carbon intensity source %q", b.cfg.CarbonIntensity)
	}

	if b.cfg.Cache.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     b.cfg.Cache.Addr,
			Password: b.cfg.Cache.Password,
			DB:       b.cfg.Cache.DB,
		})
		b.closers = append(b.closers, rdb.Close)
		src = cache.New(src, rdb, cache.Config{
			IntensityTTL: b.cfg.Cache.IntensityTTL,
			ForecastTTL:  b.cfg.Cache.ForecastTTL,
		}, b.deps.Logger)
	}

	if b.deps.Metrics != nil {
		src = datasource.NewInstrumentedSource(src, b.deps.Metrics, b.deps.Logger)
	}

	b.deps.Logger.Info().
		Str("source", src.Name()).
		Bool("cache_enabled", b.cfg.Cache.Enabled).
		Msg("carbon intensity source ready")
	return src, nil
}

func (b *builder) inventory(ctx context.Context) (datasource.ComputeInventory, error) {
	var inv datasource.ComputeInventory

	switch b.cfg.ComputeInventory {
	case config.KindJSON:
		ds, err := b.jsonSource(ctx)
		if err != nil {
			return nil, err
		}
		inv = ds
	case config.KindAzure:
		az, err := azure.New(azure.Config{
			ManagementURL:  b.cfg.Azure.ManagementURL,
			SubscriptionID: b.cfg.Azure.SubscriptionID,
			ResourceGroup:  b.cfg.Azure.ResourceGroup,
			HTTPClient:     b.deps.HTTPClient,
		}, b.azureTokens(), b.deps.Logger)
		if err != nil {
			return nil, err
		}
		inv = az
	case config.KindTelemetryDB:
		store, err := telemetrydb.Open(ctx, b.cfg.TelemetryDB.DSN, b.deps.Logger)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, store.Close)
		if b.cfg.TelemetryDB.EnsureSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				return nil, err
			}
		}
		inv = store
	default:
		return nil, fmt.Errorf("unknown compute inventory source %q", b.cfg.ComputeInventory)
	}

	if b.deps.Metrics != nil {
		inv = datasource.NewInstrumentedInventory(inv, b.deps.Metrics, b.deps.Logger)
	}

	b.deps.Logger.Info().Str("source", inv.Name()).Msg("compute inventory ready")
	return inv, nil
}

func (b *builder) azureTokens() azure.TokenProvider {
	if b.cfg.Azure.AccessToken != "" {
		return azure.StaticToken(b.cfg.Azure.AccessToken)
	}
	return &azure.ClientCredentials{
		AuthorityURL: b.cfg.Azure.AuthorityURL,
		TenantID:     b.cfg.Azure.TenantID,
		ClientID:     b.cfg.Azure.ClientID,
		ClientSecret: b.cfg.Azure.ClientSecret,
		HTTPClient:   b.deps.HTTPClient,
	}
}

// jsonSource loads the dataset on first use.
func (b *builder) jsonSource(ctx context.Context) (*jsonfile.Source, error) {
	if b.dataset != nil {
		return b.dataset, nil
	}

	jc := b.cfg.JSONFile
	var (
		ds  *jsonfile.Dataset
		err error
	)
	if jc.Bucket.Enabled() {
		var client *minio.Client
		client, err = minio.New(jc.Bucket.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(jc.Bucket.AccessKey, jc.Bucket.SecretKey, ""),
			Secure: jc.Bucket.UseSSL,
			Region: jc.Bucket.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create object storage client: %w", err)
		}
		ds, err = jsonfile.LoadObject(ctx, client, jc.Bucket.Bucket, jc.Bucket.Object)
	} else {
		ds, err = jsonfile.LoadFile(jc.Path)
	}
	if err != nil {
		return nil, err
	}

	b.dataset = jsonfile.New(ds, b.deps.Logger)
	return b.dataset, nil
}
