package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// applyEnv overrides cfg with any environment variables that are set.
func applyEnv(cfg *Config, logger zerolog.Logger) {
	setString(&cfg.Server.HTTPAddr, "CARBONAWARE_HTTP_ADDR")
	setString(&cfg.Server.GRPCAddr, "CARBONAWARE_GRPC_ADDR")
	setString(&cfg.Logging.Level, "CARBONAWARE_LOG_LEVEL")
	setString(&cfg.Logging.Format, "CARBONAWARE_LOG_FORMAT")

	if v := os.Getenv("CARBONAWARE_CARBON_INTENSITY_SOURCE"); v != "" {
		cfg.CarbonIntensity = SourceKind(strings.ToLower(v))
	}
	if v := os.Getenv("CARBONAWARE_COMPUTE_INVENTORY_SOURCE"); v != "" {
		cfg.ComputeInventory = SourceKind(strings.ToLower(v))
	}

	setString(&cfg.JSONFile.Path, "CARBONAWARE_JSON_PATH")
	setString(&cfg.JSONFile.Bucket.Endpoint, "CARBONAWARE_S3_ENDPOINT")
	setString(&cfg.JSONFile.Bucket.Bucket, "CARBONAWARE_S3_BUCKET")
	setString(&cfg.JSONFile.Bucket.Object, "CARBONAWARE_S3_OBJECT")
	setString(&cfg.JSONFile.Bucket.Region, "CARBONAWARE_S3_REGION")
	setString(&cfg.JSONFile.Bucket.AccessKey, "CARBONAWARE_S3_ACCESS_KEY")
	setString(&cfg.JSONFile.Bucket.SecretKey, "CARBONAWARE_S3_SECRET_KEY")
	setBool(&cfg.JSONFile.Bucket.UseSSL, "CARBONAWARE_S3_USE_SSL")

	setString(&cfg.WattTime.BaseURL, "CARBONAWARE_WATTTIME_BASE_URL")
	setString(&cfg.WattTime.Username, "CARBONAWARE_WATTTIME_USERNAME")
	setString(&cfg.WattTime.Password, "CARBONAWARE_WATTTIME_PASSWORD")

	setString(&cfg.Azure.SubscriptionID, "AZURE_SUBSCRIPTION_ID")
	setString(&cfg.Azure.ResourceGroup, "AZURE_RESOURCE_GROUP_NAME")
	setString(&cfg.Azure.TenantID, "AZURE_TENANT_ID")
	setString(&cfg.Azure.ClientID, "AZURE_CLIENT_ID")
	setString(&cfg.Azure.ClientSecret, "AZURE_CLIENT_SECRET")
	setString(&cfg.Azure.AccessToken, "AZURE_ACCESS_TOKEN")

	setString(&cfg.TelemetryDB.DSN, "CARBONAWARE_TELEMETRY_DSN")

	if v := os.Getenv("CARBONAWARE_REDIS_ADDR"); v != "" {
		cfg.Cache.Addr = v
		cfg.Cache.Enabled = true
	}
	setString(&cfg.Cache.Password, "CARBONAWARE_REDIS_PASSWORD")

	if origins := os.Getenv("CARBONAWARE_CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.CORS.AllowedOrigins = strings.Split(origins, ",")
	}
	setBool(&cfg.Server.CORS.AllowCredentials, "CARBONAWARE_CORS_ALLOW_CREDENTIALS")
	if maxAgeStr := os.Getenv("CARBONAWARE_CORS_MAX_AGE"); maxAgeStr != "" {
		if parsed, err := strconv.Atoi(maxAgeStr); err == nil && parsed >= 0 {
			cfg.Server.CORS.MaxAge = &parsed
		} else {
			logger.Warn().Str("value", maxAgeStr).Msg("invalid CARBONAWARE_CORS_MAX_AGE, using default")
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.EqualFold(v, "true")
	}
}
