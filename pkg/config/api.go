package config

import "time"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment        string
	Addr               string
	DatabaseURL        string
	MigrationsDir      string
	JWTSecret          string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	ServiceToken       string
	ArtifactBaseURL    string
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
	FleetCallTimeout   time.Duration
	FleetWorkers       int
	MeteringInterval   time.Duration
	TrafficRateWindow  time.Duration
	WSBuffer           int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":4000"),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://hullhost:hullhost@db:5432/hullhost?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		JWTSecret:          GetString("JWT_SECRET", "supersecuresecret"),
		AccessTokenTTL:     time.Duration(GetInt("ACCESS_TOKEN_TTL_MIN", 15)) * time.Minute,
		RefreshTokenTTL:    time.Duration(GetInt("REFRESH_TOKEN_TTL_HOURS", 24)) * time.Hour,
		ServiceToken:       GetString("SERVICE_TOKEN", ""),
		ArtifactBaseURL:    GetString("ARTIFACT_BASE_URL", "https://artifacts.hullhost.dev"),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
		FleetCallTimeout:   time.Duration(GetInt("FLEET_CALL_TIMEOUT_MS", 2000)) * time.Millisecond,
		FleetWorkers:       GetInt("FLEET_VIEW_WORKERS", 4),
		MeteringInterval:   time.Duration(GetInt("METERING_INTERVAL_SECONDS", 60)) * time.Second,
		TrafficRateWindow:  time.Duration(GetInt("TRAFFIC_RATE_WINDOW_SECONDS", 10)) * time.Second,
		WSBuffer:           GetInt("WS_EVENT_BUFFER", 100),
	}
}
