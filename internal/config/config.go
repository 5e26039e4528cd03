package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App      AppConfig
	Server   ServerConfig
	Upstream UpstreamConfig
	Redis    RedisConfig
	Lifecycle LifecycleConfig
	Billing  BillingConfig
	Security SecurityConfig
	Media    MediaConfig
}

type AppConfig struct {
	Name        string
	Version     string
	Environment string
	Port        string
	Debug       bool
	LoginURL    string // where unauthenticated clients are sent (with a return path)
}

type ServerConfig struct {
	HTTP      HTTPConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
}

type HTTPConfig struct {
	Port         string
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	PingPeriod      time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageSize  int64
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// UpstreamConfig points at the authoritative consultation backend.
type UpstreamConfig struct {
	BaseURL        string
	WebSocketURL   string // push status channel; empty means polling only
	APIKey         string
	RequestTimeout time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

// LifecycleConfig tunes the request state machine timers.
type LifecycleConfig struct {
	PollInterval     time.Duration // status poll cadence while non-terminal
	CountdownSeconds int           // cosmetic waiting countdown, resets on re-entry
	RequestTTL       time.Duration // persisted request state expiry
	TypingQuiet      time.Duration // debounce window for typing indicators
	CostTick         time.Duration // call duration/cost ticker cadence
}

// BillingConfig holds the client-side gating parameters. The backend owns
// all real billing; these only shape what the gateway blocks up front.
type BillingConfig struct {
	MinimumMinutes int64 // balance must cover this many minutes to start
}

type SecurityConfig struct {
	JWT       JWTConfig
	RateLimit RateLimitConfig
}

type JWTConfig struct {
	Secret     string
	ExpiryHour int
}

type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

// MediaConfig covers TURN credential fallback when the upstream token
// response does not carry ICE servers of its own.
type MediaConfig struct {
	TURNSecret    string
	TURNRealm     string
	TURNURLs      []string
	STUNServers   []string
	CredentialTTL time.Duration
}

func Load() *Config {
	return &Config{
		App:       loadAppConfig(),
		Server:    loadServerConfig(),
		Upstream:  loadUpstreamConfig(),
		Redis:     loadRedisConfig(),
		Lifecycle: loadLifecycleConfig(),
		Billing:   loadBillingConfig(),
		Security:  loadSecurityConfig(),
		Media:     loadMediaConfig(),
	}
}

func loadAppConfig() AppConfig {
	return AppConfig{
		Name:        getEnv("APP_NAME", "AstroConnect"),
		Version:     getEnv("APP_VERSION", "1.0.0"),
		Environment: getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		Debug:       getEnvAsBool("DEBUG", false),
		LoginURL:    getEnv("LOGIN_URL", "/login"),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		HTTP: HTTPConfig{
			Port:         getEnv("HTTP_PORT", "8080"),
			Host:         getEnv("HTTP_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvAsDuration("HTTP_READ_TIMEOUT", "30s"),
			WriteTimeout: getEnvAsDuration("HTTP_WRITE_TIMEOUT", "30s"),
			IdleTimeout:  getEnvAsDuration("HTTP_IDLE_TIMEOUT", "60s"),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER", 1024),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER", 1024),
			PingPeriod:      getEnvAsDuration("WS_PING_PERIOD", "54s"),
			PongWait:        getEnvAsDuration("WS_PONG_WAIT", "60s"),
			WriteWait:       getEnvAsDuration("WS_WRITE_WAIT", "10s"),
			MaxMessageSize:  getEnvAsInt64("WS_MAX_MESSAGE_SIZE", 4096),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getEnvAsSlice("CORS_ORIGINS", "http://localhost:3000"),
			AllowedMethods:   getEnvAsSlice("CORS_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders:   getEnvAsSlice("CORS_HEADERS", "Origin,Content-Type,Accept,Authorization,X-Requested-With"),
			AllowCredentials: getEnvAsBool("CORS_CREDENTIALS", true),
			MaxAge:           getEnvAsDuration("CORS_MAX_AGE", "12h"),
		},
	}
}

func loadUpstreamConfig() UpstreamConfig {
	return UpstreamConfig{
		BaseURL:        getEnv("UPSTREAM_BASE_URL", "http://localhost:9000/api"),
		WebSocketURL:   getEnv("UPSTREAM_WS_URL", ""),
		APIKey:         getEnv("UPSTREAM_API_KEY", ""),
		RequestTimeout: getEnvAsDuration("UPSTREAM_TIMEOUT", "10s"),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvAsInt("REDIS_DB", 0),
		PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 10),
	}
}

func loadLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		PollInterval:     getEnvAsDuration("STATUS_POLL_INTERVAL", "2s"),
		CountdownSeconds: getEnvAsInt("QUEUE_COUNTDOWN_SECONDS", 60),
		RequestTTL:       getEnvAsDuration("REQUEST_STATE_TTL", "10m"),
		TypingQuiet:      getEnvAsDuration("TYPING_QUIET_WINDOW", "2s"),
		CostTick:         getEnvAsDuration("COST_TICK_INTERVAL", "1s"),
	}
}

func loadBillingConfig() BillingConfig {
	return BillingConfig{
		MinimumMinutes: getEnvAsInt64("BILLING_MINIMUM_MINUTES", 5),
	}
}

func loadSecurityConfig() SecurityConfig {
	return SecurityConfig{
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "your-secret-key"),
			ExpiryHour: getEnvAsInt("JWT_EXPIRY_HOUR", 24),
		},
		RateLimit: RateLimitConfig{
			Enabled:  getEnvAsBool("RATE_LIMIT_ENABLED", true),
			Requests: getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			Window:   getEnvAsDuration("RATE_LIMIT_WINDOW", "1m"),
		},
	}
}

func loadMediaConfig() MediaConfig {
	return MediaConfig{
		TURNSecret: getEnv("TURN_SECRET", ""),
		TURNRealm:  getEnv("TURN_REALM", "astroconnect.example.com"),
		TURNURLs:   getEnvAsSlice("TURN_URLS", ""),
		STUNServers: getEnvAsSlice("STUN_SERVERS",
			"stun.l.google.com:19302,stun1.l.google.com:19302"),
		CredentialTTL: getEnvAsDuration("TURN_CREDENTIAL_TTL", "1h"),
	}
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsSlice(key string, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	if value == "" {
		return []string{}
	}
	return strings.Split(value, ",")
}
