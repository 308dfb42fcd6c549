package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultJWTSecret 仅供本地开发使用，非 dev 环境下 Validate 会拒绝它。
const DefaultJWTSecret = "dev-secret-change-me"

// ConfigPathEnvVar 指定可选的 YAML 配置文件路径。
const ConfigPathEnvVar = "CONFIG_PATH"

type Config struct {
	Port                  string `koanf:"port" validate:"required"`
	DatabaseDSN           string `koanf:"database_dsn" validate:"required"`
	JWTSecret             string `koanf:"jwt_secret" validate:"required"`
	Env                   string `koanf:"env" validate:"required,oneof=dev test prod"`
	LogLevel              string `koanf:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
	AccessTokenTTLMinutes int    `koanf:"access_token_ttl_minutes" validate:"omitempty,min=1"`
	RefreshTokenTTLDays   int    `koanf:"refresh_token_ttl_days" validate:"omitempty,min=1"`

	// WebSocket 连接层参数。
	WSSendBuffer        int      `koanf:"ws_send_buffer" validate:"omitempty,min=1"`
	WSMessagesPerSecond int      `koanf:"ws_messages_per_second" validate:"omitempty,min=1"`
	WSPongWaitSeconds   int      `koanf:"ws_pong_wait_seconds" validate:"omitempty,min=2"`
	WSAllowedOrigins    []string `koanf:"ws_allowed_origins"`

	// 会话成员校验所用数据库的熔断参数。
	StoreBreakerFailures       int `koanf:"store_breaker_failures" validate:"omitempty,min=1"`
	StoreBreakerTimeoutSeconds int `koanf:"store_breaker_timeout_seconds" validate:"omitempty,min=1"`
}

func defaults() Config {
	return Config{
		Port:                       "8080",
		DatabaseDSN:                "host=localhost user=postgres password=postgres dbname=alumni port=5432 sslmode=disable TimeZone=UTC",
		JWTSecret:                  DefaultJWTSecret,
		Env:                        "dev",
		LogLevel:                   "info",
		AccessTokenTTLMinutes:      15,
		RefreshTokenTTLDays:        7,
		WSSendBuffer:               256,
		WSMessagesPerSecond:        20,
		WSPongWaitSeconds:          60,
		StoreBreakerFailures:       5,
		StoreBreakerTimeoutSeconds: 30,
	}
}

// envKeys 保持与旧版本一致的环境变量名。
var envKeys = map[string]string{
	"APP_PORT":                      "port",
	"DATABASE_DSN":                  "database_dsn",
	"JWT_SECRET":                    "jwt_secret",
	"APP_ENV":                       "env",
	"LOG_LEVEL":                     "log_level",
	"ACCESS_TOKEN_TTL_MINUTES":      "access_token_ttl_minutes",
	"REFRESH_TOKEN_TTL_DAYS":        "refresh_token_ttl_days",
	"WS_SEND_BUFFER":                "ws_send_buffer",
	"WS_MESSAGES_PER_SECOND":        "ws_messages_per_second",
	"WS_PONG_WAIT_SECONDS":          "ws_pong_wait_seconds",
	"WS_ALLOWED_ORIGINS":            "ws_allowed_origins",
	"STORE_BREAKER_FAILURES":        "store_breaker_failures",
	"STORE_BREAKER_TIMEOUT_SECONDS": "store_breaker_timeout_seconds",
}

var positiveInts = map[string]bool{
	"access_token_ttl_minutes":      true,
	"refresh_token_ttl_days":        true,
	"ws_send_buffer":                true,
	"ws_messages_per_second":        true,
	"ws_pong_wait_seconds":          true,
	"store_breaker_failures":        true,
	"store_breaker_timeout_seconds": true,
}

// envValue 把环境变量映射到 koanf 路径；非法或非正的数值被丢弃，从而回落到默认值。
func envValue(key, value string) (string, interface{}) {
	path, ok := envKeys[key]
	if !ok || value == "" {
		return "", nil
	}
	if positiveInts[path] {
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return "", nil
		}
		return path, n
	}
	if path == "ws_allowed_origins" {
		var origins []string
		for _, o := range strings.Split(value, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		return path, origins
	}
	return path, value
}

// Load 依次叠加默认值、可选的 YAML 文件以及环境变量。
// 文件解析失败时保留其余层的结果，并在 stderr 给出提示。
func Load() Config {
	k := koanf.New(".")
	base := defaults()
	if err := k.Load(structs.Provider(&base, "koanf"), nil); err != nil {
		return defaults()
	}
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			fmt.Fprintf(os.Stderr, "config: ignoring %s: %v\n", path, err)
		}
	}
	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		fmt.Fprintf(os.Stderr, "config: env: %v\n", err)
	}

	cfg := defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: unmarshal: %v\n", err)
		return defaults()
	}
	return cfg
}

var validate = validator.New()

// Validate 检查必填项，并拒绝在非 dev 环境中使用默认 JWT 密钥。
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Env != "dev" && cfg.JWTSecret == DefaultJWTSecret {
		return errors.New("invalid config: JWT_SECRET must be set outside dev")
	}
	return nil
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLDays) * 24 * time.Hour
}

func (c Config) PongWait() time.Duration {
	return time.Duration(c.WSPongWaitSeconds) * time.Second
}

func (c Config) StoreBreakerTimeout() time.Duration {
	return time.Duration(c.StoreBreakerTimeoutSeconds) * time.Second
}
