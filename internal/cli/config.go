package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/crm-admin-client/pkg/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	configFileName = "crmctl"
	configFileType = "yaml"
	envPrefix      = "CRM"

	// Config keys.
	cfgKeyBaseURL      = "api.base_url"
	cfgKeyTimeout      = "api.timeout"
	cfgKeyRedisAddr    = "redis.addr"
	cfgKeyRedisDB      = "redis.db"
	cfgKeyRedisPass    = "redis.password"
	cfgKeyLogLevel     = "log.level"
	cfgKeyLogPretty    = "log.pretty"
	cfgKeyPageSize     = "list.page_size"
	cfgKeyDebounce     = "list.debounce"
	cfgKeySessionStore = "session.store"
	cfgKeySessionPath  = "session.path"
	cfgKeyProfile      = "session.profile"
)

// Session store kinds.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config is the resolved crmctl configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration

	RedisAddr     string
	RedisDB       int
	RedisPassword string

	LogLevel  logging.LogLevel
	LogPretty bool

	PageSize int
	Debounce time.Duration

	SessionStore string
	SessionPath  string
	Profile      string
}

// bindings maps persistent flag names to config keys.
var bindings = map[string]string{
	"base-url":  cfgKeyBaseURL,
	"timeout":   cfgKeyTimeout,
	"redis":     cfgKeyRedisAddr,
	"log-level": cfgKeyLogLevel,
	"pretty":    cfgKeyLogPretty,
	"page-size": cfgKeyPageSize,
	"session":   cfgKeySessionStore,
	"profile":   cfgKeyProfile,
}

// loadConfig resolves configuration with precedence flag > CRM_* env (and
// .env) > crmctl.yaml > defaults. A missing config file is not an error.
func loadConfig(flags *pflag.FlagSet, configFile string) (Config, error) {
	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyBaseURL, "http://localhost:8080/api")
	v.SetDefault(cfgKeyTimeout, 15*time.Second)
	v.SetDefault(cfgKeyRedisDB, 0)
	v.SetDefault(cfgKeyLogLevel, string(logging.LevelWarn))
	v.SetDefault(cfgKeyPageSize, 20)
	v.SetDefault(cfgKeyDebounce, 300*time.Millisecond)
	v.SetDefault(cfgKeySessionStore, StoreFile)
	v.SetDefault(cfgKeyProfile, "default")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "crmctl"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	for name, key := range bindings {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	level, err := logging.ParseLevel(v.GetString(cfgKeyLogLevel))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		BaseURL:       v.GetString(cfgKeyBaseURL),
		Timeout:       v.GetDuration(cfgKeyTimeout),
		RedisAddr:     v.GetString(cfgKeyRedisAddr),
		RedisDB:       v.GetInt(cfgKeyRedisDB),
		RedisPassword: v.GetString(cfgKeyRedisPass),
		LogLevel:      level,
		LogPretty:     v.GetBool(cfgKeyLogPretty),
		PageSize:      v.GetInt(cfgKeyPageSize),
		Debounce:      v.GetDuration(cfgKeyDebounce),
		SessionStore:  strings.ToLower(v.GetString(cfgKeySessionStore)),
		SessionPath:   v.GetString(cfgKeySessionPath),
		Profile:       v.GetString(cfgKeyProfile),
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%s is required", cfgKeyBaseURL)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("%s must be > 0 (got %d)", cfgKeyPageSize, c.PageSize)
	}
	switch c.SessionStore {
	case StoreFile, StoreMemory:
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("session store %q needs %s", StoreRedis, cfgKeyRedisAddr)
		}
	default:
		return fmt.Errorf("unknown session store %q (want file, redis or memory)", c.SessionStore)
	}
	return nil
}
