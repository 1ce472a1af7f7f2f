package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eternalApril/moonlink/client"
	"github.com/eternalApril/moonlink/transport"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config represents the root configuration structure for the CLI
type Config struct {
	Redis RedisConfig `mapstructure:"redis"`
	Lock  LockConfig  `mapstructure:"lock"`
	Log   LogConfig   `mapstructure:"log"`
}

// RedisConfig holds the connection settings
type RedisConfig struct {
	URL            string        `mapstructure:"url"` // redis[+sentinel]://[user:pass@]host[:port][/db]
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// LockConfig defines the lock defaults
type LockConfig struct {
	Owner   string        `mapstructure:"owner"` // empty means the local hostname
	Expire  time.Duration `mapstructure:"expire"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig defines logging verbosity and output style
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// flagKeys maps command line flags to configuration keys
var flagKeys = map[string]string{
	"url":             "redis.url",
	"connect-timeout": "redis.connect_timeout",
	"read-timeout":    "redis.read_timeout",
	"write-timeout":   "redis.write_timeout",
	"owner":           "lock.owner",
	"lock-expire":     "lock.expire",
	"lock-timeout":    "lock.timeout",
	"log-level":       "log.level",
	"log-format":      "log.format",
}

// Flags registers the command line overrides on fs
func Flags(fs *pflag.FlagSet) {
	fs.String("url", "", "redis url, redis[+sentinel]://[user:pass@]host[:port][/db]")
	fs.Duration("connect-timeout", 0, "connect timeout")
	fs.Duration("read-timeout", 0, "read timeout")
	fs.Duration("write-timeout", 0, "write timeout")
	fs.String("owner", "", "lock owner, the hostname by default")
	fs.Duration("lock-expire", 0, "lock expiry")
	fs.Duration("lock-timeout", 0, "how long to wait for a lock")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("log-format", "", "json or console")
}

// Load reads the configuration from moonlink.yaml in path, the environment and
// the flags changed on fs, in increasing priority. fs may be nil
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("moonlink")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("MOONLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			flag := fs.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults populates viper with fallback values if they are not provided via file, ENV or flags
func setDefaults(v *viper.Viper) {
	// Redis
	v.SetDefault("redis.url", "redis://127.0.0.1:6379/0")
	v.SetDefault("redis.connect_timeout", transport.DefaultTimeout)
	v.SetDefault("redis.read_timeout", transport.DefaultTimeout)
	v.SetDefault("redis.write_timeout", transport.DefaultTimeout)

	// Locks
	v.SetDefault("lock.owner", "")
	v.SetDefault("lock.expire", client.DefaultLockExpire)
	v.SetDefault("lock.timeout", client.DefaultLockTimeout)

	// Logger
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// ClientOptions converts the configuration into session options
func (c *Config) ClientOptions() (client.Options, error) {
	opts, err := client.ParseURL(c.Redis.URL)
	if err != nil {
		return client.Options{}, err
	}

	opts.Timeouts = transport.Timeouts{
		Connect: c.Redis.ConnectTimeout,
		Read:    c.Redis.ReadTimeout,
		Write:   c.Redis.WriteTimeout,
	}
	opts.LockExpire = c.Lock.Expire
	opts.LockTimeout = c.Lock.Timeout

	if owner := c.Lock.Owner; owner != "" {
		opts.Owner = func() (string, error) { return owner, nil }
	}

	return opts, nil
}
