// Package config layers CLI flags over a config file over built-in
// defaults, using viper and pflag. There is no subprocess-restart policy
// here, since workers are in-process goroutines rather than supervised
// child processes.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/avarga/reactorhttpd/internal/dbpool"
	"github.com/avarga/reactorhttpd/internal/epoll"
	"github.com/avarga/reactorhttpd/internal/workerpool"
)

// TriggerPair is the -m flag's decoded meaning: the listen socket's and each
// connection socket's individual trigger modes.
type TriggerPair struct {
	Listen epoll.TriggerMode
	Conn   epoll.TriggerMode
}

// Config holds every setting the event loop needs, assembled from CLI
// flags, an optional config file, and defaults, in that order of priority.
type Config struct {
	Port         int    `mapstructure:"port"`
	LogAsync     bool   `mapstructure:"log_async"`
	TriggerMode  int    `mapstructure:"trigger_mode"`
	LingerOn     bool   `mapstructure:"linger_on"`
	PoolSize     int    `mapstructure:"pool_size"`
	WorkerCount  int    `mapstructure:"worker_count"`
	LogDisabled  bool   `mapstructure:"log_disabled"`
	ActorModel   int    `mapstructure:"actor_model"`
	DocumentRoot string `mapstructure:"document_root"`

	Logging LoggingConfig `mapstructure:"logging"`
}

// LoggingConfig configures internal/rlog's handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Triggers decodes the -m flag: 0 LT+LT, 1 LT+ET, 2 ET+LT, 3 ET+ET
// (listen, conn).
func (c Config) Triggers() TriggerPair {
	switch c.TriggerMode {
	case 1:
		return TriggerPair{epoll.LevelTriggered, epoll.EdgeTriggered}
	case 2:
		return TriggerPair{epoll.EdgeTriggered, epoll.LevelTriggered}
	case 3:
		return TriggerPair{epoll.EdgeTriggered, epoll.EdgeTriggered}
	default:
		return TriggerPair{epoll.LevelTriggered, epoll.LevelTriggered}
	}
}

// DispatchMode decodes the -a flag.
func (c Config) DispatchMode() workerpool.Mode {
	if c.ActorModel == 1 {
		return workerpool.Reactor
	}
	return workerpool.Proactor
}

// BindFlags registers the server's CLI flags on fs. Flag names use the
// single-character convention spelled out below; long names exist only
// for --help readability.
func BindFlags(fs *pflag.FlagSet) {
	fs.IntP("port", "p", 9006, "listen port")
	fs.IntP("log-async", "l", 0, "log write mode: 0 synchronous, 1 asynchronous")
	fs.IntP("trigger-mode", "m", 0, "trigger mode: 0 LT+LT, 1 LT+ET, 2 ET+LT, 3 ET+ET")
	fs.IntP("linger", "o", 0, "SO_LINGER option: 0 off, 1 on")
	fs.IntP("pool-size", "s", dbpool.DefaultPoolSize, "resource pool size")
	fs.IntP("worker-count", "t", 8, "worker goroutine count")
	fs.IntP("close-log", "c", 0, "close log: 0 logging enabled, 1 disabled")
	fs.IntP("actor-model", "a", 0, "actor model: 0 Proactor, 1 Reactor")
	fs.String("document-root", "root", "static file document root")
	fs.String("config", "", "path to a config file")
}

// Load builds a Config from fs (already parsed) layered over an optional
// config file and built-in defaults.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("config: bind flags: %w", err)
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("reactorhttpd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/reactorhttpd")
	}

	v.SetEnvPrefix("REACTORHTTPD")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	cfg := &Config{
		Port:         v.GetInt("port"),
		LogAsync:     v.GetBool("log-async"),
		TriggerMode:  v.GetInt("trigger-mode"),
		LingerOn:     v.GetBool("linger"),
		PoolSize:     v.GetInt("pool-size"),
		WorkerCount:  v.GetInt("worker-count"),
		LogDisabled:  v.GetBool("close-log"),
		ActorModel:   v.GetInt("actor-model"),
		DocumentRoot: v.GetString("document-root"),
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 9006)
	v.SetDefault("log-async", false)
	v.SetDefault("trigger-mode", 0)
	v.SetDefault("linger", false)
	v.SetDefault("pool-size", dbpool.DefaultPoolSize)
	v.SetDefault("worker-count", 8)
	v.SetDefault("close-log", false)
	v.SetDefault("actor-model", 0)
	v.SetDefault("document-root", "root")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// AlarmPeriod is the fixed SIGALRM re-arm interval the timer list ticks on.
const AlarmPeriod = 5 * time.Second

// ConnectionTimeout is the idle-connection expiry window (3*TIMESLOT in the
// original source's terms).
const ConnectionTimeout = 3 * AlarmPeriod
