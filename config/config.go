// Package config loads the engine configuration: a yaml file with
// environment overrides (MATCHD_SECTION_KEY).
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Engine   Engine   `mapstructure:"engine"`
	Listen   Listen   `mapstructure:"listen"`
	Journal  Journal  `mapstructure:"journal"`
	Outbox   Outbox   `mapstructure:"outbox"`
	Kafka    Kafka    `mapstructure:"kafka"`
	Snapshot Snapshot `mapstructure:"snapshot"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Log      Log      `mapstructure:"log"`
}

type Engine struct {
	OrderCapacity  int `mapstructure:"order_capacity"`
	ClientCapacity int `mapstructure:"client_capacity"`
}

type Listen struct {
	Addr        string        `mapstructure:"addr"`
	FeedAddr    string        `mapstructure:"feed_addr"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

type Journal struct {
	Dir             string        `mapstructure:"dir"`
	SegmentSize     int64         `mapstructure:"segment_size"`
	SegmentDuration time.Duration `mapstructure:"segment_duration"`
}

type Outbox struct {
	Dir string `mapstructure:"dir"`
}

type Kafka struct {
	Brokers          []string      `mapstructure:"brokers"`
	IndicationsTopic string        `mapstructure:"indications_topic"`
	TradesTopic      string        `mapstructure:"trades_topic"`
	DrainInterval    time.Duration `mapstructure:"drain_interval"`
}

type Snapshot struct {
	Dir      string        `mapstructure:"dir"`
	Interval time.Duration `mapstructure:"interval"`
}

type Metrics struct {
	Addr string `mapstructure:"addr"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads matchd.yaml from dir (or the working directory) and
// applies MATCHD_* environment overrides. A missing file is fine; the
// defaults stand.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("matchd")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("MATCHD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.order_capacity", 1<<16)
	v.SetDefault("engine.client_capacity", 1<<10)

	v.SetDefault("listen.addr", ":7000")
	v.SetDefault("listen.feed_addr", "")
	v.SetDefault("listen.idle_timeout", 50*time.Millisecond)

	v.SetDefault("journal.dir", "data/journal")
	v.SetDefault("journal.segment_size", int64(64<<20))
	v.SetDefault("journal.segment_duration", time.Hour)

	v.SetDefault("outbox.dir", "data/outbox")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.indications_topic", "matchd.indications")
	v.SetDefault("kafka.trades_topic", "matchd.trades")
	v.SetDefault("kafka.drain_interval", 250*time.Millisecond)

	v.SetDefault("snapshot.dir", "data/snapshot")
	v.SetDefault("snapshot.interval", time.Minute)

	v.SetDefault("metrics.addr", ":9100")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}
