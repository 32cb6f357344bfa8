// README: Config loader: optional YAML file, STATIONQ_ env overrides, defaults, then validation.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const EnvPrefix = "STATIONQ_"

type HTTPConfig struct {
	Addr                   string `koanf:"addr" validate:"required"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds" validate:"gte=0"`
	AuthEnabled            bool   `koanf:"auth_enabled"`

	// AllowedOrigins lists browser origins, besides the serving host, that
	// may open the event stream.
	AllowedOrigins []string `koanf:"allowed_origins" validate:"dive,required"`
}

type DBConfig struct {
	Enabled bool   `koanf:"enabled"`
	DSN     string `koanf:"dsn" validate:"required_if=Enabled true"`
}

type RedisConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr" validate:"required_if=Enabled true"`
}

type FirebaseConfig struct {
	ProjectID       string `koanf:"project_id"`
	CredentialsFile string `koanf:"credentials_file"`
	DatabaseURL     string `koanf:"database_url" validate:"required_if=MirrorEnabled true"`
	MirrorEnabled   bool   `koanf:"mirror_enabled"`
	Node            string `koanf:"node"`
}

type MQTTConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Broker      string `koanf:"broker" validate:"required_if=Enabled true"`
	ClientID    string `koanf:"client_id"`
	Username    string `koanf:"username"`
	Password    string `koanf:"password"`
	TopicPrefix string `koanf:"topic_prefix"`
	QoS         byte   `koanf:"qos" validate:"lte=2"`
}

type DispatchConfig struct {
	EventBuffer        int `koanf:"event_buffer" validate:"gte=1"`
	IndexThreshold     int `koanf:"index_threshold" validate:"gte=0"`
	SinkTimeoutSeconds int `koanf:"sink_timeout_seconds" validate:"gte=1"`
	// Restore rebuilds the queues from the Postgres journal at startup.
	Restore bool `koanf:"restore"`
}

type StationsConfig struct {
	Source         string `koanf:"source" validate:"oneof=file db"`
	CatalogPath    string `koanf:"catalog_path" validate:"required_if=Source file"`
	RefreshSeconds int    `koanf:"refresh_seconds" validate:"gte=0"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
}

type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	DB       DBConfig       `koanf:"db"`
	Redis    RedisConfig    `koanf:"redis"`
	Firebase FirebaseConfig `koanf:"firebase"`
	MQTT     MQTTConfig     `koanf:"mqtt"`
	Dispatch DispatchConfig `koanf:"dispatch"`
	Stations StationsConfig `koanf:"stations"`
	Log      LogConfig      `koanf:"log"`
}

// Load reads path (if non-empty), then applies STATIONQ_ environment
// overrides. Nested keys use a double underscore: STATIONQ_HTTP__ADDR.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
		default:
			return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// SetDefaults fills every unset field.
func (c *Config) SetDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ShutdownTimeoutSeconds == 0 {
		c.HTTP.ShutdownTimeoutSeconds = 10
	}
	// From the environment the list arrives as one comma separated value.
	var origins []string
	for _, o := range c.HTTP.AllowedOrigins {
		for _, part := range strings.Split(o, ",") {
			if part = strings.TrimSpace(part); part != "" {
				origins = append(origins, part)
			}
		}
	}
	c.HTTP.AllowedOrigins = origins
	if c.Firebase.Node == "" {
		c.Firebase.Node = "driver_locations"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "stationq"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "stationq/events"
	}
	if c.Dispatch.EventBuffer == 0 {
		c.Dispatch.EventBuffer = 1024
	}
	if c.Dispatch.IndexThreshold == 0 {
		c.Dispatch.IndexThreshold = 64
	}
	if c.Dispatch.SinkTimeoutSeconds == 0 {
		c.Dispatch.SinkTimeoutSeconds = 5
	}
	if c.Stations.Source == "" {
		c.Stations.Source = "file"
	}
	if c.Stations.Source == "file" && c.Stations.CatalogPath == "" {
		c.Stations.CatalogPath = "stations.yaml"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Stations.Source == "db" && !c.DB.Enabled {
		return fmt.Errorf("invalid config: stations.source=db requires db.enabled")
	}
	if c.Dispatch.Restore && !c.DB.Enabled {
		return fmt.Errorf("invalid config: dispatch.restore requires db.enabled")
	}
	return nil
}
