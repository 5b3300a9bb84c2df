package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"truck-event-scorer/internal/enrich"
	"truck-event-scorer/internal/logging"
)

// Artifact store backends
const (
	ArtifactsDir  = "dir"
	ArtifactsNATS = "nats"
)

// Config is the runtime configuration of the scorer
type Config struct {
	KeyedStore       KeyedStore         `yaml:"keyed_store"`
	Artifacts        Artifacts          `yaml:"artifacts"`
	Model            Model              `yaml:"model"`
	Audit            Audit              `yaml:"audit"`
	Scoring          Scoring            `yaml:"scoring"`
	Weather          enrich.WeatherBias `yaml:"weather"`
	NATS             NATS               `yaml:"nats"`
	HTTP             HTTP               `yaml:"http"`
	ProfileCacheSize int                `yaml:"profile_cache_size"`
	Logging          logging.Config     `yaml:"logging"`
}

// KeyedStore holds the coordinates of the enrichment database
type KeyedStore struct {
	Driver   string `yaml:"driver"` // sqlite3 or postgres
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	Path     string `yaml:"path"` // sqlite3 only
}

// DSN builds the connection string for the configured driver
func (k KeyedStore) DSN() string {
	if k.Driver == "postgres" {
		u := url.URL{
			Scheme: "postgres",
			Host:   k.Host + ":" + strconv.Itoa(k.Port),
			Path:   "/" + k.Database,
		}
		if k.User != "" {
			u.User = url.UserPassword(k.User, k.Password)
		}
		q := url.Values{}
		q.Set("sslmode", k.SSLMode)
		u.RawQuery = q.Encode()
		return u.String()
	}

	// Enable WAL mode and other optimizations via connection string
	return fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000", k.Path)
}

// Artifacts selects the artifact store backend
type Artifacts struct {
	Backend string `yaml:"backend"` // dir or nats
	Root    string `yaml:"root"`    // dir backend
	Bucket  string `yaml:"bucket"`  // nats backend
}

// Model locates the trained weights in the artifact store
type Model struct {
	Location string `yaml:"location"`
}

// Audit configures the violation audit sink
type Audit struct {
	Base        string `yaml:"base"`
	UniqueNames bool   `yaml:"unique_names"`
}

// Scoring configures the operator
type Scoring struct {
	TargetEventType string   `yaml:"target_event_type"`
	LookupTimeout   Duration `yaml:"lookup_timeout"`
	Workers         int      `yaml:"workers"`
	TimeZone        string   `yaml:"time_zone"`
}

// NATS configures the event transport
type NATS struct {
	URL           string   `yaml:"url"`
	Stream        string   `yaml:"stream"`
	Consumer      string   `yaml:"consumer"`
	Subject       string   `yaml:"subject"`
	OutputStream  string   `yaml:"output_stream"`
	OutputSubject string   `yaml:"output_subject"`
	MaxDeliver    int      `yaml:"max_deliver"`
	AckWait       Duration `yaml:"ack_wait"`
	BatchSize     int      `yaml:"batch_size"`
}

// HTTP configures the status API
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Duration is a time.Duration that reads as "5s" in YAML
type Duration time.Duration

// UnmarshalYAML parses a Go duration string
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration as a string
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		KeyedStore: KeyedStore{
			Driver:  "sqlite3",
			Path:    "keyed_store.db",
			Port:    5432,
			SSLMode: "disable",
		},
		Artifacts: Artifacts{
			Backend: ArtifactsDir,
			Root:    "artifacts",
			Bucket:  "truck-artifacts",
		},
		Model: Model{Location: "tmp/sparkML_weights"},
		Audit: Audit{Base: "tmp/predictions"},
		Scoring: Scoring{
			TargetEventType: "Normal",
			Workers:         4,
			TimeZone:        "UTC",
		},
		Weather: enrich.WeatherBias{
			DefaultFog: 12,
			Rain:       20,
			Wind:       30,
		},
		NATS: NATS{
			URL:           "nats://127.0.0.1:4222",
			Stream:        "TRUCK_EVENTS",
			Consumer:      "truck-event-scorer",
			Subject:       "truck.events",
			OutputStream:  "TRUCK_PREDICTIONS",
			OutputSubject: "truck.predictions",
			MaxDeliver:    5,
			AckWait:       Duration(30 * time.Second),
			BatchSize:     50,
		},
		HTTP:    HTTP{Addr: ":8080"},
		Logging: logging.Config{Level: "info", Output: "stdout"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// a table given in the file replaces the default one; {} disables it
	if cfg.Weather.FogByDriver == nil {
		cfg.Weather.FogByDriver = enrich.DefaultWeatherBias().FogByDriver
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location resolves the scoring time zone
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Scoring.TimeZone)
}

// Validate checks required fields and enumerations
func (c *Config) Validate() error {
	var errs []error

	switch c.KeyedStore.Driver {
	case "sqlite3":
		if c.KeyedStore.Path == "" {
			errs = append(errs, errors.New("keyed_store.path is required for sqlite3"))
		}
	case "postgres":
		if c.KeyedStore.Host == "" {
			errs = append(errs, errors.New("keyed_store.host is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("keyed_store.driver %q is not supported", c.KeyedStore.Driver))
	}

	switch c.Artifacts.Backend {
	case ArtifactsDir:
		if c.Artifacts.Root == "" {
			errs = append(errs, errors.New("artifacts.root is required for the dir backend"))
		}
	case ArtifactsNATS:
		if c.Artifacts.Bucket == "" {
			errs = append(errs, errors.New("artifacts.bucket is required for the nats backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("artifacts.backend %q is not supported", c.Artifacts.Backend))
	}

	if c.Model.Location == "" {
		errs = append(errs, errors.New("model.location is required"))
	}
	if c.Audit.Base == "" {
		errs = append(errs, errors.New("audit.base is required"))
	}
	if c.Scoring.LookupTimeout < 0 {
		errs = append(errs, errors.New("scoring.lookup_timeout cannot be negative"))
	}
	if c.ProfileCacheSize < 0 {
		errs = append(errs, errors.New("profile_cache_size cannot be negative"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("scoring.time_zone: %w", err))
	}

	for driverID, pct := range c.Weather.FogByDriver {
		if pct < 0 || pct > 100 {
			errs = append(errs, fmt.Errorf("weather.fog_by_driver[%d] must be between 0 and 100", driverID))
		}
	}
	for name, pct := range map[string]int{
		"weather.default_fog": c.Weather.DefaultFog,
		"weather.rain":        c.Weather.Rain,
		"weather.wind":        c.Weather.Wind,
	} {
		if pct < 0 || pct > 100 {
			errs = append(errs, fmt.Errorf("%s must be between 0 and 100", name))
		}
	}

	return errors.Join(errs...)
}
