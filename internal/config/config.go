package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/datarouter/internal/errors"
)

const (
	// ConfigFileName is the preferred config file name.
	ConfigFileName = "datarouter.yaml"

	// DefaultPort is the default data server port.
	DefaultPort = 8080

	// DefaultHost is the default data server host.
	DefaultHost = "localhost"

	// DefaultRoutes is the default route file.
	DefaultRoutes = "routes.yaml"

	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = "10s"

	// DefaultMetricsPath is where Prometheus metrics are served.
	DefaultMetricsPath = "/metrics"
)

// FileNames are the config file names looked up, in order.
var FileNames = []string{"datarouter.yaml", "datarouter.yml", "datarouter.json"}

// Config is the datarouter project config.
type Config struct {
	// Name is the project name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Routes is the route file: a path relative to the config file or an
	// s3://bucket/key location.
	Routes string `json:"routes,omitempty" yaml:"routes,omitempty"`

	// Basename overrides the basename declared in the route file.
	Basename string `json:"basename,omitempty" yaml:"basename,omitempty"`

	Server    ServerConfig    `json:"server,omitempty" yaml:"server,omitempty"`
	Hydration HydrationConfig `json:"hydration,omitempty" yaml:"hydration,omitempty"`
	Metrics   MetricsConfig   `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing   TracingConfig   `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Log       LogConfig       `json:"log,omitempty" yaml:"log,omitempty"`
	S3        S3Config        `json:"s3,omitempty" yaml:"s3,omitempty"`

	configPath string
}

// ServerConfig configures the data server.
type ServerConfig struct {
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
	Port int    `json:"port,omitempty" yaml:"port,omitempty"`

	// ShutdownTimeout is a duration string, e.g. "10s".
	ShutdownTimeout string `json:"shutdownTimeout,omitempty" yaml:"shutdownTimeout,omitempty"`

	// AllowedOrigins lists origins allowed to open live sessions. Empty
	// allows same-origin requests only.
	AllowedOrigins []string `json:"allowedOrigins,omitempty" yaml:"allowedOrigins,omitempty"`

	// Streaming returns deferred loader data without waiting for it.
	Streaming bool `json:"streaming,omitempty" yaml:"streaming,omitempty"`
}

// HydrationConfig configures hydration payloads.
type HydrationConfig struct {
	// Format is "json" or "msgpack".
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// Secret signs hydration payloads embedded in documents. Empty
	// disables the signed endpoint.
	Secret string `json:"secret,omitempty" yaml:"secret,omitempty"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
}

// TracingConfig configures OpenTelemetry spans.
type TracingConfig struct {
	Enabled    bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	TracerName string `json:"tracerName,omitempty" yaml:"tracerName,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// S3Config configures the S3 route file source.
type S3Config struct {
	Region       string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint     string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	UsePathStyle bool   `json:"usePathStyle,omitempty" yaml:"usePathStyle,omitempty"`
}

// New creates a Config with default values.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads the config file found in dir.
func Load(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("E141").
		WithSuggestion("Create " + ConfigFileName + " in " + dir + " or pass --routes")
}

// LoadFile reads the config file at path. The format follows the file
// extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E141").WithDetail("No config file at " + path)
		}
		return nil, errors.New("E120").Wrap(err)
	}

	cfg := &Config{}
	if isJSON(path) {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.New("E120").
			Wrap(err).
			WithLocationFromError(path, data, err).
			WithSuggestion("Check that " + filepath.Base(path) + " is valid")
	}

	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// SaveTo writes the config to path in the format of its extension.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return errors.New("E120").Wrap(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New("E120").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

func (c *Config) applyDefaults() {
	if c.Routes == "" {
		c.Routes = DefaultRoutes
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Hydration.Format == "" {
		c.Hydration.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks the config values.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.New("E122").WithDetail("Port " + strconv.Itoa(c.Server.Port) + " is out of range")
	}
	if c.Basename != "" && !strings.HasPrefix(c.Basename, "/") {
		return invalid("basename must start with \"/\"", c.Basename)
	}
	if _, err := time.ParseDuration(c.Server.ShutdownTimeout); err != nil {
		return invalid("server.shutdownTimeout is not a duration", c.Server.ShutdownTimeout)
	}
	switch c.Hydration.Format {
	case "json", "msgpack":
	default:
		return invalid("hydration.format must be json or msgpack", c.Hydration.Format)
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return invalid("metrics.path must start with \"/\"", c.Metrics.Path)
	}
	if _, err := c.LogLevel(); err != nil {
		return invalid("log.level must be debug, info, warn or error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format must be text or json", c.Log.Format)
	}
	return nil
}

func invalid(detail, value string) error {
	return errors.New("E121").WithDetail(detail + ", got " + strconv.Quote(value))
}

// Address returns host:port for the data server.
func (c *Config) Address() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// ShutdownTimeout returns the parsed shutdown timeout.
func (c *Config) ShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		d, _ = time.ParseDuration(DefaultShutdownTimeout)
	}
	return d
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(c.Log.Level))
	return level, err
}

// RoutesLocation returns the route file location. Relative paths are
// resolved against the config file directory; s3:// locations are
// returned as-is.
func (c *Config) RoutesLocation() string {
	if strings.HasPrefix(c.Routes, "s3://") || filepath.IsAbs(c.Routes) {
		return c.Routes
	}
	return filepath.Join(c.Dir(), c.Routes)
}

// Exists reports whether dir holds a config file.
func Exists(dir string) bool {
	for _, name := range FileNames {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// FindProjectRoot walks up from startDir to the first directory holding
// a config file.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		if Exists(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E141").
				WithDetail("No config file found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads the config of the project containing the
// working directory.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}
	return Load(root)
}
