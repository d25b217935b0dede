// Package config loads daemon settings from an optional YAML file, the
// environment (DISPENSER_*), and command-line flags bound by the caller.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// FileName is the config file name without extension.
const FileName = "dose-dispenser"

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "DISPENSER"

// Config holds every tunable of the daemon and its CLI.
type Config struct {
	DeviceID   string `mapstructure:"device_id"`
	BackendURL string `mapstructure:"backend_url"`
	Token      string `mapstructure:"token"`
	DataDir    string `mapstructure:"data_dir"`
	HTTPAddr   string `mapstructure:"http_addr"`
	Firmware   string `mapstructure:"firmware"`

	Broker       string `mapstructure:"mqtt_broker"`
	MQTTUsername string `mapstructure:"mqtt_username"`
	MQTTPassword string `mapstructure:"mqtt_password"`
	MQTTBuffer   int    `mapstructure:"mqtt_buffer"`

	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	FetchInterval     time.Duration `mapstructure:"fetch_interval"`
	TimeSyncInterval  time.Duration `mapstructure:"time_sync_interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ProbeAddr         string        `mapstructure:"probe_addr"`
	ProbeInterval     time.Duration `mapstructure:"probe_interval"`
	AlertTimeout      time.Duration `mapstructure:"alert_timeout"`

	Simulate    bool          `mapstructure:"simulate"`
	PWMRoot     string        `mapstructure:"pwm_root"`
	PWMChip     int           `mapstructure:"pwm_chip"`
	PWMChannel  int           `mapstructure:"pwm_channel"`
	StepsPerRev int           `mapstructure:"steps_per_rev"`
	Slots       int           `mapstructure:"slots"`
	OpenAngle   int           `mapstructure:"open_angle"`
	ClosedAngle int           `mapstructure:"closed_angle"`
	IRSettle    time.Duration `mapstructure:"ir_settle"`

	BatteryLevel  int     `mapstructure:"battery_level"`
	StorageFreeKb int     `mapstructure:"storage_free_kb"`
	TemperatureC  float64 `mapstructure:"temperature_c"`
}

// StorePath is the directory of the key/value store.
func (c Config) StorePath() string {
	return filepath.Join(c.DataDir, "store")
}

// JournalPath is the SQLite journal file.
func (c Config) JournalPath() string {
	return filepath.Join(c.DataDir, "journal.db")
}

// Defaults registers the default of every key on v.
func Defaults(v *viper.Viper) {
	v.SetDefault("device_id", "")
	v.SetDefault("backend_url", "")
	v.SetDefault("token", "")
	v.SetDefault("data_dir", "~/.dose-dispenser")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("firmware", "1.0.0")

	v.SetDefault("mqtt_broker", "")
	v.SetDefault("mqtt_username", "")
	v.SetDefault("mqtt_password", "")
	v.SetDefault("mqtt_buffer", 100)

	v.SetDefault("request_timeout", 5*time.Second)
	v.SetDefault("fetch_interval", 60*time.Second)
	v.SetDefault("time_sync_interval", 10*time.Minute)
	v.SetDefault("heartbeat_interval", 60*time.Second)
	v.SetDefault("probe_addr", "")
	v.SetDefault("probe_interval", 10*time.Second)
	v.SetDefault("alert_timeout", time.Duration(0))

	v.SetDefault("simulate", false)
	v.SetDefault("pwm_root", "/sys/class/pwm")
	v.SetDefault("pwm_chip", 0)
	v.SetDefault("pwm_channel", 0)
	v.SetDefault("steps_per_rev", 2048)
	v.SetDefault("slots", 5)
	v.SetDefault("open_angle", 80)
	v.SetDefault("closed_angle", 180)
	v.SetDefault("ir_settle", 2*time.Second)

	v.SetDefault("battery_level", 87)
	v.SetDefault("storage_free_kb", 812)
	v.SetDefault("temperature_c", 36.8)
}

// Load reads configuration into a Config. file, if non-empty, names an
// explicit config file that must exist. Otherwise dose-dispenser.yaml is
// looked up in the working directory and /etc/dose-dispenser, and a missing
// file is not an error.
func Load(v *viper.Viper, file string) (Config, error) {
	Defaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		path, err := homedir.Expand(file)
		if err != nil {
			return Config{}, fmt.Errorf("expand config path: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/dose-dispenser")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	dir, err := homedir.Expand(c.DataDir)
	if err != nil {
		return Config{}, fmt.Errorf("expand data_dir: %w", err)
	}
	c.DataDir = dir
	c.BackendURL = strings.TrimRight(c.BackendURL, "/")
	return c, nil
}

// Validate checks the settings the daemon cannot run without.
func (c Config) Validate() error {
	var errs []error
	if c.DeviceID == "" {
		errs = append(errs, errors.New("device_id is required"))
	}
	if c.BackendURL == "" {
		errs = append(errs, errors.New("backend_url is required"))
	} else if _, err := url.ParseRequestURI(c.BackendURL); err != nil {
		errs = append(errs, fmt.Errorf("backend_url: %w", err))
	}
	if c.Slots < 1 {
		errs = append(errs, fmt.Errorf("slots must be positive, got %d", c.Slots))
	}
	if c.StepsPerRev < c.Slots {
		errs = append(errs, fmt.Errorf("steps_per_rev %d is less than slots %d", c.StepsPerRev, c.Slots))
	}
	if c.OpenAngle < 0 || c.OpenAngle > 180 || c.ClosedAngle < 0 || c.ClosedAngle > 180 {
		errs = append(errs, errors.New("servo angles must be within 0..180"))
	}
	return errors.Join(errs...)
}

// Probe returns the address dialled to decide whether the network is up:
// ProbeAddr when set, otherwise the backend's host and port.
func (c Config) Probe() string {
	if c.ProbeAddr != "" {
		return c.ProbeAddr
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Port() != "" {
		return u.Host
	}
	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}
