package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/alarm-klaxon/internal/logger"
)

// Config holds the settings shared by the klaxon daemon and its control CLI.
type Config struct {
	// ListenAddress is the gRPC address the daemon serves and the CLI dials.
	ListenAddress string `yaml:"listen_addr"`
	// MetricsAddress is the HTTP address for Prometheus metrics; empty disables it.
	MetricsAddress string `yaml:"metrics_addr"`
	// Timeout is the duration for RPC calls made by the CLI.
	Timeout time.Duration `yaml:"timeout"`
	// AutoSilence is the alarm auto-silence timeout in minutes.
	AutoSilence AutoSilence `yaml:"auto_silence"`
	// SnoozeMinutes is the snooze duration in minutes.
	SnoozeMinutes int `yaml:"snooze_minutes"`
	// CallHold postpones alarms while a call is active.
	CallHold bool `yaml:"call_hold"`
	// RampFloor is the stream volume at which the crescendo starts.
	RampFloor int `yaml:"ramp_floor"`
	// Store selects the snooze repository: "file" or "sqlite".
	Store string `yaml:"store"`
	// StateFile is the path to the JSON snooze file.
	StateFile string `yaml:"state_file"`
	// SQLitePath is the path to the SQLite snooze database.
	SQLitePath string `yaml:"sqlite_path"`
	// Audio selects the playback engine: "pulse" or "none".
	Audio string `yaml:"audio"`
	// SoundDirectory is where relative alert sound paths are resolved.
	SoundDirectory string `yaml:"sound_dir"`
	// MaxVolume is the maximum alarm stream volume.
	MaxVolume int `yaml:"max_volume"`
	// AlarmVolume is the alarm stream volume at startup.
	AlarmVolume int `yaml:"alarm_volume"`
	// PowerOff allows power-off alarms to shut the machine down on timeout.
	PowerOff bool `yaml:"power_off"`
	// LogLevel is the minimum log level.
	LogLevel string `yaml:"log_level"`
}

// AutoSilence is a timeout in minutes; Never disables auto-silence.
type AutoSilence int

const (
	// Never disables auto-silence.
	Never AutoSilence = -1
	// neverKeyword is the YAML spelling of Never.
	neverKeyword = "never"
)

// Duration converts the setting to a duration; Never maps to zero.
func (a AutoSilence) Duration() time.Duration {
	if a == Never {
		return 0
	}

	return time.Duration(a) * time.Minute
}

// String implements fmt.Stringer.
func (a AutoSilence) String() string {
	if a == Never {
		return neverKeyword
	}

	return strconv.Itoa(int(a))
}

// UnmarshalYAML accepts a minute count, -1 or "never".
func (a *AutoSilence) UnmarshalYAML(node *yaml.Node) error {
	value := strings.TrimSpace(node.Value)
	if strings.EqualFold(value, neverKeyword) {
		*a = Never

		return nil
	}

	minutes, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("auto_silence %q: %w", value, errInvalidAutoSilence)
	}

	if minutes == int(Never) {
		*a = Never

		return nil
	}

	if minutes <= 0 {
		return fmt.Errorf("auto_silence %d: %w", minutes, errInvalidAutoSilence)
	}

	*a = AutoSilence(minutes)

	return nil
}

// MarshalYAML writes Never as the keyword.
func (a AutoSilence) MarshalYAML() (any, error) {
	if a == Never {
		return neverKeyword, nil
	}

	return int(a), nil
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "alarm-klaxon-settings.yaml"

	// DefaultListenAddress is the default gRPC address.
	DefaultListenAddress = "127.0.0.1:50071"

	// DefaultStateFilename is the default filename for the snooze JSON file.
	DefaultStateFilename = "alarm-klaxon-snoozes.json"

	// DefaultSQLiteFilename is the default filename for the snooze database.
	DefaultSQLiteFilename = "alarm-klaxon.db"

	// DefaultTimeout is the default duration for RPC calls.
	DefaultTimeout = 5 * time.Second

	// DefaultAutoSilence is the default auto-silence timeout in minutes.
	DefaultAutoSilence AutoSilence = 10

	// DefaultSnoozeMinutes is the default snooze duration.
	DefaultSnoozeMinutes = 10

	// DefaultRampFloor is the default crescendo starting volume.
	DefaultRampFloor = 1

	// DefaultMaxVolume is the default maximum alarm stream volume.
	DefaultMaxVolume = 7

	// DefaultAlarmVolume is the default alarm stream volume.
	DefaultAlarmVolume = 5

	// DefaultLogLevel is the default minimum log level.
	DefaultLogLevel = "info"

	// DefaultFilePermissions is the default file permission for written files.
	DefaultFilePermissions = 0o600
)

// Store kinds.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Audio engines.
const (
	AudioPulse = "pulse"
	AudioNone  = "none"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errInvalidAutoSilence is returned for zero or negative auto-silence values other than never.
	errInvalidAutoSilence = errors.New("auto silence must be a positive number of minutes or never")
	// errInvalidStore is returned for an unknown store kind.
	errInvalidStore = errors.New("store must be file or sqlite")
	// errInvalidAudio is returned for an unknown audio engine.
	errInvalidAudio = errors.New("audio must be pulse or none")
	// errInvalidVolume is returned when volumes are out of range.
	errInvalidVolume = errors.New("alarm volume must be between 0 and max volume")
	// errInvalidSnooze is returned for a negative snooze duration.
	errInvalidSnooze = errors.New("snooze minutes must be positive")
	// errInvalidLogLevel is returned for an unknown log level.
	errInvalidLogLevel = errors.New("unknown log level")
	// errInvalidRampFloor is returned for a negative ramp floor.
	errInvalidRampFloor = errors.New("ramp floor must not be negative")
)

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := new(Config)

	// Defaults alone always validate.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes Config to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings and fills in defaults.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if settings.ListenAddress == "" {
		settings.ListenAddress = DefaultListenAddress
	}

	if _, err := net.ResolveTCPAddr("tcp", settings.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	if settings.MetricsAddress != "" {
		if _, err := net.ResolveTCPAddr("tcp", settings.MetricsAddress); err != nil {
			return fmt.Errorf("invalid metrics address: %w", err)
		}
	}

	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	switch {
	case settings.AutoSilence == 0:
		settings.AutoSilence = DefaultAutoSilence
	case settings.AutoSilence < 0 && settings.AutoSilence != Never:
		return errInvalidAutoSilence
	}

	if settings.SnoozeMinutes == 0 {
		settings.SnoozeMinutes = DefaultSnoozeMinutes
	}

	if settings.SnoozeMinutes < 0 {
		return errInvalidSnooze
	}

	if settings.RampFloor == 0 {
		settings.RampFloor = DefaultRampFloor
	}

	if settings.RampFloor < 0 {
		return errInvalidRampFloor
	}

	if err := validateStore(settings); err != nil {
		return err
	}

	if err := validateAudio(settings); err != nil {
		return err
	}

	if settings.LogLevel == "" {
		settings.LogLevel = DefaultLogLevel
	}

	if _, ok := logger.ParseLogLevel(settings.LogLevel); !ok {
		return fmt.Errorf("%q: %w", settings.LogLevel, errInvalidLogLevel)
	}

	return nil
}

func validateStore(settings *Config) error {
	if settings.Store == "" {
		settings.Store = StoreFile
	}

	switch settings.Store {
	case StoreFile:
		if settings.StateFile == "" {
			settings.StateFile = DefaultStateFilename
		}
	case StoreSQLite:
		if settings.SQLitePath == "" {
			settings.SQLitePath = DefaultSQLiteFilename
		}
	default:
		return fmt.Errorf("%q: %w", settings.Store, errInvalidStore)
	}

	return nil
}

func validateAudio(settings *Config) error {
	if settings.Audio == "" {
		settings.Audio = AudioNone
	}

	if settings.Audio != AudioPulse && settings.Audio != AudioNone {
		return fmt.Errorf("%q: %w", settings.Audio, errInvalidAudio)
	}

	if settings.MaxVolume == 0 {
		settings.MaxVolume = DefaultMaxVolume
	}

	if settings.AlarmVolume == 0 && settings.MaxVolume >= DefaultAlarmVolume {
		settings.AlarmVolume = DefaultAlarmVolume
	}

	if settings.MaxVolume < 0 || settings.AlarmVolume < 0 || settings.AlarmVolume > settings.MaxVolume {
		return errInvalidVolume
	}

	return nil
}
