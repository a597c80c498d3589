package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"micguard/internal/domain"
)

// Keys understood in the configuration file, the environment (MICGUARD_ prefix)
// and bound flags. Viper keys are case-insensitive so files written with
// TargetDeviceId-style names load unchanged.
const (
	KeyTargetDeviceID       = "targetDeviceId"
	KeyTargetVolume         = "targetVolume"
	KeyPollingInterval      = "pollingIntervalSeconds"
	KeyVerbose              = "verbose"
	KeyMaxFailures          = "maxFailures"
	KeyResolveAfterFailures = "resolveAfterFailures"
	KeyCooldownMultiplier   = "cooldownMultiplier"
	KeyReadTimeout          = "readTimeoutSeconds"
	KeyWriteTimeout         = "writeTimeoutSeconds"
	KeySettleDelay          = "settleDelayMillis"

	KeyBackend        = "backend"
	KeyHelperPath     = "helperPath"
	KeyLogFile        = "logFile"
	KeyJournalPath    = "journalPath"
	KeyStatusFile     = "statusFile"
	KeyLockPath       = "lockPath"
	KeyStatusAddr     = "statusAddr"
	KeyInstancePolicy = "instancePolicy"
)

// EnvPrefix is prepended to upper-cased keys when reading the environment.
const EnvPrefix = "MICGUARD"

// Settings is everything loaded at startup: the monitor configuration plus the
// paths and adapter choices used to wire it.
type Settings struct {
	Monitor domain.MonitorConfig

	Backend        string
	HelperPath     string
	LogFile        string
	JournalPath    string
	StatusFile     string
	LockPath       string
	StatusAddr     string
	InstancePolicy string

	// ConfigFile is the file that was read, empty when none existed.
	ConfigFile string
}

// NewViper returns a viper instance with defaults and environment binding applied.
func NewViper(dir string) *viper.Viper {
	v := viper.New()
	SetDefaults(v, dir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers built-in defaults, with state files under dir.
func SetDefaults(v *viper.Viper, dir string) {
	d := domain.DefaultMonitorConfig()
	v.SetDefault(KeyTargetDeviceID, "")
	v.SetDefault(KeyTargetVolume, d.TargetVolume)
	v.SetDefault(KeyPollingInterval, int(d.PollingInterval/time.Second))
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyMaxFailures, d.MaxFailures)
	v.SetDefault(KeyResolveAfterFailures, d.ResolveAfterFailures)
	v.SetDefault(KeyCooldownMultiplier, d.CooldownMultiplier)
	v.SetDefault(KeyReadTimeout, int(d.ReadTimeout/time.Second))
	v.SetDefault(KeyWriteTimeout, int(d.WriteTimeout/time.Second))
	v.SetDefault(KeySettleDelay, int(d.SettleDelay/time.Millisecond))

	v.SetDefault(KeyBackend, "auto")
	v.SetDefault(KeyHelperPath, DefaultHelperPath())
	v.SetDefault(KeyLogFile, StatePath(dir, "micguard.log"))
	v.SetDefault(KeyJournalPath, StatePath(dir, "journal.db"))
	v.SetDefault(KeyStatusFile, StatePath(dir, "status.json"))
	v.SetDefault(KeyLockPath, StatePath(dir, "micguard.lock"))
	v.SetDefault(KeyStatusAddr, "")
	v.SetDefault(KeyInstancePolicy, "exclusive")
}

// Load reads path (if it exists) into v and returns validated settings.
// Flags bound to v before Load take precedence over the file.
func Load(v *viper.Viper, path string) (Settings, error) {
	var used string
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) && !isNotFound(err) {
				return Settings{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else {
			used = path
		}
	}

	s := Settings{
		Monitor: domain.MonitorConfig{
			TargetDeviceID:       strings.TrimSpace(v.GetString(KeyTargetDeviceID)),
			TargetVolume:         v.GetInt(KeyTargetVolume),
			PollingInterval:      time.Duration(v.GetInt(KeyPollingInterval)) * time.Second,
			Verbose:              v.GetBool(KeyVerbose),
			MaxFailures:          v.GetInt(KeyMaxFailures),
			ResolveAfterFailures: v.GetInt(KeyResolveAfterFailures),
			CooldownMultiplier:   v.GetInt(KeyCooldownMultiplier),
			ReadTimeout:          time.Duration(v.GetInt(KeyReadTimeout)) * time.Second,
			WriteTimeout:         time.Duration(v.GetInt(KeyWriteTimeout)) * time.Second,
			SettleDelay:          time.Duration(v.GetInt(KeySettleDelay)) * time.Millisecond,
		},
		Backend:        strings.ToLower(v.GetString(KeyBackend)),
		HelperPath:     v.GetString(KeyHelperPath),
		LogFile:        v.GetString(KeyLogFile),
		JournalPath:    v.GetString(KeyJournalPath),
		StatusFile:     v.GetString(KeyStatusFile),
		LockPath:       v.GetString(KeyLockPath),
		StatusAddr:     v.GetString(KeyStatusAddr),
		InstancePolicy: strings.ToLower(v.GetString(KeyInstancePolicy)),
		ConfigFile:     used,
	}

	if err := Validate(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func isNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	if errors.As(err, &nf) {
		return true
	}
	return errors.Is(err, os.ErrNotExist)
}
