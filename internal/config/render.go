package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileView is the on-disk shape of the configuration.
type fileView struct {
	TargetDeviceID         string `yaml:"targetDeviceId" json:"targetDeviceId"`
	TargetVolume           int    `yaml:"targetVolume" json:"targetVolume"`
	PollingIntervalSeconds int    `yaml:"pollingIntervalSeconds" json:"pollingIntervalSeconds"`
	Verbose                bool   `yaml:"verbose" json:"verbose"`
	MaxFailures            int    `yaml:"maxFailures" json:"maxFailures"`
	ResolveAfterFailures   int    `yaml:"resolveAfterFailures" json:"resolveAfterFailures"`
	CooldownMultiplier     int    `yaml:"cooldownMultiplier" json:"cooldownMultiplier"`
	ReadTimeoutSeconds     int    `yaml:"readTimeoutSeconds" json:"readTimeoutSeconds"`
	WriteTimeoutSeconds    int    `yaml:"writeTimeoutSeconds" json:"writeTimeoutSeconds"`
	SettleDelayMillis      int    `yaml:"settleDelayMillis" json:"settleDelayMillis"`
	Backend                string `yaml:"backend" json:"backend"`
	HelperPath             string `yaml:"helperPath" json:"helperPath"`
	LogFile                string `yaml:"logFile" json:"logFile"`
	JournalPath            string `yaml:"journalPath" json:"journalPath"`
	StatusFile             string `yaml:"statusFile" json:"statusFile"`
	LockPath               string `yaml:"lockPath" json:"lockPath"`
	StatusAddr             string `yaml:"statusAddr" json:"statusAddr"`
	InstancePolicy         string `yaml:"instancePolicy" json:"instancePolicy"`
}

func view(s Settings) fileView {
	m := s.Monitor
	return fileView{
		TargetDeviceID:         m.TargetDeviceID,
		TargetVolume:           m.TargetVolume,
		PollingIntervalSeconds: int(m.PollingInterval.Seconds()),
		Verbose:                m.Verbose,
		MaxFailures:            m.MaxFailures,
		ResolveAfterFailures:   m.ResolveAfterFailures,
		CooldownMultiplier:     m.CooldownMultiplier,
		ReadTimeoutSeconds:     int(m.ReadTimeout.Seconds()),
		WriteTimeoutSeconds:    int(m.WriteTimeout.Seconds()),
		SettleDelayMillis:      int(m.SettleDelay.Milliseconds()),
		Backend:                s.Backend,
		HelperPath:             s.HelperPath,
		LogFile:                s.LogFile,
		JournalPath:            s.JournalPath,
		StatusFile:             s.StatusFile,
		LockPath:               s.LockPath,
		StatusAddr:             s.StatusAddr,
		InstancePolicy:         s.InstancePolicy,
	}
}

// RenderYAML returns the effective settings as YAML.
func RenderYAML(s Settings) ([]byte, error) {
	out, err := yaml.Marshal(view(s))
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}

// WriteFile writes s to path atomically, as JSON for a .json path and YAML
// otherwise. The file must not exist unless force is set.
func WriteFile(path string, s Settings, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(view(s), "", "  ")
	} else {
		data, err = RenderYAML(s)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename tmp: %w", err)
	}
	return nil
}
