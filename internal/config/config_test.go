package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"micguard/internal/domain"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	v := NewViper(dir)

	s, err := Load(v, filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.ConfigFile != "" {
		t.Errorf("ConfigFile: want empty, got %q", s.ConfigFile)
	}
	if s.Monitor.TargetVolume != 100 || s.Monitor.PollingInterval != 5*time.Second {
		t.Errorf("unexpected defaults %+v", s.Monitor)
	}
	if s.Monitor.MaxFailures != 10 || s.Monitor.CooldownMultiplier != 5 || s.Monitor.ResolveAfterFailures != 5 {
		t.Errorf("unexpected policy defaults %+v", s.Monitor)
	}
	if s.Monitor.ReadTimeout != 8*time.Second || s.Monitor.WriteTimeout != 10*time.Second {
		t.Errorf("unexpected timeouts %+v", s.Monitor)
	}
	if s.LogFile != filepath.Join(dir, "micguard.log") {
		t.Errorf("LogFile: got %s", s.LogFile)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, "config.json", `{
  "TargetDeviceId": "{0.0.1.00000000}.{abc}",
  "TargetVolume": 85,
  "PollingIntervalSeconds": 3,
  "Verbose": true
}`)

	s, err := Load(NewViper(t.TempDir()), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m := s.Monitor
	if m.TargetDeviceID != "{0.0.1.00000000}.{abc}" || m.TargetVolume != 85 || m.PollingInterval != 3*time.Second || !m.Verbose {
		t.Fatalf("file values not applied: %+v", m)
	}
	if s.ConfigFile != path {
		t.Errorf("ConfigFile: want %s, got %s", path, s.ConfigFile)
	}
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", "targetVolume: 85\npollingIntervalSeconds: 3\n")

	v := NewViper(t.TempDir())
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.Int("volume", 100, "")
	fs.Int("interval", 5, "")
	if err := fs.Parse([]string{"--volume", "70"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	_ = v.BindPFlag(KeyTargetVolume, fs.Lookup("volume"))
	_ = v.BindPFlag(KeyPollingInterval, fs.Lookup("interval"))

	s, err := Load(v, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Monitor.TargetVolume != 70 {
		t.Errorf("flag should win: got %d", s.Monitor.TargetVolume)
	}
	// Unchanged flag must not mask the file value.
	if s.Monitor.PollingInterval != 3*time.Second {
		t.Errorf("file interval lost: got %v", s.Monitor.PollingInterval)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", "targetVolume: 85\n")
	t.Setenv("MICGUARD_TARGETVOLUME", "60")

	s, err := Load(NewViper(t.TempDir()), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Monitor.TargetVolume != 60 {
		t.Errorf("env should win over file: got %d", s.Monitor.TargetVolume)
	}
}

func TestLoad_RejectsOutOfRangeVolume(t *testing.T) {
	for _, vol := range []string{"0", "101", "-5"} {
		path := writeConfig(t, "config.yaml", "targetVolume: "+vol+"\n")
		_, err := Load(NewViper(t.TempDir()), path)
		if !errors.Is(err, domain.ErrInvalidVolume) {
			t.Errorf("volume %s: want ErrInvalidVolume, got %v", vol, err)
		}
	}
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, "config.yaml", "backend: pipewire-magic\n")
	if _, err := Load(NewViper(t.TempDir()), path); err == nil || !strings.Contains(err.Error(), "backend") {
		t.Fatalf("want backend error, got %v", err)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeConfig(t, "config.json", "{not json")
	if _, err := Load(NewViper(t.TempDir()), path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestWriteFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(NewViper(dir), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s.Monitor.TargetVolume = 42

	for _, name := range []string{"config.json", "config.yaml"} {
		path := filepath.Join(dir, name)
		if err := WriteFile(path, s, false); err != nil {
			t.Fatalf("WriteFile %s: %v", name, err)
		}
		if err := WriteFile(path, s, false); err == nil {
			t.Fatalf("%s: expected exists error", name)
		}
		got, err := Load(NewViper(dir), path)
		if err != nil {
			t.Fatalf("reload %s: %v", name, err)
		}
		if got.Monitor.TargetVolume != 42 {
			t.Errorf("%s: want 42, got %d", name, got.Monitor.TargetVolume)
		}
	}
}
