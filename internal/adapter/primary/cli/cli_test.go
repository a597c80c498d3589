package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"micguard/internal/adapter/secondary/repository"
	"micguard/internal/domain"
)

func writeTestConfig(t *testing.T, backend string) string {
	t.Helper()
	dir := t.TempDir()
	cfg := map[string]any{
		"TargetVolume":           100,
		"PollingIntervalSeconds": 1,
		"backend":                backend,
		"logFile":                filepath.Join(dir, "micguard.log"),
		"journalPath":            filepath.Join(dir, "journal.db"),
		"statusFile":             filepath.Join(dir, "status.json"),
		"lockPath":               filepath.Join(dir, "micguard.lock"),
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	sessionLevel = nil
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestOnce_CorrectsAndJournals(t *testing.T) {
	cfg := writeTestConfig(t, "memory")

	out, err := execute(t, "--config", cfg, "once")
	if err != nil {
		t.Fatalf("once: %v", err)
	}
	var st repository.StatusView
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if st.Device == nil || st.Device.ID != "memory-mic" || st.Device.Method != "default-detected" {
		t.Fatalf("unexpected device %+v", st.Device)
	}
	if st.LastCycle == nil || st.LastCycle.Outcome != "corrected" || st.LastCycle.Before != 50 {
		t.Fatalf("unexpected cycle %+v", st.LastCycle)
	}

	out, err = execute(t, "--config", cfg, "history", "--json")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var events []repository.JournalEvent
	if err := json.Unmarshal([]byte(out), &events); err != nil {
		t.Fatalf("decode history %q: %v", out, err)
	}
	if len(events) != 1 || events[0].Outcome != "corrected" || events[0].DeviceID != "memory-mic" {
		t.Fatalf("unexpected history %+v", events)
	}
}

func TestDevices_FlagOverridesFile(t *testing.T) {
	cfg := writeTestConfig(t, "helper")

	out, err := execute(t, "--config", cfg, "--backend", "memory", "devices")
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	if !strings.Contains(out, "memory-speakers") || !strings.Contains(out, "memory-mic") {
		t.Fatalf("devices missing from %q", out)
	}
	if !strings.Contains(out, "Microphone (memory-mic) [default-detected]") {
		t.Fatalf("resolver choice missing from %q", out)
	}
}

func TestGetAndSet(t *testing.T) {
	cfg := writeTestConfig(t, "memory")

	out, err := execute(t, "--config", cfg, "get")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(out, "Microphone (memory-mic): 50% (target 100%)") {
		t.Fatalf("unexpected get output %q", out)
	}

	if _, err := execute(t, "--config", cfg, "set", "80"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := execute(t, "--config", cfg, "set", "101"); !errors.Is(err, domain.ErrInvalidVolume) {
		t.Fatalf("want ErrInvalidVolume, got %v", err)
	}
	if _, err := execute(t, "--config", cfg, "set", "loud"); err == nil {
		t.Fatal("want parse error")
	}
	if _, err := execute(t, "--config", cfg, "--device", "nonexistent-id-xyz", "get"); !errors.Is(err, domain.ErrDeviceNotFound) {
		t.Fatalf("want ErrDeviceNotFound, got %v", err)
	}
}

func TestConfigShowAndInit(t *testing.T) {
	cfg := writeTestConfig(t, "memory")

	out, err := execute(t, "--config", cfg, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	for _, want := range []string{"# " + cfg, "targetVolume: 100", "pollingIntervalSeconds: 1", "backend: memory"} {
		if !strings.Contains(out, want) {
			t.Fatalf("%q missing from %q", want, out)
		}
	}

	fresh := filepath.Join(t.TempDir(), "micguard.yaml")
	if _, err := execute(t, "--config", fresh, "config", "init"); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("config not written: %v", err)
	}
	if _, err := execute(t, "--config", fresh, "config", "init"); err == nil {
		t.Fatal("second init without --force should fail")
	}
	if _, err := execute(t, "--config", fresh, "config", "init", "--force"); err != nil {
		t.Fatalf("config init --force: %v", err)
	}
}

func TestConfig_InvalidVolumeIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"TargetVolume": 0, "backend": "memory"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "--config", path, "config", "show"); !errors.Is(err, domain.ErrInvalidVolume) {
		t.Fatalf("want ErrInvalidVolume, got %v", err)
	}
}

func TestStatus_NotRunning(t *testing.T) {
	cfg := writeTestConfig(t, "memory")
	out, err := execute(t, "--config", cfg, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "起動していません") {
		t.Fatalf("unexpected status output %q", out)
	}
}

func TestHandleShellLog(t *testing.T) {
	sessionLevel = nil
	defer func() { sessionLevel = nil }()

	if err := handleShellLog([]string{"--level", "warn"}); err != nil {
		t.Fatalf("log --level: %v", err)
	}
	if currentLevelName() != "warn" {
		t.Fatalf("level = %s", currentLevelName())
	}
	if err := handleShellLog([]string{"-v"}); err != nil {
		t.Fatalf("log -v: %v", err)
	}
	if currentLevelName() != "debug" {
		t.Fatalf("level = %s", currentLevelName())
	}
	if err := handleShellLog([]string{"--level", "loud"}); err == nil {
		t.Fatal("want error for unknown level")
	}
}
