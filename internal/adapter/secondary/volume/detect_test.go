package volume

import (
	"errors"
	"testing"

	"micguard/internal/domain"
)

func fakeLookPath(found ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		for _, f := range found {
			if f == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", errors.New("not found")
	}
}

func TestDetect(t *testing.T) {
	cfg := domain.DefaultMonitorConfig()
	cases := []struct {
		name  string
		opts  DetectOptions
		found []string
		want  string
	}{
		{name: "explicit memory", opts: DetectOptions{Backend: "memory"}, want: "memory"},
		{name: "explicit pactl", opts: DetectOptions{Backend: "pactl"}, want: "pactl"},
		{name: "darwin osascript", opts: DetectOptions{Backend: "auto", goos: "darwin"}, found: []string{"osascript"}, want: "osascript"},
		{name: "linux pactl", opts: DetectOptions{Backend: "auto", goos: "linux"}, found: []string{"pactl"}, want: "pactl"},
		{name: "helper wins when installed", opts: DetectOptions{Backend: "auto", goos: "linux", HelperPath: "/opt/svv"}, found: []string{"pactl", "/opt/svv"}, want: "helper"},
		{name: "windows falls back to helper", opts: DetectOptions{Backend: "auto", goos: "windows", HelperPath: `C:\svv.exe`}, want: "helper"},
		{name: "linux without pactl", opts: DetectOptions{Backend: "auto", goos: "linux"}, want: "helper"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.opts.Config = cfg
			tc.opts.lookPath = fakeLookPath(tc.found...)
			if got := Detect(tc.opts).Name(); got != tc.want {
				t.Fatalf("want %s, got %s", tc.want, got)
			}
		})
	}
}
