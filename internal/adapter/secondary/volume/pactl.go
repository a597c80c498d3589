package volume

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"micguard/internal/domain"
)

var percentRe = regexp.MustCompile(`(\d+)%`)

// PactlBackend controls PulseAudio/PipeWire sources through the pactl tool.
type PactlBackend struct {
	bin          string
	readTimeout  time.Duration
	writeTimeout time.Duration
	runner       *runner
}

// NewPactlBackend creates a backend using the pactl binary (looked up on PATH).
func NewPactlBackend(cfg domain.MonitorConfig) *PactlBackend {
	return &PactlBackend{
		bin:          "pactl",
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		runner:       newRunner(cfg.SettleDelay, "LC_ALL=C"),
	}
}

func (p *PactlBackend) Name() string {
	return "pactl"
}

func (p *PactlBackend) call(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	return p.runner.run(ctx, helperCall{name: p.bin, args: args, timeout: timeout})
}

// Devices lists sources in server order and flags the default source.
func (p *PactlBackend) Devices(ctx context.Context) ([]domain.DeviceInfo, error) {
	out, err := p.call(ctx, p.readTimeout, "list", "sources")
	if err != nil {
		return nil, err
	}
	devices := parseSources(out)

	// get-default-source needs pactl >= 15; without it there is simply no default.
	if def, err := p.call(ctx, p.readTimeout, "get-default-source"); err == nil {
		name := strings.TrimSpace(string(def))
		for i := range devices {
			if devices[i].ID == name && devices[i].Direction == domain.DirectionCapture {
				devices[i].DefaultCapture = true
			}
		}
	}
	return devices, nil
}

// ReadVolume returns the lowest channel percentage of the source.
func (p *PactlBackend) ReadVolume(ctx context.Context, device domain.DeviceHandle) (domain.Volume, error) {
	out, err := p.call(ctx, p.readTimeout, "get-source-volume", device.ID)
	if err != nil {
		return domain.VolumeUnknown, fmt.Errorf("%w: %w", domain.ErrVolumeUnknown, err)
	}
	v, ok := lowestPercent(string(out))
	if !ok {
		return domain.VolumeUnknown, fmt.Errorf("%w: unparsable pactl output %q", domain.ErrVolumeUnknown, strings.TrimSpace(string(out)))
	}
	return v, nil
}

// SetVolume sets every channel of the source to percent.
func (p *PactlBackend) SetVolume(ctx context.Context, device domain.DeviceHandle, percent int) error {
	if percent < 1 || percent > 100 {
		return fmt.Errorf("%w: %w", domain.ErrVolumeSetFailed, domain.ErrInvalidVolume)
	}
	if _, err := p.call(ctx, p.writeTimeout, "set-source-volume", device.ID, fmt.Sprintf("%d%%", percent)); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrVolumeSetFailed, err)
	}
	return nil
}

// parseSources reads `pactl list sources` blocks.
func parseSources(out []byte) []domain.DeviceInfo {
	var (
		devices []domain.DeviceInfo
		cur     *domain.DeviceInfo
	)
	flush := func() {
		if cur != nil && cur.ID != "" {
			devices = append(devices, *cur)
		}
		cur = nil
	}

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "Source #") {
			flush()
			cur = &domain.DeviceInfo{Direction: domain.DirectionCapture}
			continue
		}
		if cur == nil {
			continue
		}
		switch {
		case strings.HasPrefix(line, "Name:"):
			cur.ID = strings.TrimSpace(strings.TrimPrefix(line, "Name:"))
			if strings.HasSuffix(cur.ID, ".monitor") {
				cur.Direction = domain.DirectionRender
			}
		case strings.HasPrefix(line, "Description:"):
			cur.Name = strings.TrimSpace(strings.TrimPrefix(line, "Description:"))
		case strings.HasPrefix(line, "device.description") && cur.Description == "":
			if _, v, ok := strings.Cut(line, "="); ok {
				cur.Description = strings.Trim(strings.TrimSpace(v), `"`)
			}
		}
	}
	flush()
	return devices
}

func lowestPercent(s string) (domain.Volume, bool) {
	matches := percentRe.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return domain.VolumeUnknown, false
	}
	lowest := -1
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if lowest < 0 || n < lowest {
			lowest = n
		}
	}
	if lowest < 0 {
		return domain.VolumeUnknown, false
	}
	// Software gain above 100% still satisfies any target.
	if lowest > 100 {
		lowest = 100
	}
	return domain.Volume(lowest), true
}
