package volume

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"micguard/internal/domain"
)

// Field names of the helper's text export.
const (
	fieldName          = "name"
	fieldType          = "type"
	fieldDirection     = "direction"
	fieldDeviceName    = "device name"
	fieldDefault       = "default"
	fieldItemID        = "item id"
	fieldVolumePercent = "volume percent"
)

// fallbackWindow bounds the scan after a "microphone" mention when no record
// carries the requested id.
const fallbackWindow = 20

// record is one block of `Key : Value` lines.
type record struct {
	fields map[string]string
	start  int
}

func (r record) get(key string) string {
	return r.fields[key]
}

// report is a parsed helper export, keeping raw lines for the fallback scan.
type report struct {
	lines   []string
	records []record
}

func parseReport(rd io.Reader) (report, error) {
	var (
		rep report
		cur *record
	)
	flush := func() {
		if cur != nil && len(cur.fields) > 0 {
			rep.records = append(rep.records, *cur)
		}
		cur = nil
	}

	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		line = strings.TrimPrefix(line, "\ufeff")
		rep.lines = append(rep.lines, line)
		idx := len(rep.lines) - 1

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isSeparator(trimmed) {
			flush()
			continue
		}
		key, value, ok := splitField(trimmed)
		if !ok {
			continue
		}
		if cur == nil {
			cur = &record{fields: map[string]string{}, start: idx}
		}
		if _, dup := cur.fields[key]; dup {
			flush()
			cur = &record{fields: map[string]string{}, start: idx}
		}
		cur.fields[key] = value
	}
	flush()
	return rep, sc.Err()
}

func isSeparator(s string) bool {
	return len(s) >= 3 && strings.Trim(s, "=") == ""
}

func splitField(line string) (string, string, bool) {
	i := strings.IndexByte(line, ':')
	if i <= 0 {
		return "", "", false
	}
	key := strings.ToLower(strings.TrimSpace(line[:i]))
	return key, strings.TrimSpace(line[i+1:]), key != ""
}

// parsePercent reads values like "75.0%" or "33.3" and rounds to the nearest integer.
func parsePercent(s string) (domain.Volume, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	s = strings.Replace(s, ",", ".", 1)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return domain.VolumeUnknown, false
	}
	v := int(math.Round(f))
	if v < 0 || v > 100 {
		return domain.VolumeUnknown, false
	}
	return domain.Volume(v), true
}

// volumeFor finds the record whose item id contains deviceID and returns its
// percentage. Only when no record matches does it scan up to fallbackWindow
// lines after the first "microphone" mention; a matching record without a
// usable percentage reads as unknown.
func (rep report) volumeFor(deviceID string) (domain.Volume, bool) {
	if deviceID != "" {
		matched := false
		for _, rec := range rep.records {
			if !containsFold(rec.get(fieldItemID), deviceID) {
				continue
			}
			matched = true
			if v, ok := parsePercent(rec.get(fieldVolumePercent)); ok {
				return v, true
			}
		}
		if matched {
			return domain.VolumeUnknown, false
		}
	}

	for i, line := range rep.lines {
		if !containsFold(line, "microphone") {
			continue
		}
		end := i + fallbackWindow
		if end >= len(rep.lines) {
			end = len(rep.lines) - 1
		}
		for j := i; j <= end; j++ {
			key, value, ok := splitField(strings.TrimSpace(rep.lines[j]))
			if ok && key == fieldVolumePercent {
				if v, ok := parsePercent(value); ok {
					return v, true
				}
			}
		}
		break
	}
	return domain.VolumeUnknown, false
}

// devices lists hardware device records in export order.
func (rep report) devices() []domain.DeviceInfo {
	out := make([]domain.DeviceInfo, 0, len(rep.records))
	for _, rec := range rep.records {
		id := rec.get(fieldItemID)
		if id == "" {
			continue
		}
		if typ := rec.get(fieldType); typ != "" && !strings.EqualFold(typ, "device") {
			continue
		}
		info := domain.DeviceInfo{
			ID:          id,
			Name:        rec.get(fieldName),
			Description: rec.get(fieldDeviceName),
			Direction:   parseDirection(rec.get(fieldDirection)),
		}
		info.DefaultCapture = info.Direction == domain.DirectionCapture && rec.get(fieldDefault) != ""
		out = append(out, info)
	}
	return out
}

func parseDirection(s string) domain.Direction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "capture":
		return domain.DirectionCapture
	case "render":
		return domain.DirectionRender
	default:
		return domain.DirectionUnknown
	}
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
