package usecase

import (
	"context"
	"fmt"
	"strings"

	"micguard/internal/domain"
	"micguard/internal/logging"
)

var (
	micNameHints     = []string{"microphone", "mic"}
	captureHintWords = []string{"capture", "input"}
)

// Resolver finds the capture device to guard.
type Resolver interface {
	Resolve(ctx context.Context, explicitID string) (domain.DeviceHandle, error)
}

// DeviceResolver resolves devices from a catalog, with a secondary class store
// for explicit ids. Enumeration order is always the platform's; nothing is sorted.
type DeviceResolver struct {
	catalog domain.DeviceCatalog
	store   domain.DeviceClassStore
	log     *logging.Logger
}

// NewDeviceResolver creates a resolver. store may be nil.
func NewDeviceResolver(catalog domain.DeviceCatalog, store domain.DeviceClassStore, log *logging.Logger) *DeviceResolver {
	return &DeviceResolver{catalog: catalog, store: store, log: log}
}

// Resolve returns the device whose id contains explicitID, or, when explicitID
// is empty, the best guess from the default/name/capture/first cascade.
func (r *DeviceResolver) Resolve(ctx context.Context, explicitID string) (domain.DeviceHandle, error) {
	explicitID = strings.TrimSpace(explicitID)
	if explicitID != "" {
		return r.resolveExplicit(ctx, explicitID)
	}
	return r.resolveCascade(ctx)
}

func (r *DeviceResolver) resolveExplicit(ctx context.Context, id string) (domain.DeviceHandle, error) {
	devices, err := r.catalog.Devices(ctx)
	if err != nil {
		r.log.Warnf("device enumeration failed: %v", err)
	}
	for _, d := range devices {
		if containsFold(d.ID, id) {
			return r.found(d, domain.ResolvedExplicitID), nil
		}
	}

	if r.store != nil {
		found, err := r.store.Search(ctx, id)
		if err != nil {
			r.log.Warnf("device store search failed: %v", err)
		}
		for _, d := range found {
			if containsFold(d.ID, id) {
				r.log.Debugf("device %q found only in device store", id)
				return r.found(d, domain.ResolvedExplicitID), nil
			}
		}
	}
	return domain.DeviceHandle{}, fmt.Errorf("%w: no device id contains %q", domain.ErrDeviceNotFound, id)
}

func (r *DeviceResolver) resolveCascade(ctx context.Context) (domain.DeviceHandle, error) {
	devices, err := r.catalog.Devices(ctx)
	if err != nil {
		return domain.DeviceHandle{}, fmt.Errorf("%w: %w", domain.ErrDeviceNotFound, err)
	}
	if len(devices) == 0 {
		return domain.DeviceHandle{}, fmt.Errorf("%w: no audio devices enumerated", domain.ErrDeviceNotFound)
	}

	for _, d := range devices {
		if d.DefaultCapture {
			return r.found(d, domain.ResolvedDefault), nil
		}
	}
	for _, d := range devices {
		if containsAny(d.Name, micNameHints) {
			return r.found(d, domain.ResolvedNameHeuristic), nil
		}
	}
	for _, d := range devices {
		if d.Direction == domain.DirectionCapture || containsAny(d.ID, captureHintWords) || containsAny(d.Description, captureHintWords) {
			return r.found(d, domain.ResolvedNameHeuristic), nil
		}
	}

	d := devices[0]
	r.log.Warnf("no capture-like device found; falling back to first device %q, which may not be a microphone", d.ID)
	return r.found(d, domain.ResolvedFirstAvailable), nil
}

func (r *DeviceResolver) found(d domain.DeviceInfo, method domain.ResolutionMethod) domain.DeviceHandle {
	name := d.Name
	if name == "" {
		name = d.Description
	}
	h := domain.DeviceHandle{ID: d.ID, DisplayName: name, Method: method}
	r.log.Debugf("resolved capture device %s via %s", h, method)
	return h
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if containsFold(s, sub) {
			return true
		}
	}
	return false
}
