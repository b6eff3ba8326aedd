package panel

import (
	"context"
	"sync"
	"time"

	"github.com/rbright/yakutan/internal/fields"
	"github.com/rbright/yakutan/internal/remote"
)

const (
	DefaultStatusInterval = 2 * time.Second
	DefaultDeviceInterval = 5 * time.Second
)

// StatusSnapshot is the last polled service status.
type StatusSnapshot struct {
	Running   bool
	CheckedAt time.Time
	Err       error
}

// DeviceSnapshot is the last polled input-device list.
type DeviceSnapshot struct {
	Devices   []remote.Device
	Selected  *int
	Default   *int
	CheckedAt time.Time
	Err       error
}

// Status returns the last polled status.
func (p *Panel) Status() StatusSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Devices returns the last polled device list.
func (p *Panel) Devices() DeviceSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.devices
	out.Devices = append([]remote.Device(nil), p.devices.Devices...)
	return out
}

// RefreshStatus polls the service once and mirrors the result into the
// controls. Failures are logged and kept in the snapshot, never shown.
func (p *Panel) RefreshStatus(ctx context.Context) StatusSnapshot {
	st, err := p.service.Status(ctx)
	snap := StatusSnapshot{CheckedAt: time.Now(), Err: err}
	if err != nil {
		p.logger.Debug("status poll failed", "error", err.Error())
		p.mu.Lock()
		snap.Running = p.status.Running
		p.status = snap
		p.mu.Unlock()
		return snap
	}

	snap.Running = st.Running
	p.controls.Observe(st.Running)
	p.mu.Lock()
	p.status = snap
	p.mu.Unlock()
	return snap
}

// RefreshDevices polls the input-device list once.
//
// The current selection is kept while the device is still listed; otherwise
// the service's selection is taken, and failing that the system default.
// The selection is updated in place and never starts a save cycle.
func (p *Panel) RefreshDevices(ctx context.Context) DeviceSnapshot {
	list, err := p.service.InputDevices(ctx)
	if err != nil {
		p.logger.Debug("device poll failed", "error", err.Error())
		p.mu.Lock()
		p.devices.Err = err
		p.devices.CheckedAt = time.Now()
		p.mu.Unlock()
		return p.Devices()
	}
	if list.Error != "" {
		p.logger.Warn("service reported device error", "error", list.Error)
	}

	selected := pickDevice(list, p.form.OptionalInt(fields.MicDevice))
	var value any
	if selected != nil {
		value = *selected
	}
	_ = p.form.Set(fields.MicDevice, value)

	p.mu.Lock()
	p.devices = DeviceSnapshot{
		Devices:   list.Devices,
		Selected:  selected,
		Default:   list.DefaultIndex,
		CheckedAt: time.Now(),
	}
	p.mu.Unlock()
	return p.Devices()
}

func pickDevice(list remote.DeviceList, current *int) *int {
	listed := func(idx *int) bool {
		if idx == nil {
			return false
		}
		for _, d := range list.Devices {
			if d.Index == *idx {
				return true
			}
		}
		return false
	}

	switch {
	case listed(current):
		return current
	case listed(list.SelectedIndex):
		idx := *list.SelectedIndex
		return &idx
	default:
		return nil
	}
}

// Run polls status and devices until ctx is done. Non-positive intervals
// fall back to the defaults.
func (p *Panel) Run(ctx context.Context, statusEvery, devicesEvery time.Duration) {
	if statusEvery <= 0 {
		statusEvery = DefaultStatusInterval
	}
	if devicesEvery <= 0 {
		devicesEvery = DefaultDeviceInterval
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.pollStatus(ctx, statusEvery)
	}()
	go func() {
		defer wg.Done()
		p.pollDevices(ctx, devicesEvery)
	}()
	wg.Wait()
}

func (p *Panel) pollStatus(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	p.RefreshStatus(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.wake:
		}
		p.RefreshStatus(ctx)
	}
}

func (p *Panel) pollDevices(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	p.RefreshDevices(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RefreshDevices(ctx)
		}
	}
}
