package panel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/rbright/yakutan/internal/assemble"
	"github.com/rbright/yakutan/internal/fields"
	"github.com/rbright/yakutan/internal/fsm"
	"github.com/rbright/yakutan/internal/indicator"
	"github.com/rbright/yakutan/internal/localstore"
)

// DefaultDebounce is the quiet period before a change burst is saved.
const DefaultDebounce = 200 * time.Millisecond

// Sync debounces field changes into save cycles.
//
// A cycle writes the assembled configuration to the local store, then pushes
// it to the service, then restarts the service when a restart-tagged field
// was part of the cycle and the service is running. At most one cycle is in
// flight; changes that arrive during a cycle re-arm the debounce when it ends.
type Sync struct {
	ctx     context.Context
	form    *fields.Form
	store   *localstore.Store
	service Service
	report  *reporter
	restart func(context.Context) error
	logger  *slog.Logger

	debounced func(func())

	mu       sync.Mutex
	state    fsm.State
	pending  fields.Reload
	dirty    bool
	idle     chan struct{}
	lastSave time.Time
	lastErr  error
	cycles   int
}

func newSync(
	ctx context.Context,
	delay time.Duration,
	form *fields.Form,
	store *localstore.Store,
	service Service,
	report *reporter,
	restart func(context.Context) error,
) *Sync {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	idle := make(chan struct{})
	close(idle)
	return &Sync{
		ctx:       ctx,
		form:      form,
		store:     store,
		service:   service,
		report:    report,
		restart:   restart,
		logger:    report.logger,
		debounced: debounce.New(delay),
		state:     fsm.StateIdle,
		idle:      idle,
	}
}

// State returns the current save-cycle state.
func (s *Sync) State() fsm.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastSync reports when the last cycle finished and how it ended.
func (s *Sync) LastSync() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSave, s.lastErr
}

// Cycles returns how many save cycles have run.
func (s *Sync) Cycles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}

// Changed records one field change and (re)arms the debounce.
func (s *Sync) Changed(change fields.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fsm.Transition(s.state, fsm.EventChange)
	if err != nil {
		s.logger.Error("save cycle rejected change", "field", change.Field, "error", err.Error())
		return
	}
	s.pending = s.pending.Merge(change.Reload)
	if next == fsm.StateSaving {
		s.dirty = true
		return
	}
	s.setState(next)
	s.debounced(s.fire)
}

// SaveNow runs a cycle immediately and announces success to the user.
func (s *Sync) SaveNow(ctx context.Context) error {
	return s.flush(ctx, fields.ReloadUnknown, true)
}

// WaitIdle blocks until no cycle is pending or in flight.
func (s *Sync) WaitIdle(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.state == fsm.StateIdle {
			s.mu.Unlock()
			return nil
		}
		wait := s.idle
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// Flush saves a pending change immediately and returns once no cycle is
// in flight.
func (s *Sync) Flush(ctx context.Context) error {
	for {
		s.mu.Lock()
		switch s.state {
		case fsm.StateIdle:
			s.mu.Unlock()
			return nil
		case fsm.StatePendingSave:
			s.mu.Unlock()
			return s.flush(ctx, fields.ReloadUnknown, false)
		}
		wait := s.idle
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// flush waits out an in-flight cycle and then saves without debouncing.
func (s *Sync) flush(ctx context.Context, reload fields.Reload, announce bool) error {
	for {
		s.mu.Lock()
		if s.state == fsm.StateSaving {
			wait := s.idle
			s.mu.Unlock()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-wait:
			}
			continue
		}

		next, err := fsm.Transition(s.state, fsm.EventFlush)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.setState(next)
		reload = reload.Merge(s.take())
		s.mu.Unlock()
		return s.cycle(ctx, reload, announce)
	}
}

// fire is the debounce callback.
func (s *Sync) fire() {
	s.mu.Lock()
	next, err := fsm.Transition(s.state, fsm.EventTimerFire)
	if err != nil {
		// A flush already took this cycle.
		s.mu.Unlock()
		return
	}
	s.setState(next)
	reload := s.take()
	s.mu.Unlock()

	_ = s.cycle(s.ctx, reload, false)
}

func (s *Sync) cycle(ctx context.Context, reload fields.Reload, announce bool) error {
	err := s.save(ctx, reload, announce)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	s.lastSave = time.Now()
	s.lastErr = err

	next, _ := fsm.Transition(s.state, fsm.EventSaveDone)
	s.setState(next)
	if s.dirty {
		s.dirty = false
		next, _ = fsm.Transition(s.state, fsm.EventChange)
		s.setState(next)
		s.debounced(s.fire)
	}
	return err
}

// take returns and clears the merged reload tag. Callers hold s.mu.
func (s *Sync) take() fields.Reload {
	reload := s.pending
	s.pending = fields.ReloadUnknown
	return reload
}

// setState moves the machine and maintains the idle channel. Callers hold s.mu.
func (s *Sync) setState(next fsm.State) {
	wasIdle := s.state == fsm.StateIdle
	s.state = next
	switch {
	case wasIdle && next != fsm.StateIdle:
		s.idle = make(chan struct{})
	case !wasIdle && next == fsm.StateIdle:
		close(s.idle)
	}
}

func (s *Sync) save(ctx context.Context, reload fields.Reload, announce bool) error {
	cfg := assemble.Assemble(s.form)

	var persistErr error
	if err := s.store.SaveConfig(ctx, cfg); err != nil {
		persistErr = s.report.fail(ctx, &OpError{
			Op:        "save",
			Kind:      ErrPersistenceFailed,
			MessageID: "msg.localSaveFailed",
			Text:      s.report.t("msg.localSaveFailed", nil),
			Err:       err,
		})
	}

	res, err := s.service.SetConfig(ctx, cfg)
	if err != nil {
		kind := transportKind(err, ErrSyncFailed)
		id := "msg.saveConfigFailed"
		if errors.Is(kind, ErrNetworkUnavailable) {
			id = "msg.networkUnavailable"
		}
		return errors.Join(persistErr, s.report.fail(ctx, &OpError{
			Op:        "save",
			Kind:      kind,
			MessageID: id,
			Text:      s.report.t(id, nil),
			Err:       err,
		}))
	}
	if !res.Success {
		return errors.Join(persistErr, s.report.fail(ctx, &OpError{
			Op:        "save",
			Kind:      ErrSyncFailed,
			MessageID: res.MessageID,
			Message:   res.Message,
			Text:      s.report.t("msg.saveConfigFailed", nil) + ": " + s.report.localize(res.MessageID, res.Message),
		}))
	}

	s.logger.Info("configuration synced",
		"reload", reload.String(),
		"backend", cfg.ASR.Backend,
		"api_type", cfg.Translation.Provider.Encode(),
	)
	if announce && persistErr == nil {
		s.report.notice(ctx, indicator.LevelSuccess, s.report.t("msg.configSaved", nil))
	}

	status, err := s.service.Status(ctx)
	if err != nil {
		s.logger.Debug("status after save failed", "error", err.Error())
		return persistErr
	}
	if status.Running && reload == fields.ReloadRestart {
		_ = s.restart(ctx)
	}
	return persistErr
}
