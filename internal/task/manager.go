// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ZSC714725/dropconvert/internal/config"
	"github.com/ZSC714725/dropconvert/internal/ffmpeg"
	"github.com/ZSC714725/dropconvert/internal/ffmpeg/parse"
	"github.com/ZSC714725/dropconvert/internal/logger"
	"github.com/ZSC714725/dropconvert/internal/notify"
	"github.com/ZSC714725/dropconvert/internal/pathlist"
)

// RunState of a conversion run
type RunState string

const (
	RunIdle      RunState = "idle"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunCancelled RunState = "cancelled"
)

// Summary counts the items of one run.
type Summary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// RunInfo is a snapshot of the run state.
type RunInfo struct {
	State     RunState  `json:"state"`
	Current   string    `json:"current,omitempty"`
	Progress  float64   `json:"progress"`
	Status    string    `json:"status"`
	Summary   Summary   `json:"summary"`
	StartedAt time.Time `json:"started_at,omitempty"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// DropResult reports what happened to a batch of dropped paths.
type DropResult struct {
	Added      int `json:"added"`
	Rejected   int `json:"rejected"`
	Duplicates int `json:"duplicates"`
	Total      int `json:"total"`
}

// Converter runs one conversion and blocks until it ends.
type Converter interface {
	Convert(ctx context.Context, job ffmpeg.Job, onProgress func(parse.Progress)) error
}

// SettingsSource provides the settings used for the next item.
type SettingsSource interface {
	Snapshot() config.Values
}

// Config for the Manager
type Config struct {
	Converter Converter
	// InputExtension is the accepted input extension, e.g. ".mp4".
	InputExtension string
	// Accept filters dropped paths. Nil accepts InputExtension only.
	Accept   ffmpeg.Validator
	Settings SettingsSource
	// OutputExtension including the leading dot, e.g. ".mp3".
	OutputExtension string
	Notifier        notify.Notifier
	Logger          logger.Logger
}

// Manager owns the item registry and the run state. All of it is accessed
// from a single goroutine; public methods hand closures to that goroutine
// and the worker reports back through messages.
type Manager struct {
	registry  *Registry
	converter Converter
	settings  SettingsSource
	inExt     string
	outExt    string
	notifier  notify.Notifier
	logger    logger.Logger

	cmds     chan func()
	msgs     chan message
	quit     chan struct{}
	loopDone chan struct{}
	quitOnce sync.Once

	// owned by loop
	run       RunInfo
	cancel    context.CancelFunc
	cancelled bool
	runDone   chan struct{}
}

// NewManager creates a Manager and starts its loop. Call Close to stop it.
func NewManager(config Config) (*Manager, error) {
	if config.Converter == nil {
		return nil, errors.New("task: no converter")
	}
	if config.Settings == nil {
		return nil, errors.New("task: no settings")
	}

	m := &Manager{
		converter: config.Converter,
		settings:  config.Settings,
		inExt:     config.InputExtension,
		outExt:    config.OutputExtension,
		notifier:  config.Notifier,
		logger:    config.Logger,
		cmds:      make(chan func()),
		msgs:      make(chan message),
		quit:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		run:       RunInfo{State: RunIdle, Status: "drop video files to convert"},
	}

	if m.inExt == "" {
		m.inExt = ".mp4"
	}
	accept := config.Accept
	if accept == nil {
		v, err := ffmpeg.NewExtensionValidator(m.inExt)
		if err != nil {
			return nil, err
		}
		accept = v
	}
	m.registry = NewRegistry(accept)

	if m.outExt == "" {
		m.outExt = ".mp3"
	}
	if m.notifier == nil {
		m.notifier = notify.Nop()
	}
	if m.logger == nil {
		m.logger = logger.Nop()
	}

	go m.loop()

	return m, nil
}

func (m *Manager) loop() {
	defer close(m.loopDone)

	for {
		select {
		case fn := <-m.cmds:
			fn()
		case msg := <-m.msgs:
			m.handle(msg)
		case <-m.quit:
			if m.run.State == RunRunning {
				m.cancelled = true
				m.cancel()
				for m.run.State == RunRunning {
					m.handle(<-m.msgs)
				}
			}
			return
		}
	}
}

// do runs fn on the loop goroutine and waits for it.
func (m *Manager) do(fn func()) error {
	done := make(chan struct{})
	select {
	case m.cmds <- func() { fn(); close(done) }:
	case <-m.loopDone:
		return ErrClosed
	}
	<-done
	return nil
}

// view runs the read-only fn on the loop goroutine, or directly once the
// loop has stopped and no longer touches the state.
func (m *Manager) view(fn func()) {
	if err := m.do(fn); err != nil {
		fn()
	}
}

// Close cancels an active run, waits for the worker to finish and stops
// the loop.
func (m *Manager) Close() {
	m.quitOnce.Do(func() { close(m.quit) })
	<-m.loopDone
}

func (m *Manager) publish(t notify.Type, message string, data interface{}) {
	m.notifier.Publish(notify.Event{Type: t, Message: message, Data: data})
}

func (m *Manager) setStatus(text string) {
	m.run.Status = text
	m.publish(notify.Status, text, nil)
}

// Drop splits a raw drop string into paths and adds them.
func (m *Manager) Drop(raw string) (DropResult, error) {
	return m.Add(pathlist.Parse(raw)...)
}

// Add registers paths. Paths already present count as duplicates, paths
// with the wrong extension as rejected.
func (m *Manager) Add(paths ...string) (DropResult, error) {
	var res DropResult
	err := m.do(func() {
		for _, path := range paths {
			switch {
			case m.registry.Add(path):
				res.Added++
				item, _ := m.registry.Get(path)
				m.publish(notify.ItemAdded, "", item)
			case m.registry.Contains(path):
				res.Duplicates++
			default:
				res.Rejected++
			}
		}
		res.Total = m.registry.Len()

		switch {
		case res.Added > 0:
			m.setStatus(fmt.Sprintf("%d file(s) added (total %d)", res.Added, res.Total))
		case res.Rejected > 0:
			m.setStatus(fmt.Sprintf("%d file(s) rejected: only %s files are accepted", res.Rejected, m.inExt))
		case res.Duplicates > 0:
			m.setStatus(fmt.Sprintf("%d file(s) already in the list", res.Duplicates))
		}
	})
	if err != nil {
		return DropResult{}, err
	}
	if res.Added > 0 {
		m.logger.Info("added %d file(s), %d rejected, %d duplicate", res.Added, res.Rejected, res.Duplicates)
	}
	return res, nil
}

// Remove deletes items by path or ID. It fails with ErrRunActive while a
// run is in progress and returns the number of removed items.
func (m *Manager) Remove(keys ...string) (int, error) {
	var n int
	var rerr error
	err := m.do(func() {
		if m.run.State == RunRunning {
			rerr = ErrRunActive
			return
		}
		removed := m.registry.Remove(keys)
		for _, item := range removed {
			m.publish(notify.ItemRemoved, "", item)
		}
		n = len(removed)
		if n > 0 {
			m.setStatus(fmt.Sprintf("%d file(s) removed (total %d)", n, m.registry.Len()))
		}
	})
	if err != nil {
		return 0, err
	}
	return n, rerr
}

// Items returns all items in display order. After Close it returns the
// items as they were when the manager stopped.
func (m *Manager) Items() []Item {
	var items []Item
	m.view(func() { items = m.registry.Items() })
	return items
}

// Item returns the item with the given path or ID.
func (m *Manager) Item(key string) (Item, error) {
	var item Item
	var found bool
	m.view(func() { item, found = m.registry.Get(key) })
	if !found {
		return Item{}, ErrNotFound
	}
	return item, nil
}

// Run returns a snapshot of the current or last run. After Close it is
// the final state of the last run.
func (m *Manager) Run() RunInfo {
	var info RunInfo
	m.view(func() { info = m.run })
	return info
}

// Start begins a run over every pending and failed item.
func (m *Manager) Start() error {
	var serr error
	if err := m.do(func() { serr = m.start() }); err != nil {
		return err
	}
	return serr
}

func (m *Manager) start() error {
	if m.run.State == RunRunning {
		return ErrRunActive
	}
	if m.registry.Len() == 0 {
		return ErrNoItems
	}

	queue, reset := m.registry.Queue()
	for _, item := range reset {
		m.publish(notify.ItemUpdated, "", item)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.cancelled = false
	m.runDone = make(chan struct{})
	m.run = RunInfo{
		State:     RunRunning,
		Summary:   Summary{Total: len(queue)},
		StartedAt: time.Now(),
	}
	m.publish(notify.RunStarted, "", m.run)
	m.setStatus(fmt.Sprintf("converting %d file(s)", len(queue)))
	m.logger.Info("run started with %d file(s)", len(queue))

	go m.work(ctx, queue)

	return nil
}

// Cancel stops the active run. The running encoder is killed and the item
// it was converting goes back to pending.
func (m *Manager) Cancel() error {
	var cerr error
	err := m.do(func() {
		if m.run.State != RunRunning {
			cerr = ErrNotRunning
			return
		}
		if m.cancelled {
			return
		}
		m.cancelled = true
		m.cancel()
		m.setStatus("cancelling")
		m.logger.Info("run cancel requested")
	})
	if err != nil {
		return err
	}
	return cerr
}

// Done returns a channel that is closed when the current run ends. It is
// nil if no run was ever started.
func (m *Manager) Done() <-chan struct{} {
	var ch chan struct{}
	m.view(func() { ch = m.runDone })
	return ch
}

// Wait blocks until the current run ends and returns its final state.
func (m *Manager) Wait(ctx context.Context) (RunInfo, error) {
	done := m.Done()
	if done == nil {
		return m.Run(), nil
	}
	select {
	case <-done:
		return m.Run(), nil
	case <-ctx.Done():
		return RunInfo{}, ctx.Err()
	}
}
