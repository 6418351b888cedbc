// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package task

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ZSC714725/dropconvert/internal/config"
	"github.com/ZSC714725/dropconvert/internal/ffmpeg"
	"github.com/ZSC714725/dropconvert/internal/ffmpeg/parse"
	"github.com/ZSC714725/dropconvert/internal/notify"
)

// fakeConverter records jobs and fails the inputs listed in fail. With
// block set it waits for cancellation after signalling started.
type fakeConverter struct {
	mu      sync.Mutex
	jobs    []ffmpeg.Job
	fail    map[string]error
	block   bool
	started chan string
}

func (f *fakeConverter) Convert(ctx context.Context, job ffmpeg.Job, onProgress func(parse.Progress)) error {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	err := f.fail[job.Input]
	f.mu.Unlock()

	for _, pct := range []float64{10, 50, parse.MaxPercent} {
		onProgress(parse.Progress{Name: job.Input, Known: true, Percent: pct, Text: fmt.Sprintf("%s %v", job.Input, pct)})
	}

	if f.started != nil {
		f.started <- job.Input
	}
	if f.block {
		<-ctx.Done()
		return fmt.Errorf("%w: %w", ffmpeg.ErrCancelled, ctx.Err())
	}
	return err
}

func (f *fakeConverter) Inputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, j := range f.jobs {
		out = append(out, j.Input)
	}
	return out
}

func testSettings() *config.Settings {
	return config.NewSettings(config.ConvertConfig{Bitrates: []int{128, 192}, Bitrate: 192})
}

func newTestManager(t *testing.T, conv Converter, n notify.Notifier) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Converter:       conv,
		InputExtension:  ".mp4",
		Settings:        testSettings(),
		OutputExtension: ".mp3",
		Notifier:        n,
	})
	if err != nil {
		t.Fatalf("NewManager() unexpected error: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func waitRun(t *testing.T, m *Manager) RunInfo {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	info, err := m.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() unexpected error: %v", err)
	}
	return info
}

func statuses(m *Manager) map[string]Status {
	out := make(map[string]Status)
	for _, item := range m.Items() {
		out[item.Path] = item.Status
	}
	return out
}

func drain(ch <-chan notify.Event) []notify.Event {
	var events []notify.Event
	for {
		select {
		case e := <-ch:
			events = append(events, e)
		default:
			return events
		}
	}
}

func TestManagerDrop(t *testing.T) {
	m := newTestManager(t, &fakeConverter{}, nil)

	res, err := m.Drop("{/in/a b.mp4} /in/c.mp4 /in/x.mp3 /in/c.mp4")
	if err != nil {
		t.Fatalf("Drop() unexpected error: %v", err)
	}
	want := DropResult{Added: 2, Rejected: 1, Duplicates: 1, Total: 2}
	if res != want {
		t.Errorf("Drop() = %+v, want %+v", res, want)
	}
	if got := m.Run().Status; got != "2 file(s) added (total 2)" {
		t.Errorf("status = %q", got)
	}

	res, _ = m.Drop("/in/only.mkv")
	if res.Added != 0 || res.Rejected != 1 {
		t.Errorf("Drop() = %+v, want one rejection", res)
	}
	if got := m.Run().Status; got != "1 file(s) rejected: only .mp4 files are accepted" {
		t.Errorf("status = %q", got)
	}

	items := m.Items()
	if len(items) != 2 || items[0].Path != "/in/a b.mp4" || items[1].Path != "/in/c.mp4" {
		t.Errorf("Items() = %+v, want drop order", items)
	}
}

func TestManagerRunSuccess(t *testing.T) {
	hub := notify.NewHub(1024)
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	conv := &fakeConverter{}
	m := newTestManager(t, conv, hub)
	m.Add("/in/1.mp4", "/in/2.mp4", "/in/3.mp4")

	if err := m.Start(); err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}
	info := waitRun(t, m)

	if info.State != RunCompleted {
		t.Errorf("State = %q, want completed", info.State)
	}
	if info.Progress != 100 {
		t.Errorf("Progress = %v, want 100", info.Progress)
	}
	if info.Summary != (Summary{Total: 3, Completed: 3}) {
		t.Errorf("Summary = %+v", info.Summary)
	}
	if info.Status != "done: 3/3 file(s) converted" {
		t.Errorf("Status = %q", info.Status)
	}
	if want := []string{"/in/1.mp4", "/in/2.mp4", "/in/3.mp4"}; !reflect.DeepEqual(conv.Inputs(), want) {
		t.Errorf("conversion order = %q, want %q", conv.Inputs(), want)
	}
	for path, st := range statuses(m) {
		if st != StatusDone {
			t.Errorf("%s status = %q, want done", path, st)
		}
	}

	// replay notifications: never two items running, progress monotonic
	// below 100 within an item
	running := make(map[string]bool)
	last := -1.0
	var sawSummary bool
	for _, e := range drain(events) {
		switch e.Type {
		case notify.ItemUpdated:
			item := e.Data.(Item)
			if item.Status == StatusRunning {
				running[item.Path] = true
				last = -1
			} else {
				delete(running, item.Path)
			}
			if len(running) > 1 {
				t.Fatalf("%d items running at once", len(running))
			}
		case notify.RunProgress:
			run := e.Data.(RunInfo)
			if run.Current == "" {
				continue
			}
			if run.Progress < last || run.Progress >= 100 {
				t.Errorf("progress %v after %v while converting", run.Progress, last)
			}
			last = run.Progress
		case notify.RunSummary:
			sawSummary = true
		case notify.RunCancel:
			t.Error("unexpected cancellation notice")
		}
	}
	if !sawSummary {
		t.Error("no run summary published")
	}
}

func TestManagerErrorIsolation(t *testing.T) {
	conv := &fakeConverter{fail: map[string]error{
		"/in/2.mp4": fmt.Errorf("%w: exit code 1", ffmpeg.ErrEncoderFailed),
	}}
	m := newTestManager(t, conv, nil)
	m.Add("/in/1.mp4", "/in/2.mp4", "/in/3.mp4")

	if err := m.Start(); err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}
	info := waitRun(t, m)

	if info.Summary.Completed != 2 || info.Summary.Total != 3 || info.Summary.Failed != 1 {
		t.Errorf("Summary = %+v, want 2 of 3", info.Summary)
	}
	want := map[string]Status{"/in/1.mp4": StatusDone, "/in/2.mp4": StatusError, "/in/3.mp4": StatusDone}
	if got := statuses(m); !reflect.DeepEqual(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
	if item, _ := m.Item("/in/2.mp4"); item.Error == "" {
		t.Error("failed item has no error text")
	}
}

func TestManagerRetry(t *testing.T) {
	conv := &fakeConverter{fail: map[string]error{
		"/in/2.mp4": ffmpeg.ErrEncoderFailed,
	}}
	m := newTestManager(t, conv, nil)
	m.Add("/in/1.mp4", "/in/2.mp4")

	m.Start()
	waitRun(t, m)

	m.Add("/in/3.mp4")
	conv.mu.Lock()
	conv.jobs = nil
	conv.fail = nil
	conv.mu.Unlock()

	if err := m.Start(); err != nil {
		t.Fatalf("second Start() unexpected error: %v", err)
	}
	info := waitRun(t, m)

	if want := []string{"/in/2.mp4", "/in/3.mp4"}; !reflect.DeepEqual(conv.Inputs(), want) {
		t.Errorf("retried = %q, want %q", conv.Inputs(), want)
	}
	if info.Summary != (Summary{Total: 2, Completed: 2}) {
		t.Errorf("Summary = %+v", info.Summary)
	}
}

func TestManagerAllDone(t *testing.T) {
	conv := &fakeConverter{}
	m := newTestManager(t, conv, nil)
	m.Add("/in/1.mp4")
	m.Start()
	waitRun(t, m)

	if err := m.Start(); err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}
	info := waitRun(t, m)
	if info.State != RunCompleted || info.Summary.Total != 0 {
		t.Errorf("run = %+v, want an empty completed run", info)
	}
	if got := len(conv.Inputs()); got != 1 {
		t.Errorf("converted %d times, want 1", got)
	}
}

func TestManagerCancel(t *testing.T) {
	hub := notify.NewHub(1024)
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	conv := &fakeConverter{block: true, started: make(chan string, 1)}
	m := newTestManager(t, conv, hub)
	m.Add("/in/1.mp4", "/in/2.mp4")

	if err := m.Start(); err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}

	select {
	case <-conv.started:
	case <-time.After(10 * time.Second):
		t.Fatal("conversion did not start")
	}

	if err := m.Cancel(); err != nil {
		t.Fatalf("Cancel() unexpected error: %v", err)
	}
	info := waitRun(t, m)

	if info.State != RunCancelled {
		t.Errorf("State = %q, want cancelled", info.State)
	}
	if info.Progress != 0 {
		t.Errorf("Progress = %v, want 0", info.Progress)
	}
	if got := conv.Inputs(); len(got) != 1 {
		t.Errorf("converted %q, want only the first item", got)
	}
	want := map[string]Status{"/in/1.mp4": StatusPending, "/in/2.mp4": StatusPending}
	if got := statuses(m); !reflect.DeepEqual(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}

	var sawCancel bool
	for _, e := range drain(events) {
		switch e.Type {
		case notify.RunSummary:
			t.Error("summary published for a cancelled run")
		case notify.RunCancel:
			sawCancel = true
		}
	}
	if !sawCancel {
		t.Error("no cancellation notice published")
	}

	if err := m.Cancel(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Cancel() after run = %v, want ErrNotRunning", err)
	}
}

func TestManagerGuards(t *testing.T) {
	conv := &fakeConverter{block: true, started: make(chan string, 1)}
	m := newTestManager(t, conv, nil)

	if err := m.Start(); !errors.Is(err, ErrNoItems) {
		t.Errorf("Start() on empty list = %v, want ErrNoItems", err)
	}
	if err := m.Cancel(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Cancel() while idle = %v, want ErrNotRunning", err)
	}

	m.Add("/in/1.mp4", "/in/2.mp4")
	if err := m.Start(); err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}
	<-conv.started

	if err := m.Start(); !errors.Is(err, ErrRunActive) {
		t.Errorf("Start() while running = %v, want ErrRunActive", err)
	}
	if _, err := m.Remove("/in/2.mp4"); !errors.Is(err, ErrRunActive) {
		t.Errorf("Remove() while running = %v, want ErrRunActive", err)
	}
	if got := len(m.Items()); got != 2 {
		t.Errorf("Items() = %d after rejected remove, want 2", got)
	}

	// drops during a run are accepted and wait for the next run
	if res, _ := m.Add("/in/3.mp4"); res.Added != 1 {
		t.Errorf("Add() during run = %+v", res)
	}

	m.Cancel()
	waitRun(t, m)

	n, err := m.Remove("/in/2.mp4")
	if err != nil || n != 1 {
		t.Errorf("Remove() after run = %d, %v", n, err)
	}
	if _, err := m.Item("/in/2.mp4"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Item() after remove = %v, want ErrNotFound", err)
	}
}

func TestManagerEncoderNotFound(t *testing.T) {
	hub := notify.NewHub(1024)
	events, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	conv := &fakeConverter{fail: map[string]error{
		"/in/1.mp4": fmt.Errorf("%w: ffmpeg", ffmpeg.ErrEncoderNotFound),
	}}
	m := newTestManager(t, conv, hub)
	m.Add("/in/1.mp4", "/in/2.mp4")

	m.Start()
	info := waitRun(t, m)

	if info.Summary.Completed != 1 {
		t.Errorf("Summary = %+v, want the second item converted", info.Summary)
	}
	if got := statuses(m)["/in/1.mp4"]; got != StatusError {
		t.Errorf("status = %q, want error", got)
	}

	var fatal int
	for _, e := range drain(events) {
		if e.Type == notify.Fatal {
			fatal++
		}
	}
	if fatal != 1 {
		t.Errorf("got %d fatal notices, want 1", fatal)
	}
}

func TestManagerSettingsPerItem(t *testing.T) {
	conv := &fakeConverter{}
	settings := testSettings()
	m, err := NewManager(Config{Converter: conv, Settings: settings})
	if err != nil {
		t.Fatalf("NewManager() unexpected error: %v", err)
	}
	defer m.Close()

	settings.SetOutputDir("/out")
	if err := settings.SetBitrate(128); err != nil {
		t.Fatalf("SetBitrate() unexpected error: %v", err)
	}
	m.Add("/in/video.mp4")
	m.Start()
	waitRun(t, m)

	conv.mu.Lock()
	defer conv.mu.Unlock()
	want := ffmpeg.Job{Input: "/in/video.mp4", Output: "/out/video.mp3", Bitrate: 128}
	if len(conv.jobs) != 1 || conv.jobs[0] != want {
		t.Errorf("jobs = %+v, want %+v", conv.jobs, want)
	}

	item, _ := m.Item("/in/video.mp4")
	if item.Output != "/out/video.mp3" {
		t.Errorf("item output = %q", item.Output)
	}
}

func TestManagerCloseCancelsRun(t *testing.T) {
	conv := &fakeConverter{block: true, started: make(chan string, 1)}
	m, err := NewManager(Config{Converter: conv, Settings: testSettings()})
	if err != nil {
		t.Fatalf("NewManager() unexpected error: %v", err)
	}
	m.Add("/in/1.mp4")
	m.Start()
	<-conv.started

	done := make(chan struct{})
	go func() {
		m.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Close() did not return")
	}

	if err := m.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close = %v, want ErrClosed", err)
	}
	if _, err := m.Add("/in/2.mp4"); !errors.Is(err, ErrClosed) {
		t.Errorf("Add() after Close = %v, want ErrClosed", err)
	}

	run := m.Run()
	if run.State != RunCancelled {
		t.Errorf("Run().State after Close = %q, want %q", run.State, RunCancelled)
	}
	items := m.Items()
	if len(items) != 1 || items[0].Status != StatusPending {
		t.Errorf("Items() after Close = %+v, want the pending item", items)
	}
	if _, err := m.Item("/in/1.mp4"); err != nil {
		t.Errorf("Item() after Close unexpected error: %v", err)
	}
	select {
	case <-m.Done():
	default:
		t.Error("Done() after Close is not closed")
	}
}
