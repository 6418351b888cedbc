//go:build integration

// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package steps

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ZSC714725/dropconvert/internal/config"
	"github.com/ZSC714725/dropconvert/internal/ffmpeg"
	"github.com/ZSC714725/dropconvert/internal/ffmpeg/parse"
	"github.com/ZSC714725/dropconvert/internal/notify"
	"github.com/ZSC714725/dropconvert/internal/task"

	"github.com/cucumber/godog"
)

// mockConverter records jobs and tracks how many conversions overlap
type mockConverter struct {
	mu      sync.Mutex
	jobs    []ffmpeg.Job
	fail    map[string]bool
	block   bool
	started chan struct{}
	active  int
	overlap bool
}

func (m *mockConverter) Convert(ctx context.Context, job ffmpeg.Job, onProgress func(parse.Progress)) error {
	m.mu.Lock()
	m.jobs = append(m.jobs, job)
	m.active++
	if m.active > 1 {
		m.overlap = true
	}
	fail := m.fail[job.Input]
	block := m.block
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()

	onProgress(parse.Progress{Name: job.Input, Known: true, Percent: 50})

	if block {
		select {
		case m.started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ffmpeg.ErrCancelled
	}
	if fail {
		return fmt.Errorf("%w: exit code 1", ffmpeg.ErrEncoderFailed)
	}
	return nil
}

func (m *mockConverter) inputs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, j := range m.jobs {
		out = append(out, j.Input)
	}
	return out
}

// queueContext holds test state for queue scenarios
type queueContext struct {
	converter *mockConverter
	settings  *config.Settings
	hub       *notify.Hub
	events    <-chan notify.Event
	stop      func()
	manager   *task.Manager
	drop      task.DropResult
	run       task.RunInfo
	jobsSeen  int
}

// SharedQueueContext is reset before each scenario via Before hook
var SharedQueueContext *queueContext

func getQueueContext() *queueContext {
	return SharedQueueContext
}

func InitializeQueueScenario(ctx *godog.ScenarioContext) {
	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		q := &queueContext{
			converter: &mockConverter{fail: make(map[string]bool), started: make(chan struct{}, 1)},
			settings:  config.NewSettings(config.Default().Convert),
			hub:       notify.NewHub(1024),
		}
		q.events, q.stop = q.hub.Subscribe()

		m, err := task.NewManager(task.Config{
			Converter:       q.converter,
			InputExtension:  ".mp4",
			Settings:        q.settings,
			OutputExtension: ".mp3",
			Notifier:        q.hub,
		})
		if err != nil {
			return c, err
		}
		q.manager = m
		SharedQueueContext = q
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if q := getQueueContext(); q != nil {
			q.manager.Close()
			q.stop()
		}
		SharedQueueContext = nil
		return c, nil
	})

	ctx.Step(`^the output directory is not set$`, theOutputDirectoryIsNotSet)
	ctx.Step(`^the output directory is "([^"]*)"$`, theOutputDirectoryIs)
	ctx.Step(`^the bitrate is (\d+)$`, theBitrateIs)
	ctx.Step(`^the converter fails for "([^"]*)"$`, theConverterFailsFor)
	ctx.Step(`^the converter stops failing$`, theConverterStopsFailing)
	ctx.Step(`^the converter blocks until cancelled$`, theConverterBlocksUntilCancelled)
	ctx.Step(`^I drop:$`, iDrop)
	ctx.Step(`^the files "([^"]*)" are queued$`, theFilesAreQueued)
	ctx.Step(`^(\d+) files? should be added$`, filesShouldBeAdded)
	ctx.Step(`^(\d+) files? should be rejected$`, filesShouldBeRejected)
	ctx.Step(`^(\d+) files? should be a duplicate$`, filesShouldBeDuplicate)
	ctx.Step(`^the list should contain (\d+) items?$`, theListShouldContain)
	ctx.Step(`^I start the conversion and wait for it to finish$`, iStartTheConversionAndWait)
	ctx.Step(`^I start the conversion and cancel it during the first file$`, iStartAndCancel)
	ctx.Step(`^the run should be "([^"]*)"$`, theRunShouldBe)
	ctx.Step(`^the summary should report (\d+) of (\d+) converted$`, theSummaryShouldReport)
	ctx.Step(`^"([^"]*)" should be "([^"]*)"$`, itemShouldBe)
	ctx.Step(`^"([^"]*)" should have been written to "([^"]*)"$`, shouldHaveBeenWrittenTo)
	ctx.Step(`^"([^"]*)" should have been written to "([^"]*)" at (\d+) kbps$`, shouldHaveBeenWrittenToAt)
	ctx.Step(`^no two files should have been converting at the same time$`, noOverlap)
	ctx.Step(`^only "([^"]*)" should have been converted again$`, onlyConvertedAgain)
	ctx.Step(`^only (\d+) files? should have been started$`, onlyStarted)
}

func theOutputDirectoryIsNotSet() error {
	getQueueContext().settings.ClearOutputDir()
	return nil
}

func theOutputDirectoryIs(dir string) error {
	getQueueContext().settings.SetOutputDir(dir)
	return nil
}

func theBitrateIs(kbps int) error {
	return getQueueContext().settings.SetBitrate(kbps)
}

func theConverterFailsFor(path string) error {
	c := getQueueContext().converter
	c.mu.Lock()
	c.fail[path] = true
	c.mu.Unlock()
	return nil
}

func theConverterStopsFailing() error {
	q := getQueueContext()
	q.converter.mu.Lock()
	q.converter.fail = make(map[string]bool)
	q.jobsSeen = len(q.converter.jobs)
	q.converter.mu.Unlock()
	return nil
}

func theConverterBlocksUntilCancelled() error {
	c := getQueueContext().converter
	c.mu.Lock()
	c.block = true
	c.mu.Unlock()
	return nil
}

func iDrop(doc *godog.DocString) error {
	q := getQueueContext()
	res, err := q.manager.Drop(strings.TrimSpace(doc.Content))
	q.drop = res
	return err
}

func theFilesAreQueued(list string) error {
	q := getQueueContext()
	var paths []string
	for _, p := range strings.Split(list, ",") {
		paths = append(paths, strings.TrimSpace(p))
	}
	res, err := q.manager.Add(paths...)
	if err != nil {
		return err
	}
	if res.Added != len(paths) {
		return fmt.Errorf("added %d of %d files", res.Added, len(paths))
	}
	return nil
}

func expectCount(what string, got, want int) error {
	if got != want {
		return fmt.Errorf("expected %d %s, got %d", want, what, got)
	}
	return nil
}

func filesShouldBeAdded(n int) error {
	return expectCount("added", getQueueContext().drop.Added, n)
}

func filesShouldBeRejected(n int) error {
	return expectCount("rejected", getQueueContext().drop.Rejected, n)
}

func filesShouldBeDuplicate(n int) error {
	return expectCount("duplicates", getQueueContext().drop.Duplicates, n)
}

func theListShouldContain(n int) error {
	return expectCount("items", len(getQueueContext().manager.Items()), n)
}

func wait(q *queueContext) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	run, err := q.manager.Wait(ctx)
	if err != nil {
		return fmt.Errorf("run did not finish: %w", err)
	}
	q.run = run
	return nil
}

func iStartTheConversionAndWait() error {
	q := getQueueContext()
	if err := q.manager.Start(); err != nil {
		return err
	}
	return wait(q)
}

func iStartAndCancel() error {
	q := getQueueContext()
	if err := q.manager.Start(); err != nil {
		return err
	}
	select {
	case <-q.converter.started:
	case <-time.After(10 * time.Second):
		return fmt.Errorf("first file never started")
	}
	if err := q.manager.Cancel(); err != nil {
		return err
	}
	return wait(q)
}

func theRunShouldBe(state string) error {
	if got := string(getQueueContext().run.State); got != state {
		return fmt.Errorf("expected run %q, got %q", state, got)
	}
	return nil
}

func theSummaryShouldReport(completed, total int) error {
	s := getQueueContext().run.Summary
	if s.Completed != completed || s.Total != total {
		return fmt.Errorf("expected %d of %d converted, got %d of %d", completed, total, s.Completed, s.Total)
	}
	return nil
}

func itemShouldBe(path, status string) error {
	item, err := getQueueContext().manager.Item(path)
	if err != nil {
		return err
	}
	if string(item.Status) != status {
		return fmt.Errorf("expected %s to be %q, got %q", path, status, item.Status)
	}
	return nil
}

func findJob(input string) (ffmpeg.Job, error) {
	c := getQueueContext().converter
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, j := range c.jobs {
		if j.Input == input {
			return j, nil
		}
	}
	return ffmpeg.Job{}, fmt.Errorf("%s was never converted", input)
}

func shouldHaveBeenWrittenTo(input, output string) error {
	job, err := findJob(input)
	if err != nil {
		return err
	}
	if job.Output != output {
		return fmt.Errorf("expected output %s, got %s", output, job.Output)
	}
	return nil
}

func shouldHaveBeenWrittenToAt(input, output string, kbps int) error {
	if err := shouldHaveBeenWrittenTo(input, output); err != nil {
		return err
	}
	job, _ := findJob(input)
	return expectCount("kbps", job.Bitrate, kbps)
}

func noOverlap() error {
	q := getQueueContext()

	q.converter.mu.Lock()
	overlap := q.converter.overlap
	q.converter.mu.Unlock()
	if overlap {
		return fmt.Errorf("two conversions ran at once")
	}

	running := make(map[string]bool)
	for {
		select {
		case e := <-q.events:
			item, ok := e.Data.(task.Item)
			if !ok || e.Type != notify.ItemUpdated {
				continue
			}
			if item.Status == task.StatusRunning {
				running[item.Path] = true
			} else {
				delete(running, item.Path)
			}
			if len(running) > 1 {
				return fmt.Errorf("%d items running at once", len(running))
			}
		default:
			return nil
		}
	}
}

func onlyConvertedAgain(path string) error {
	q := getQueueContext()
	inputs := q.converter.inputs()[q.jobsSeen:]
	if len(inputs) != 1 || inputs[0] != path {
		return fmt.Errorf("expected only %s to be converted again, got %v", path, inputs)
	}
	return nil
}

func onlyStarted(n int) error {
	return expectCount("started conversions", len(getQueueContext().converter.inputs()), n)
}
