// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZSC714725/dropconvert/internal/ffmpeg"
	"github.com/ZSC714725/dropconvert/internal/ffmpeg/parse"
	"github.com/ZSC714725/dropconvert/internal/notify"
)

// messages sent from the worker to the loop
type message interface{}

type itemStarted struct {
	path string
	job  ffmpeg.Job
}

type itemProgress struct {
	path     string
	progress parse.Progress
}

type itemFinished struct {
	path string
	err  error
}

// itemAbandoned is sent for the item that was interrupted by a cancel.
type itemAbandoned struct {
	path string
}

type runEnded struct {
	cancelled bool
}

// work drains queue one item at a time. It only reads the converter and
// the settings, everything else goes through m.msgs.
func (m *Manager) work(ctx context.Context, queue []string) {
	for _, path := range queue {
		if ctx.Err() != nil {
			break
		}

		job := NewJob(path, m.settings.Snapshot(), m.outExt)
		m.msgs <- itemStarted{path: path, job: job}

		err := m.converter.Convert(ctx, job, func(p parse.Progress) {
			m.msgs <- itemProgress{path: path, progress: p}
		})
		if ctx.Err() != nil {
			m.msgs <- itemAbandoned{path: path}
			break
		}
		m.msgs <- itemFinished{path: path, err: err}
	}

	m.msgs <- runEnded{cancelled: ctx.Err() != nil}
}

func (m *Manager) handle(msg message) {
	switch msg := msg.(type) {
	case itemStarted:
		m.registry.SetResult(msg.path, msg.job.Output, "")
		item, _ := m.registry.SetStatus(msg.path, StatusRunning)
		m.run.Current = msg.path
		m.run.Progress = 0
		m.publish(notify.ItemUpdated, "", item)
		m.publish(notify.RunProgress, "", m.run)
		m.setStatus("converting: " + item.Name)

	case itemProgress:
		if msg.progress.Known {
			m.run.Progress = msg.progress.Percent
		}
		m.run.Status = msg.progress.Text
		m.publish(notify.RunProgress, msg.progress.Text, m.run)

	case itemFinished:
		var item Item
		if msg.err == nil {
			item, _ = m.registry.SetStatus(msg.path, StatusDone)
			m.run.Summary.Completed++
			m.logger.Info("converted %s", msg.path)
		} else {
			item, _ = m.registry.SetStatus(msg.path, StatusError)
			m.registry.SetResult(msg.path, item.Output, msg.err.Error())
			item.Error = msg.err.Error()
			m.run.Summary.Failed++
			m.logger.Error("convert %s: %v", msg.path, msg.err)

			if errors.Is(msg.err, ffmpeg.ErrEncoderNotFound) {
				text := "ffmpeg not found: install it and add it to PATH"
				m.publish(notify.Fatal, text, item)
				m.run.Status = text
			}
		}
		m.run.Current = ""
		m.run.Progress = 0
		m.publish(notify.ItemUpdated, "", item)
		m.publish(notify.RunProgress, "", m.run)

	case itemAbandoned:
		item, _ := m.registry.SetStatus(msg.path, StatusPending)
		m.publish(notify.ItemUpdated, "", item)

	case runEnded:
		m.cancel()
		m.run.Current = ""
		m.run.EndedAt = time.Now()
		if msg.cancelled {
			m.run.State = RunCancelled
			m.run.Progress = 0
			m.publish(notify.RunCancel, "conversion cancelled", m.run)
			m.setStatus("conversion cancelled")
			m.logger.Info("run cancelled after %d/%d file(s)", m.run.Summary.Completed, m.run.Summary.Total)
		} else {
			m.run.State = RunCompleted
			m.run.Progress = 100
			text := fmt.Sprintf("done: %d/%d file(s) converted", m.run.Summary.Completed, m.run.Summary.Total)
			m.publish(notify.RunSummary, text, m.run)
			m.setStatus(text)
			m.logger.Info("run finished: %d/%d converted", m.run.Summary.Completed, m.run.Summary.Total)
		}
		close(m.runDone)
	}
}
