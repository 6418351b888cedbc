// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package main

import (
	"fmt"

	"github.com/ZSC714725/dropconvert/internal/config"
	"github.com/ZSC714725/dropconvert/internal/ffmpeg"
	"github.com/ZSC714725/dropconvert/internal/logger"
	"github.com/ZSC714725/dropconvert/internal/notify"
	"github.com/ZSC714725/dropconvert/internal/task"
)

// app is the wired core shared by both front ends.
type app struct {
	ffmpeg   ffmpeg.FFmpeg
	settings *config.Settings
	hub      *notify.Hub
	manager  *task.Manager
}

// newApp wires the encoder, settings and manager. conv replaces the ffmpeg
// converter when not nil.
func newApp(c *config.Config, conv task.Converter, log logger.Logger) (*app, error) {
	validator, err := ffmpeg.NewExtensionValidator(c.Convert.InputExtension)
	if err != nil {
		return nil, fmt.Errorf("input extension: %w", err)
	}

	ff, err := ffmpeg.New(ffmpeg.Config{
		Binary:         c.FFmpeg.Path,
		ProbeBinary:    c.FFmpeg.ProbePath,
		Codec:          c.Convert.Codec,
		SampleRate:     c.Convert.SampleRate,
		MaxLogLines:    c.FFmpeg.LogLines,
		ValidatorInput: validator,
		Logger:         log,
	})
	if err != nil {
		return nil, fmt.Errorf("ffmpeg init: %w", err)
	}
	if conv == nil {
		conv = ff
	}

	a := &app{
		ffmpeg:   ff,
		settings: config.NewSettings(c.Convert),
		hub:      notify.NewHub(256, notify.WithLogger(log)),
	}

	a.manager, err = task.NewManager(task.Config{
		Converter:       conv,
		InputExtension:  c.Convert.InputExtension,
		Accept:          validator,
		Settings:        a.settings,
		OutputExtension: c.Convert.OutputExtension,
		Notifier:        a.hub,
		Logger:          log,
	})
	if err != nil {
		return nil, err
	}

	return a, nil
}

func (a *app) Close() {
	a.manager.Close()
}
