// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrInvalidBitrate is returned for a bitrate outside the offered set.
var ErrInvalidBitrate = errors.New("invalid bitrate")

// Values is a point-in-time copy of the user settings.
type Values struct {
	// OutputDir is empty when output goes next to each input file.
	OutputDir string `json:"output_dir"`
	Bitrate   int    `json:"bitrate"`
	Bitrates  []int  `json:"bitrates"`
}

// Settings 用户可修改的运行时设置（仅内存）
type Settings struct {
	mu        sync.RWMutex
	outputDir string
	bitrate   int
	bitrates  []int
}

// NewSettings seeds the runtime settings from the loaded config.
func NewSettings(c ConvertConfig) *Settings {
	bitrates := make([]int, len(c.Bitrates))
	copy(bitrates, c.Bitrates)

	return &Settings{
		outputDir: strings.TrimSpace(c.OutputDir),
		bitrate:   c.Bitrate,
		bitrates:  bitrates,
	}
}

// Snapshot returns the current values.
func (s *Settings) Snapshot() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bitrates := make([]int, len(s.bitrates))
	copy(bitrates, s.bitrates)

	return Values{OutputDir: s.outputDir, Bitrate: s.bitrate, Bitrates: bitrates}
}

// SetOutputDir sets the output directory. A blank value restores the default
// of writing next to each input.
func (s *Settings) SetOutputDir(dir string) {
	s.mu.Lock()
	s.outputDir = strings.TrimSpace(dir)
	s.mu.Unlock()
}

// ClearOutputDir restores the default output location.
func (s *Settings) ClearOutputDir() {
	s.SetOutputDir("")
}

// SetBitrate sets the bitrate in kbps.
func (s *Settings) SetBitrate(kbps int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !containsInt(s.bitrates, kbps) {
		return fmt.Errorf("%w: %d (allowed %v)", ErrInvalidBitrate, kbps, s.bitrates)
	}
	s.bitrate = kbps
	return nil
}
