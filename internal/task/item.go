// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package task

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/ZSC714725/dropconvert/internal/config"
	"github.com/ZSC714725/dropconvert/internal/ffmpeg"
)

// Status of an item
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Item is one input file tracked through its conversion lifecycle
type Item struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	AddedAt   time.Time `json:"added_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OutputPath returns where the audio for input is written: outputDir when
// set, otherwise the input's own directory, with the base name's extension
// replaced by ext.
func OutputPath(input, outputDir, ext string) string {
	dir := strings.TrimSpace(outputDir)
	if dir == "" {
		dir = filepath.Dir(input)
	}
	base := filepath.Base(input)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, name+ext)
}

// NewJob builds the encoder job for input from the current settings.
func NewJob(input string, v config.Values, ext string) ffmpeg.Job {
	return ffmpeg.Job{
		Input:   input,
		Output:  OutputPath(input, v.OutputDir, ext),
		Bitrate: v.Bitrate,
	}
}
