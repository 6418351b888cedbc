// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package api

import (
	"github.com/ZSC714725/dropconvert/internal/process"
	"github.com/ZSC714725/dropconvert/internal/task"
)

// DropRequest adds files. Paths is the raw drop string, brace groups
// allowed; Files is an already split list.
type DropRequest struct {
	Paths string   `json:"paths"`
	Files []string `json:"files"`
}

// RemoveRequest removes items by ID or path
type RemoveRequest struct {
	IDs   []string `json:"ids"`
	Paths []string `json:"paths"`
}

// RemoveResponse reports how many items were removed
type RemoveResponse struct {
	Removed int `json:"removed"`
	Total   int `json:"total"`
}

// RunResponse is the run snapshot plus the running encoder, if any
type RunResponse struct {
	task.RunInfo
	Encoder *process.Status `json:"encoder,omitempty"`
}

// RunReport holds the last diagnostic lines of the encoder
type RunReport struct {
	Log [][2]string `json:"log"`
}

// CommandRequest for start/cancel
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// SettingsRequest updates the runtime settings. Nil fields are left alone;
// an empty output_dir restores writing next to each input.
type SettingsRequest struct {
	OutputDir *string `json:"output_dir"`
	Bitrate   *int    `json:"bitrate"`
}

// ErrorResponse for API errors
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
