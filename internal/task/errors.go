// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package task

import "errors"

var (
	ErrNotFound   = errors.New("item not found")
	ErrRunActive  = errors.New("a conversion run is in progress")
	ErrNoItems    = errors.New("no files to convert")
	ErrNotRunning = errors.New("no conversion run in progress")
	ErrClosed     = errors.New("manager closed")
)
