// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package process

import "time"

// Parser parses process output (e.g. FFmpeg stderr). Parse returns a
// non-zero value when the line carried progress information.
type Parser interface {
	Parse(line string) uint64
	ResetLog()
	Log() []Line
}

// Line is a timestamped log line
type Line struct {
	Timestamp time.Time `json:"timestamp"`
	Data      string    `json:"data"`
}

type nullParser struct{}

func (p *nullParser) Parse(line string) uint64 { return 0 }
func (p *nullParser) ResetLog()                {}
func (p *nullParser) Log() []Line              { return nil }
