// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package ffmpeg

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// ProbeArgs returns the prober arguments that print the container duration
// in seconds and nothing else.
func ProbeArgs(input string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		input,
	}
}

// Probe returns the duration of input in seconds. Any failure means the
// duration is unknown; callers fall back to indeterminate progress.
func (f *ffmpeg) Probe(ctx context.Context, input string) (float64, error) {
	out, err := exec.CommandContext(ctx, f.probeBinary, ProbeArgs(input)...).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseDuration(string(out))
}

func parseDuration(out string) (float64, error) {
	s := strings.TrimSpace(out)
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration '%s': %w", s, err)
	}
	if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, fmt.Errorf("invalid duration %v", d)
	}
	return d, nil
}
