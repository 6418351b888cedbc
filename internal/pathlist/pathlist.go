// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

// Package pathlist splits the raw string a drag-and-drop source hands over
// into individual file paths.
package pathlist

import "strings"

// Parse returns the paths contained in raw, in order.
//
// Paths containing spaces arrive wrapped in braces ("{C:/a b/x.mp4}"); the
// braces are stripped. Everything else is separated by spaces. An
// unterminated brace group extends to the end of the input.
func Parse(raw string) []string {
	raw = strings.TrimSpace(raw)

	var paths []string
	for i := 0; i < len(raw); {
		switch raw[i] {
		case ' ':
			i++
		case '{':
			end := strings.IndexByte(raw[i+1:], '}')
			if end == -1 {
				if p := raw[i+1:]; p != "" {
					paths = append(paths, p)
				}
				return paths
			}
			if p := raw[i+1 : i+1+end]; p != "" {
				paths = append(paths, p)
			}
			i += end + 2
		default:
			end := strings.IndexByte(raw[i:], ' ')
			if end == -1 {
				paths = append(paths, raw[i:])
				return paths
			}
			paths = append(paths, raw[i:i+end])
			i += end + 1
		}
	}
	return paths
}
