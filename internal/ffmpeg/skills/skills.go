// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package skills

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Codec represents an audio codec with its encoders and decoders
type Codec struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Encoders []string `json:"encoders"`
	Decoders []string `json:"decoders"`
}

// Library represents a linked av library
type Library struct {
	Name     string `json:"name"`
	Compiled string `json:"compiled"`
	Linked   string `json:"linked"`
}

// Skills are the detected audio capabilities of FFmpeg
type Skills struct {
	Binary        string    `json:"binary"`
	Version       string    `json:"version"`
	Configuration string    `json:"configuration"`
	Libraries     []Library `json:"libraries"`
	Audio         []Codec   `json:"audio"`
}

// HasEncoder reports whether any audio codec offers the named encoder.
func (s Skills) HasEncoder(name string) bool {
	for _, c := range s.Audio {
		for _, e := range c.Encoders {
			if e == name {
				return true
			}
		}
	}
	return false
}

// New runs binary to detect its version and audio codecs.
func New(ctx context.Context, binary string) (Skills, error) {
	out, err := exec.CommandContext(ctx, binary, "-version").CombinedOutput()
	if err != nil {
		return Skills{}, fmt.Errorf("run %s -version: %w", binary, err)
	}

	s := parseVersion(out)
	if s.Version == "" {
		return Skills{}, fmt.Errorf("can't parse ffmpeg version")
	}
	s.Binary = binary

	codecs, err := exec.CommandContext(ctx, binary, "-hide_banner", "-codecs").Output()
	if err != nil {
		return Skills{}, fmt.Errorf("run %s -codecs: %w", binary, err)
	}
	s.Audio = parseAudioCodecs(codecs)

	return s, nil
}

var (
	reVersion       = regexp.MustCompile(`^ffmpeg version n?([0-9]+\.[0-9]+(\.[0-9]+)?)`)
	reConfiguration = regexp.MustCompile(`(?m)^\s*configuration: (.*)$`)
	reLibrary       = regexp.MustCompile(`(?m)^\s*(lib(?:[a-z]+))\s+([0-9]+\.\s*[0-9]+\.\s*[0-9]+) /\s+([0-9]+\.\s*[0-9]+\.\s*[0-9]+)`)
	reCodec         = regexp.MustCompile(`^\s([D.])([E.])([VAS]).{3} ([0-9A-Za-z_]+)\s+(.*?)(?:\(decoders:([^\)]+)\))?\s?(?:\(encoders:([^\)]+)\))?$`)
)

func parseVersion(data []byte) Skills {
	s := Skills{}
	if m := reVersion.FindSubmatch(data); m != nil {
		s.Version = string(m[1])
		if len(m[2]) == 0 {
			s.Version += ".0"
		}
	}
	if m := reConfiguration.FindSubmatch(data); m != nil {
		s.Configuration = string(m[1])
	}
	for _, m := range reLibrary.FindAllSubmatch(data, -1) {
		s.Libraries = append(s.Libraries, Library{
			Name:     string(m[1]),
			Compiled: string(m[2]),
			Linked:   string(m[3]),
		})
	}
	return s
}

// parseAudioCodecs reads `ffmpeg -codecs` output and keeps audio codecs only.
func parseAudioCodecs(data []byte) []Codec {
	var codecs []Codec
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		m := reCodec.FindStringSubmatch(scanner.Text())
		if m == nil || m[3] != "A" {
			continue
		}
		c := Codec{ID: m[4], Name: strings.TrimSpace(m[5])}
		if m[1] == "D" {
			c.Decoders = splitList(m[6], m[4])
		}
		if m[2] == "E" {
			c.Encoders = splitList(m[7], m[4])
		}
		codecs = append(codecs, c)
	}
	return codecs
}

func splitList(list, fallback string) []string {
	fields := strings.Fields(list)
	if len(fields) == 0 {
		return []string{fallback}
	}
	return fields
}
