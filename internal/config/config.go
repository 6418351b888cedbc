// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	FFmpeg  FFmpegConfig  `yaml:"ffmpeg"`
	Convert ConvertConfig `yaml:"convert"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Bind      string `yaml:"bind"`
	JWTSecret string `yaml:"jwt_secret"`
}

// FFmpegConfig FFmpeg 配置
type FFmpegConfig struct {
	Path      string `yaml:"path"`
	ProbePath string `yaml:"probe_path"`
	LogLines  int    `yaml:"log_lines"`
}

// ConvertConfig 转换配置
type ConvertConfig struct {
	InputExtension  string `yaml:"input_extension"`
	OutputExtension string `yaml:"output_extension"`
	Codec           string `yaml:"codec"`
	SampleRate      int    `yaml:"sample_rate"`
	Bitrates        []int  `yaml:"bitrates"`
	Bitrate         int    `yaml:"bitrate"`
	OutputDir       string `yaml:"output_dir"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{Bind: ":8080"},
		FFmpeg: FFmpegConfig{Path: "ffmpeg", ProbePath: "ffprobe", LogLines: 100},
		Convert: ConvertConfig{
			InputExtension:  ".mp4",
			OutputExtension: ".mp3",
			Codec:           "libmp3lame",
			SampleRate:      44100,
			Bitrates:        []int{128, 192, 256, 320},
			Bitrate:         192,
		},
	}
}

// Load 从 YAML 文件加载配置
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.fill()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// 填充空值
func (c *Config) fill() {
	def := Default()

	if c.Server.Bind == "" {
		c.Server.Bind = def.Server.Bind
	}
	if c.FFmpeg.Path == "" {
		c.FFmpeg.Path = def.FFmpeg.Path
	}
	if c.FFmpeg.ProbePath == "" {
		c.FFmpeg.ProbePath = def.FFmpeg.ProbePath
	}
	if c.FFmpeg.LogLines <= 0 {
		c.FFmpeg.LogLines = def.FFmpeg.LogLines
	}
	if c.Convert.InputExtension == "" {
		c.Convert.InputExtension = def.Convert.InputExtension
	}
	if c.Convert.OutputExtension == "" {
		c.Convert.OutputExtension = def.Convert.OutputExtension
	}
	if c.Convert.Codec == "" {
		c.Convert.Codec = def.Convert.Codec
	}
	if c.Convert.SampleRate <= 0 {
		c.Convert.SampleRate = def.Convert.SampleRate
	}
	if len(c.Convert.Bitrates) == 0 {
		c.Convert.Bitrates = def.Convert.Bitrates
	}
	if c.Convert.Bitrate == 0 {
		c.Convert.Bitrate = def.Convert.Bitrate
	}

	c.Convert.InputExtension = dotted(c.Convert.InputExtension)
	c.Convert.OutputExtension = dotted(c.Convert.OutputExtension)
}

// Validate checks that the configured default bitrate is one of the offered
// bitrates.
func (c *Config) Validate() error {
	if !containsInt(c.Convert.Bitrates, c.Convert.Bitrate) {
		return fmt.Errorf("%w: default %d not in %v", ErrInvalidBitrate, c.Convert.Bitrate, c.Convert.Bitrates)
	}
	return nil
}

func dotted(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
