// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package main

import (
	"fmt"
	"os"

	"github.com/ZSC714725/dropconvert/internal/config"
	"github.com/ZSC714725/dropconvert/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "dropconvert",
	Short: "Convert dropped video files to audio with ffmpeg",
	Long: `dropconvert converts video files to audio, one at a time, by running
ffmpeg. Files are queued, converted in order and reported with live progress.

  dropconvert serve                      HTTP API and event stream
  dropconvert convert a.mp4 "b c.mp4"    convert in the terminal

Example:
  dropconvert convert --output-dir ./audio --bitrate 256 *.mp4`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "dropconvert.yaml", "config file, defaults apply when it does not exist")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func newLogger() logger.Logger {
	return logger.New("dropconvert", logger.WithDebug(debug))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
