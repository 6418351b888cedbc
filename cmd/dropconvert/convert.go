// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ZSC714725/dropconvert/internal/config"
	"github.com/ZSC714725/dropconvert/internal/notify"
	"github.com/ZSC714725/dropconvert/internal/task"
	"github.com/spf13/cobra"
)

var (
	convertOutputDir   string
	convertBitrate     int
	convertDrop        string
	convertInteractive bool
)

var errAborted = errors.New("aborted")

var convertCmd = &cobra.Command{
	Use:   "convert [files...]",
	Short: "Convert video files to audio in the terminal",
	Long: `Queue the given files and convert them one after another.

Files with the wrong extension are skipped. Output goes next to each input
unless a directory is configured; --output-dir overrides it, and
--output-dir "" writes next to each input again. Ctrl-C kills the running
ffmpeg and stops the run; files not converted yet stay queued.

Example:
  dropconvert convert a.mp4 b.mp4
  dropconvert convert --drop "{C:/my videos/a.mp4} C:/b.mp4" --bitrate 320
  dropconvert convert -i *.mp4`,
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().StringVar(&convertOutputDir, "output-dir", "", "directory for the audio files, empty for next to each input (default from config)")
	convertCmd.Flags().IntVar(&convertBitrate, "bitrate", 0, "audio bitrate in kbps (default from config)")
	convertCmd.Flags().StringVar(&convertDrop, "drop", "", "raw drop string, paths with spaces wrapped in braces")
	convertCmd.Flags().BoolVarP(&convertInteractive, "interactive", "i", false, "ask for output directory and bitrate")
}

// ConvertOptions for one terminal run
type ConvertOptions struct {
	Paths []string
	Drop  string
	// OutputDir replaces the configured directory when set. An empty
	// value writes next to each input.
	OutputDir *string
	Bitrate   int
}

func runConvert(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && convertDrop == "" {
		return errors.New("no files given")
	}

	a, err := newApp(cfg, nil, newLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	opts := ConvertOptions{
		Paths:   args,
		Drop:    convertDrop,
		Bitrate: convertBitrate,
	}
	if cmd.Flags().Changed("output-dir") {
		opts.OutputDir = &convertOutputDir
	}
	if convertInteractive {
		opts, err = promptOptions(DefaultPrompter, opts, a.settings.Snapshot())
		if errors.Is(err, errAborted) {
			fmt.Fprintln(cmd.OutOrStdout(), "Conversion cancelled.")
			return nil
		}
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = RunConvertWithDependencies(ctx, a, opts, cmd.OutOrStdout())
	return err
}

func promptOptions(p Prompter, opts ConvertOptions, current config.Values) (ConvertOptions, error) {
	dir := current.OutputDir
	if opts.OutputDir != nil {
		dir = *opts.OutputDir
	}
	dir, err := p.Input("Output directory (empty: next to each video):", dir)
	if err != nil {
		return opts, err
	}
	opts.OutputDir = &dir

	rate := opts.Bitrate
	if rate == 0 {
		rate = current.Bitrate
	}
	choices := make([]string, len(current.Bitrates))
	for i, b := range current.Bitrates {
		choices[i] = strconv.Itoa(b)
	}
	choice, err := p.Select("Bitrate (kbps):", choices, strconv.Itoa(rate))
	if err != nil {
		return opts, err
	}
	if opts.Bitrate, err = strconv.Atoi(choice); err != nil {
		return opts, fmt.Errorf("bitrate %q: %w", choice, err)
	}

	ok, err := p.Confirm("Start converting?", true)
	if err != nil {
		return opts, err
	}
	if !ok {
		return opts, errAborted
	}
	return opts, nil
}

// RunConvertWithDependencies queues opts on a, runs the conversion and
// reports to out until the run ends. Cancelling ctx cancels the run.
func RunConvertWithDependencies(ctx context.Context, a *app, opts ConvertOptions, out io.Writer) (task.RunInfo, error) {
	switch {
	case opts.OutputDir == nil:
	case *opts.OutputDir == "":
		a.settings.ClearOutputDir()
	default:
		a.settings.SetOutputDir(*opts.OutputDir)
	}
	if opts.Bitrate != 0 {
		if err := a.settings.SetBitrate(opts.Bitrate); err != nil {
			return task.RunInfo{}, err
		}
	}

	events, unsubscribe := a.hub.Subscribe()
	defer unsubscribe()

	res, err := a.manager.Add(opts.Paths...)
	if err != nil {
		return task.RunInfo{}, err
	}
	if opts.Drop != "" {
		dropped, err := a.manager.Drop(opts.Drop)
		if err != nil {
			return task.RunInfo{}, err
		}
		res.Added += dropped.Added
		res.Rejected += dropped.Rejected
		res.Duplicates += dropped.Duplicates
		res.Total = dropped.Total
	}
	fmt.Fprintf(out, "%d file(s) queued, %d rejected, %d duplicate\n", res.Added, res.Rejected, res.Duplicates)

	if err := a.manager.Start(); err != nil {
		if errors.Is(err, task.ErrNoItems) {
			return task.RunInfo{}, errors.New("no files to convert")
		}
		return task.RunInfo{}, err
	}

	r := &reporter{out: out}
	done := a.manager.Done()
	interrupt := ctx.Done()

	for {
		select {
		case e := <-events:
			r.report(e)
		case <-interrupt:
			interrupt = nil
			fmt.Fprintln(out, "cancelling...")
			a.manager.Cancel()
		case <-done:
			r.drain(events)
			info := a.manager.Run()
			switch {
			case info.State == task.RunCancelled:
				return info, errors.New("conversion cancelled")
			case info.Summary.Failed > 0:
				return info, fmt.Errorf("%d of %d file(s) failed", info.Summary.Failed, info.Summary.Total)
			}
			return info, nil
		}
	}
}

// reporter prints notifications as terminal lines
type reporter struct {
	out    io.Writer
	total  int
	index  int
	bucket int
}

// drain reports the events already buffered.
func (r *reporter) drain(events <-chan notify.Event) {
	for {
		select {
		case e := <-events:
			r.report(e)
		default:
			return
		}
	}
}

func (r *reporter) report(e notify.Event) {
	switch e.Type {
	case notify.RunStarted:
		if run, ok := e.Data.(task.RunInfo); ok {
			r.total = run.Summary.Total
		}
	case notify.ItemUpdated:
		item, ok := e.Data.(task.Item)
		if !ok {
			return
		}
		switch item.Status {
		case task.StatusRunning:
			r.index++
			r.bucket = 0
			fmt.Fprintf(r.out, "[%d/%d] %s\n", r.index, r.total, item.Name)
		case task.StatusDone:
			fmt.Fprintf(r.out, "  done: %s\n", item.Output)
		case task.StatusError:
			fmt.Fprintf(r.out, "  failed: %s\n", item.Error)
		}
	case notify.RunProgress:
		run, ok := e.Data.(task.RunInfo)
		if !ok || run.Current == "" || e.Message == "" {
			return
		}
		// one line per quarter
		if b := int(run.Progress) / 25; b > r.bucket {
			r.bucket = b
			fmt.Fprintf(r.out, "  %s (%.0f%%)\n", e.Message, run.Progress)
		}
	case notify.Fatal:
		fmt.Fprintf(r.out, "error: %s\n", e.Message)
	case notify.RunSummary, notify.RunCancel:
		fmt.Fprintln(r.out, e.Message)
	}
}
