// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/ZSC714725/dropconvert/internal/ffmpeg/parse"
	"github.com/ZSC714725/dropconvert/internal/ffmpeg/skills"
	"github.com/ZSC714725/dropconvert/internal/logger"
	"github.com/ZSC714725/dropconvert/internal/process"
)

var (
	// ErrEncoderNotFound means the encoder binary could not be resolved. It
	// is an environment problem, not a property of the input file.
	ErrEncoderNotFound = errors.New("encoder binary not found")
	// ErrCancelled is returned when the context was cancelled during a
	// conversion.
	ErrCancelled = errors.New("conversion cancelled")
	// ErrEncoderFailed wraps a non-zero encoder exit.
	ErrEncoderFailed = errors.New("encoder failed")
	// ErrInvalidInput is returned for inputs the input validator rejects.
	ErrInvalidInput = errors.New("unsupported input")
)

// Job describes one conversion.
type Job struct {
	Input   string
	Output  string
	Bitrate int // kbps
}

// FFmpeg converts video files to audio with an external encoder
type FFmpeg interface {
	Convert(ctx context.Context, job Job, onProgress func(parse.Progress)) error
	Probe(ctx context.Context, input string) (float64, error)
	Args(job Job) []string
	// Current returns the status of the running encoder, if any.
	Current() (process.Status, bool)
	// Log returns the last diagnostic lines of the current or last run.
	Log() []process.Line
	Skills(ctx context.Context) (skills.Skills, error)
	ReloadSkills(ctx context.Context) error
}

// Config for FFmpeg
type Config struct {
	Binary         string
	ProbeBinary    string
	Codec          string
	SampleRate     int
	MaxLogLines    int
	ValidatorInput Validator
	Logger         logger.Logger
	// NewMonitor creates a resource monitor per encoder process. Nil uses
	// process.NewSysMonitor.
	NewMonitor func() process.Monitor
}

type ffmpeg struct {
	binary      string
	probeBinary string
	codec       string
	sampleRate  int
	logLines    int
	validatorIn Validator
	logger      logger.Logger
	newMonitor  func() process.Monitor

	current struct {
		proc   process.Process
		parser parse.Parser
		lock   sync.RWMutex
	}

	skills     *skills.Skills
	skillsLock sync.RWMutex
}

// New creates FFmpeg. The binaries are resolved on every conversion, so a
// missing encoder is reported per item rather than here.
func New(config Config) (FFmpeg, error) {
	f := &ffmpeg{
		binary:      config.Binary,
		probeBinary: config.ProbeBinary,
		codec:       config.Codec,
		sampleRate:  config.SampleRate,
		logLines:    config.MaxLogLines,
		validatorIn: config.ValidatorInput,
		logger:      config.Logger,
		newMonitor:  config.NewMonitor,
	}

	if f.binary == "" {
		f.binary = "ffmpeg"
	}
	if f.probeBinary == "" {
		f.probeBinary = "ffprobe"
	}
	if f.codec == "" {
		f.codec = "libmp3lame"
	}
	if f.sampleRate <= 0 {
		f.sampleRate = 44100
	}
	if f.logLines <= 0 {
		f.logLines = 100
	}
	if f.logger == nil {
		f.logger = logger.Nop()
	}
	if f.newMonitor == nil {
		f.newMonitor = process.NewSysMonitor
	}
	if f.validatorIn == nil {
		v, err := NewExtensionValidator(".mp4")
		if err != nil {
			return nil, err
		}
		f.validatorIn = v
	}

	return f, nil
}

// Args builds the encoder command line for job.
func (f *ffmpeg) Args(job Job) []string {
	return []string{
		"-y",
		"-i", job.Input,
		"-vn",
		"-acodec", f.codec,
		"-ab", strconv.Itoa(job.Bitrate) + "k",
		"-ar", strconv.Itoa(f.sampleRate),
		"-progress", "pipe:2",
		job.Output,
	}
}

// Convert runs the encoder for job and blocks until it exits. onProgress is
// called from the calling goroutine for every progress line.
func (f *ffmpeg) Convert(ctx context.Context, job Job, onProgress func(parse.Progress)) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if !f.validatorIn.IsValid(job.Input) {
		return fmt.Errorf("%w: %s", ErrInvalidInput, job.Input)
	}

	duration, err := f.Probe(ctx, job.Input)
	if err != nil {
		f.logger.Debug("probe %s: %v, duration unknown", job.Input, err)
		duration = 0
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	binary, err := exec.LookPath(f.binary)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEncoderNotFound, f.binary, err)
	}

	name := filepath.Base(job.Input)
	parser := parse.New(parse.Config{
		Name:       name,
		Duration:   duration,
		LogLines:   f.logLines,
		OnProgress: onProgress,
	})

	onState := func(from, to string) {
		f.logger.Debug("encoder for %s: %s -> %s", name, from, to)
	}
	proc, err := process.Start(ctx, process.Config{
		Binary:        binary,
		Args:          f.Args(job),
		Parser:        parser,
		Monitor:       f.newMonitor(),
		Logger:        f.logger,
		OnStateChange: onState,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ErrCancelled, ctxErr)
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %v", ErrEncoderNotFound, err)
		}
		return fmt.Errorf("start encoder: %w", err)
	}
	f.setCurrent(proc, parser)
	defer f.setCurrent(nil, parser)
	defer proc.Close()

	f.logger.Info("converting %s -> %s (%dk)", job.Input, job.Output, job.Bitrate)

	result, err := proc.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, ctxErr)
	}
	if err != nil || !result.Success() {
		return fmt.Errorf("%w: exit code %d: %s", ErrEncoderFailed, result.ExitCode, result.LastLine)
	}
	return nil
}

func (f *ffmpeg) setCurrent(proc process.Process, parser parse.Parser) {
	f.current.lock.Lock()
	f.current.proc = proc
	f.current.parser = parser
	f.current.lock.Unlock()
}

func (f *ffmpeg) Current() (process.Status, bool) {
	f.current.lock.RLock()
	proc := f.current.proc
	f.current.lock.RUnlock()

	if proc == nil {
		return process.Status{}, false
	}
	return proc.Status(), true
}

func (f *ffmpeg) Log() []process.Line {
	f.current.lock.RLock()
	parser := f.current.parser
	f.current.lock.RUnlock()

	if parser == nil {
		return nil
	}
	return parser.Log()
}

func (f *ffmpeg) Skills(ctx context.Context) (skills.Skills, error) {
	f.skillsLock.RLock()
	s := f.skills
	f.skillsLock.RUnlock()

	if s != nil {
		return *s, nil
	}
	if err := f.ReloadSkills(ctx); err != nil {
		return skills.Skills{}, err
	}

	f.skillsLock.RLock()
	defer f.skillsLock.RUnlock()
	return *f.skills, nil
}

func (f *ffmpeg) ReloadSkills(ctx context.Context) error {
	binary, err := exec.LookPath(f.binary)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEncoderNotFound, f.binary, err)
	}

	s, err := skills.New(ctx, binary)
	if err != nil {
		return fmt.Errorf("reload skills: %w", err)
	}
	if !s.HasEncoder(f.codec) {
		f.logger.Error("ffmpeg at %s has no %s encoder", binary, f.codec)
	}

	f.skillsLock.Lock()
	f.skills = &s
	f.skillsLock.Unlock()
	return nil
}
