// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具
//
// Package process runs a single external command, feeding its diagnostic
// stream line by line to a Parser.

package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
	"unicode/utf8"
)

// ErrNoBinary is returned by Start when Config.Binary is empty.
var ErrNoBinary = errors.New("no valid binary given")

// maxLineSize bounds a single diagnostic line. Longer lines stop the parser
// and the rest of the stream is discarded.
const maxLineSize = 1 << 20

// Process is a handle on a started command. Close must be called on every
// path once Start succeeded; it kills the command if it is still running and
// reaps it.
type Process interface {
	Status() Status
	Wait() (Result, error)
	Kill() error
	Close() error
	IsRunning() bool
}

// Config for a process
type Config struct {
	Binary        string
	Args          []string
	Parser        Parser
	Monitor       Monitor
	Logger        Logger
	OnStateChange func(from, to string)
}

// Status of a process
type Status struct {
	State    string        `json:"state"`
	PID      int           `json:"pid"`
	Duration time.Duration `json:"duration"`
	Time     time.Time     `json:"time"`
	Usage    Usage         `json:"usage"`
}

// Result of a finished process. ExitCode is -1 when the process was killed
// by a signal.
type Result struct {
	State    string
	ExitCode int
	Duration time.Duration
	LastLine string
}

// Success reports whether the process exited normally with code 0.
func (r Result) Success() bool {
	return r.State == stateFinished.String() && r.ExitCode == 0
}

// Logger interface
type Logger interface {
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
}

type stateType string

const (
	stateStarting stateType = "starting"
	stateRunning  stateType = "running"
	stateFinished stateType = "finished"
	stateFailed   stateType = "failed"
	stateKilled   stateType = "killed"
)

func (s stateType) String() string { return string(s) }

func (s stateType) IsRunning() bool {
	return s == stateStarting || s == stateRunning
}

// transitions lists the allowed next states of a one-shot process.
var transitions = map[stateType][]stateType{
	stateStarting: {stateRunning, stateFailed},
	stateRunning:  {stateFinished, stateFailed, stateKilled},
}

type process struct {
	binary string
	args   []string
	ctx    context.Context
	cmd    *exec.Cmd
	stderr io.ReadCloser
	pid    int

	state struct {
		state stateType
		time  time.Time
		lock  sync.Mutex
	}
	startedAt time.Time

	parser        Parser
	logger        Logger
	monitor       Monitor
	onStateChange func(from, to string)

	stopWatch func() bool
	killLock  sync.Mutex
	killed    bool

	wait struct {
		once   sync.Once
		result Result
		err    error
	}
}

// Start launches the command. Cancelling ctx kills it immediately; the
// reader also checks ctx between lines.
func Start(ctx context.Context, config Config) (Process, error) {
	if len(config.Binary) == 0 {
		return nil, ErrNoBinary
	}

	p := &process{
		binary:        config.Binary,
		args:          config.Args,
		ctx:           ctx,
		parser:        config.Parser,
		logger:        config.Logger,
		monitor:       config.Monitor,
		onStateChange: config.OnStateChange,
	}
	if p.parser == nil {
		p.parser = &nullParser{}
	}
	if p.logger == nil {
		p.logger = &nopLogger{}
	}
	if p.monitor == nil {
		p.monitor = NewNullMonitor()
	}

	p.state.state = stateStarting
	p.state.time = time.Now()

	if err := ctx.Err(); err != nil {
		p.setState(stateFailed)
		return nil, err
	}

	p.cmd = exec.Command(p.binary, p.args...)

	var err error
	p.stderr, err = p.cmd.StderrPipe()
	if err != nil {
		p.setState(stateFailed)
		p.parser.Parse(err.Error())
		return nil, err
	}

	if err := p.cmd.Start(); err != nil {
		p.setState(stateFailed)
		p.parser.Parse(err.Error())
		return nil, fmt.Errorf("start %s: %w", p.binary, err)
	}

	p.startedAt = time.Now()
	p.pid = p.cmd.Process.Pid
	if err := p.monitor.Start(p.pid); err != nil {
		p.logger.Debug("monitor pid %d: %v", p.pid, err)
	}

	p.setState(stateRunning)
	p.logger.Debug("started %s (pid %d)", p.binary, p.pid)

	p.stopWatch = context.AfterFunc(ctx, func() {
		p.logger.Info("context done, killing pid %d", p.pid)
		p.Kill()
	})

	return p, nil
}

func (p *process) setState(state stateType) error {
	p.state.lock.Lock()

	prev := p.state.state
	allowed := false
	for _, next := range transitions[prev] {
		if next == state {
			allowed = true
			break
		}
	}
	if !allowed {
		p.state.lock.Unlock()
		return fmt.Errorf("can't change from %s to %s", prev, state)
	}

	p.state.state = state
	p.state.time = time.Now()
	p.state.lock.Unlock()

	if p.onStateChange != nil {
		p.onStateChange(prev.String(), state.String())
	}
	return nil
}

func (p *process) getState() stateType {
	p.state.lock.Lock()
	defer p.state.lock.Unlock()
	return p.state.state
}

func (p *process) IsRunning() bool {
	return p.getState().IsRunning()
}

func (p *process) Status() Status {
	p.state.lock.Lock()
	s := Status{
		State:    p.state.state.String(),
		PID:      p.pid,
		Time:     p.state.time,
		Duration: time.Since(p.state.time),
	}
	p.state.lock.Unlock()

	if stateType(s.State).IsRunning() {
		s.Usage = p.monitor.Current()
	}
	return s
}

// Kill forcibly terminates the process. It does not wait for it to exit.
func (p *process) Kill() error {
	if !p.IsRunning() {
		return nil
	}

	p.killLock.Lock()
	defer p.killLock.Unlock()

	if p.killed {
		return nil
	}
	p.killed = true

	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Error("kill pid %d: %v", p.pid, err)
		return err
	}
	return nil
}

func (p *process) wasKilled() bool {
	p.killLock.Lock()
	defer p.killLock.Unlock()
	return p.killed
}

// Wait consumes the diagnostic stream and then waits for the process to
// exit. It returns ctx's error if the process was cancelled, the exec error
// for a non-zero exit, and nil otherwise. Calling it again returns the same
// values.
func (p *process) Wait() (Result, error) {
	p.wait.once.Do(func() {
		p.wait.result, p.wait.err = p.reader()
	})
	return p.wait.result, p.wait.err
}

// Close kills the process if it is still running and reaps it.
func (p *process) Close() error {
	if p.IsRunning() {
		p.Kill()
	}
	_, err := p.Wait()
	if p.ctx.Err() != nil || p.wasKilled() {
		return nil
	}
	return err
}

func (p *process) reader() (Result, error) {
	scanner := bufio.NewScanner(p.stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	scanner.Split(scanLine)

	p.parser.ResetLog()

	var lastLine string
	for scanner.Scan() {
		if p.ctx.Err() != nil {
			p.Kill()
			break
		}
		lastLine = scanner.Text()
		p.parser.Parse(lastLine)
	}

	if err := scanner.Err(); err != nil {
		p.logger.Error("read output of pid %d: %v", p.pid, err)
	}
	if p.ctx.Err() == nil {
		// the command blocks on a full pipe until it is drained
		io.Copy(io.Discard, p.stderr)
	}

	return p.waiter(lastLine)
}

func (p *process) waiter(lastLine string) (Result, error) {
	err := p.cmd.Wait()

	if p.stopWatch != nil {
		p.stopWatch()
	}
	p.monitor.Stop()

	result := Result{
		ExitCode: p.cmd.ProcessState.ExitCode(),
		Duration: time.Since(p.startedAt),
		LastLine: lastLine,
	}

	var exitErr *exec.ExitError
	switch {
	case p.wasKilled() || p.ctx.Err() != nil:
		result.State = stateKilled.String()
		if ctxErr := p.ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
	case err == nil:
		result.State = stateFinished.String()
	case errors.As(err, &exitErr) && exitErr.Exited():
		result.State = stateFailed.String()
	default:
		result.State = stateKilled.String()
	}

	p.setState(stateType(result.State))
	p.logger.Debug("%s (pid %d) %s with code %d", p.binary, p.pid, result.State, result.ExitCode)

	return result, err
}

// scanLine splits on \n and \r so that carriage-return progress updates are
// delivered as separate lines. Empty lines are skipped.
func scanLine(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) {
		r, w := utf8.DecodeRune(data[start:])
		if r != '\n' && r != '\r' {
			break
		}
		start += w
	}

	for i := start; i < len(data); {
		r, w := utf8.DecodeRune(data[i:])
		if r == '\n' || r == '\r' {
			return i + w, data[start:i], nil
		}
		i += w
	}

	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}

type nopLogger struct{}

func (l *nopLogger) Info(format string, args ...interface{})  {}
func (l *nopLogger) Error(format string, args ...interface{}) {}
func (l *nopLogger) Debug(format string, args ...interface{}) {}
