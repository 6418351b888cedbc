// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package parse

import (
	"container/ring"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ZSC714725/dropconvert/internal/process"
)

// MaxPercent is the highest percentage reported while the encoder is still
// running. 100 is only shown once the process has exited.
const MaxPercent = 99.0

var reOutTimeUS = regexp.MustCompile(`^out_time_us=([0-9]+)$`)

// Event is one progress update decoded from a diagnostic line.
type Event struct {
	ElapsedUS int64
}

// ParseLine decodes a line of `-progress` output. Only out_time_us lines
// produce an event.
func ParseLine(line string) (Event, bool) {
	m := reOutTimeUS.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Event{}, false
	}
	us, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return Event{}, false
	}
	return Event{ElapsedUS: us}, true
}

// Percent converts elapsed microseconds into a completion percentage of
// durationSec, capped at MaxPercent. It returns 0 for an unknown duration.
func Percent(elapsedUS int64, durationSec float64) float64 {
	if durationSec <= 0 {
		return 0
	}
	pct := float64(elapsedUS) / (durationSec * 1_000_000) * 100
	if pct > MaxPercent {
		return MaxPercent
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// FormatClock formats seconds as HH:MM:SS.
func FormatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	s := int64(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

// Progress is the state reported to observers after each event.
type Progress struct {
	Name      string  `json:"name"`
	ElapsedUS int64   `json:"elapsed_us"`
	Duration  float64 `json:"duration_seconds"`
	Known     bool    `json:"known"`
	Percent   float64 `json:"percent"`
	Text      string  `json:"text"`
}

// Parser implements process.Parser for one encoder run and keeps the last
// lines of output for reporting.
type Parser interface {
	process.Parser
}

// Config for the parser
type Config struct {
	// Name is shown in status text.
	Name string
	// Duration of the input in seconds; zero or less means unknown.
	Duration float64
	LogLines int
	// OnProgress is called synchronously for every progress event.
	OnProgress func(Progress)
}

type parser struct {
	name       string
	duration   float64
	onProgress func(Progress)

	log      *ring.Ring
	logLines int

	lock sync.RWMutex
}

// New creates a Parser
func New(config Config) Parser {
	p := &parser{
		name:       config.Name,
		duration:   config.Duration,
		onProgress: config.OnProgress,
		logLines:   config.LogLines,
	}
	if p.logLines <= 0 {
		p.logLines = 100
	}
	p.log = ring.New(p.logLines)
	return p
}

func (p *parser) initial() Progress {
	return Progress{
		Name:     p.name,
		Duration: p.duration,
		Known:    p.duration > 0,
	}
}

func (p *parser) Parse(line string) uint64 {
	p.lock.Lock()
	p.log.Value = process.Line{Timestamp: time.Now(), Data: line}
	p.log = p.log.Next()

	ev, ok := ParseLine(line)
	if !ok {
		p.lock.Unlock()
		return 0
	}

	pr := p.initial()
	pr.ElapsedUS = ev.ElapsedUS
	if pr.Known {
		pr.Percent = Percent(ev.ElapsedUS, p.duration)
		pr.Text = fmt.Sprintf("%s  %s / %s", p.name, FormatClock(float64(ev.ElapsedUS)/1_000_000), FormatClock(p.duration))
	} else {
		pr.Text = "converting: " + p.name
	}
	p.lock.Unlock()

	if p.onProgress != nil {
		p.onProgress(pr)
	}
	return uint64(ev.ElapsedUS) + 1
}

func (p *parser) ResetLog() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.log = ring.New(p.logLines)
}

func (p *parser) Log() []process.Line {
	var out []process.Line
	p.lock.RLock()
	p.log.Do(func(v interface{}) {
		if v != nil {
			out = append(out, v.(process.Line))
		}
	})
	p.lock.RUnlock()
	return out
}
