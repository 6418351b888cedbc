// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

// Package notify fans state-change notifications out to subscribers.
package notify

import (
	"sync"
	"time"

	"github.com/ZSC714725/dropconvert/internal/logger"
)

// Type of a notification
type Type string

const (
	ItemAdded   Type = "item.added"
	ItemUpdated Type = "item.updated"
	ItemRemoved Type = "item.removed"
	RunStarted  Type = "run.started"
	RunProgress Type = "run.progress"
	RunSummary  Type = "run.summary"
	RunCancel   Type = "run.cancelled"
	Status      Type = "status"
	Fatal       Type = "fatal"
)

// Event is one notification. Data holds a copy of the changed state, so
// subscribers never share memory with the publisher.
type Event struct {
	Type    Type        `json:"type"`
	Time    time.Time   `json:"time"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Notifier publishes events.
type Notifier interface {
	Publish(e Event)
}

// Hub is a Notifier that delivers events to any number of subscribers.
// Slow subscribers lose events instead of blocking the publisher. Final
// events (Fatal, RunSummary, RunCancel) push out the oldest buffered event
// rather than being lost.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	buffer int
	logger logger.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger logs events lost to slow subscribers.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// NewHub creates a Hub whose subscriptions buffer up to buffer events.
func NewHub(buffer int, opts ...Option) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	h := &Hub{subs: make(map[chan Event]struct{}), buffer: buffer}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Nop()
	}
	return h
}

// Subscribe returns a channel of events and a function that ends the
// subscription and closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
}

// Publish delivers e to every subscriber that has room for it.
func (h *Hub) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs {
		if !h.deliver(ch, e) {
			h.logger.Debug("subscriber full, dropped %s event", e.Type)
		}
	}
}

func final(t Type) bool {
	switch t {
	case Fatal, RunSummary, RunCancel:
		return true
	}
	return false
}

func (h *Hub) deliver(ch chan Event, e Event) bool {
	select {
	case ch <- e:
		return true
	default:
	}
	if !final(e.Type) {
		return false
	}

	for i := 0; i < cap(ch); i++ {
		select {
		case old := <-ch:
			h.logger.Debug("subscriber full, dropped %s event", old.Type)
		default:
		}
		select {
		case ch <- e:
			return true
		default:
		}
	}
	return false
}

// Nop returns a Notifier that drops everything.
func Nop() Notifier {
	return nopNotifier{}
}

type nopNotifier struct{}

func (nopNotifier) Publish(Event) {}
