// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package task

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/ZSC714725/dropconvert/internal/ffmpeg"

	"github.com/lithammer/shortuuid/v4"
)

// Registry maps input paths to items in display order. It is not safe for
// concurrent use; the Manager owns it.
type Registry struct {
	accept ffmpeg.Validator
	order  []*Item
	byPath map[string]*Item
}

// NewRegistry creates a registry that only accepts paths passing accept.
func NewRegistry(accept ffmpeg.Validator) *Registry {
	return &Registry{
		accept: accept,
		byPath: make(map[string]*Item),
	}
}

// Add creates a pending item for path. It returns false when the path is
// already known or does not have the accepted extension.
func (r *Registry) Add(path string) bool {
	path = strings.TrimSpace(path)
	if path == "" || r.Contains(path) || !r.accept.IsValid(path) {
		return false
	}

	now := time.Now()
	item := &Item{
		ID:        shortuuid.New(),
		Path:      path,
		Name:      filepath.Base(path),
		Status:    StatusPending,
		AddedAt:   now,
		UpdatedAt: now,
	}
	r.order = append(r.order, item)
	r.byPath[path] = item
	return true
}

// Contains reports whether path is registered.
func (r *Registry) Contains(path string) bool {
	_, ok := r.byPath[strings.TrimSpace(path)]
	return ok
}

// Get returns the item with the given path or ID.
func (r *Registry) Get(key string) (Item, bool) {
	if item := r.lookup(key); item != nil {
		return *item, true
	}
	return Item{}, false
}

func (r *Registry) lookup(key string) *Item {
	if item, ok := r.byPath[key]; ok {
		return item
	}
	for _, item := range r.order {
		if item.ID == key {
			return item
		}
	}
	return nil
}

// Remove deletes the items matching the given paths or IDs and returns
// them. Unknown keys are ignored.
func (r *Registry) Remove(keys []string) []Item {
	drop := make(map[*Item]bool)
	for _, key := range keys {
		if item := r.lookup(strings.TrimSpace(key)); item != nil {
			drop[item] = true
		}
	}
	if len(drop) == 0 {
		return nil
	}

	var removed []Item
	kept := r.order[:0]
	for _, item := range r.order {
		if drop[item] {
			removed = append(removed, *item)
			delete(r.byPath, item.Path)
			continue
		}
		kept = append(kept, item)
	}
	for i := len(kept); i < len(r.order); i++ {
		r.order[i] = nil
	}
	r.order = kept
	return removed
}

// SetStatus changes the status of the item at path.
func (r *Registry) SetStatus(path string, status Status) (Item, bool) {
	item, ok := r.byPath[path]
	if !ok {
		return Item{}, false
	}
	item.Status = status
	item.UpdatedAt = time.Now()
	if status != StatusError {
		item.Error = ""
	}
	return *item, true
}

// SetResult records the output path and, for failures, the error text.
func (r *Registry) SetResult(path, output, errText string) {
	if item, ok := r.byPath[path]; ok {
		item.Output = output
		item.Error = errText
	}
}

// Queue returns the paths of all pending and failed items in display
// order. Failed items are reset to pending and returned as reset.
func (r *Registry) Queue() (paths []string, reset []Item) {
	now := time.Now()
	for _, item := range r.order {
		switch item.Status {
		case StatusError:
			item.Status = StatusPending
			item.Error = ""
			item.UpdatedAt = now
			reset = append(reset, *item)
			paths = append(paths, item.Path)
		case StatusPending:
			paths = append(paths, item.Path)
		}
	}
	return paths, reset
}

// Items returns a copy of all items in display order.
func (r *Registry) Items() []Item {
	out := make([]Item, len(r.order))
	for i, item := range r.order {
		out[i] = *item
	}
	return out
}

// Len returns the number of items.
func (r *Registry) Len() int {
	return len(r.order)
}
