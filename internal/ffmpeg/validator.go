// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package ffmpeg

import (
	"fmt"
	"regexp"
	"strings"
)

// Validator decides whether a path is eligible as encoder input
type Validator interface {
	IsValid(text string) bool
}

type validator struct {
	allow []*regexp.Regexp
}

// NewValidator creates a Validator accepting text that matches any of the
// expressions. Empty expressions are ignored; with none everything is valid.
func NewValidator(allow ...string) (Validator, error) {
	re, err := compileAll(allow)
	if err != nil {
		return nil, err
	}
	return &validator{allow: re}, nil
}

// NewExtensionValidator accepts paths ending in ext, case-insensitively.
func NewExtensionValidator(ext string) (Validator, error) {
	ext = strings.TrimSpace(ext)
	if ext == "" {
		return nil, fmt.Errorf("empty extension")
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return NewValidator(`(?i)` + regexp.QuoteMeta(ext) + `$`)
}

func compileAll(exps []string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, exp := range exps {
		exp = strings.TrimSpace(exp)
		if exp == "" {
			continue
		}
		re, err := regexp.Compile(exp)
		if err != nil {
			return nil, fmt.Errorf("invalid expression '%s': %w", exp, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func (v *validator) IsValid(text string) bool {
	if len(v.allow) == 0 {
		return true
	}
	for _, e := range v.allow {
		if e.MatchString(text) {
			return true
		}
	}
	return false
}
