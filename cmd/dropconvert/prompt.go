// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package main

import (
	"github.com/AlecAivazis/survey/v2"
)

// Prompter asks the user for values in interactive mode
type Prompter interface {
	Input(message, defaultValue string) (string, error)
	Select(message string, options []string, defaultValue string) (string, error)
	Confirm(message string, defaultValue bool) (bool, error)
}

// SurveyPrompter implements Prompter on the terminal
type SurveyPrompter struct{}

func (SurveyPrompter) Input(message, defaultValue string) (string, error) {
	result := ""
	prompt := &survey.Input{Message: message, Default: defaultValue}
	if err := survey.AskOne(prompt, &result); err != nil {
		return "", err
	}
	return result, nil
}

func (SurveyPrompter) Select(message string, options []string, defaultValue string) (string, error) {
	result := ""
	prompt := &survey.Select{Message: message, Options: options, Default: defaultValue}
	if err := survey.AskOne(prompt, &result); err != nil {
		return "", err
	}
	return result, nil
}

func (SurveyPrompter) Confirm(message string, defaultValue bool) (bool, error) {
	result := defaultValue
	prompt := &survey.Confirm{Message: message, Default: defaultValue}
	if err := survey.AskOne(prompt, &result); err != nil {
		return false, err
	}
	return result, nil
}

// DefaultPrompter is used by convert --interactive
var DefaultPrompter Prompter = SurveyPrompter{}
