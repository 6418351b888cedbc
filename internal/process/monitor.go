// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package process

import (
	"sync"

	gopsutilprocess "github.com/shirou/gopsutil/v3/process"
)

// Usage is a resource sample of a running process.
type Usage struct {
	CPU    float64 `json:"cpu_percent"`
	Memory uint64  `json:"memory_bytes"`
}

// Monitor samples resource usage of a process. It does not enforce limits.
type Monitor interface {
	Start(pid int) error
	Stop()
	Current() Usage
}

// sysMonitor 使用 gopsutil 采集进程 CPU 和内存
type sysMonitor struct {
	mu   sync.RWMutex
	proc *gopsutilprocess.Process
}

// NewSysMonitor returns a Monitor backed by gopsutil.
func NewSysMonitor() Monitor {
	return &sysMonitor{}
}

func (m *sysMonitor) Start(pid int) error {
	proc, err := gopsutilprocess.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.proc = proc
	m.mu.Unlock()
	return nil
}

func (m *sysMonitor) Stop() {
	m.mu.Lock()
	m.proc = nil
	m.mu.Unlock()
}

func (m *sysMonitor) Current() Usage {
	m.mu.RLock()
	proc := m.proc
	m.mu.RUnlock()

	var u Usage
	if proc == nil {
		return u
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		u.CPU = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		u.Memory = mem.RSS
	}
	return u
}

type nullMonitor struct{}

// NewNullMonitor returns a Monitor that reports nothing.
func NewNullMonitor() Monitor {
	return nullMonitor{}
}

func (nullMonitor) Start(pid int) error { return nil }
func (nullMonitor) Stop()               {}
func (nullMonitor) Current() Usage      { return Usage{} }
