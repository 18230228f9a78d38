// Package diagnostics provides host resource checks performed before the
// process gateway spawns external commands. Agent CLIs can be heavy; refusing
// to spawn on a starved host beats a slow OOM kill mid-step.
package diagnostics

import (
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// PreflightResult contains the result of pre-execution checks.
type PreflightResult struct {
	OK       bool
	Warnings []string
	Errors   []string
}

// Checker performs resource preflight checks.
type Checker struct {
	// MinFreeMemoryMB fails the check when available memory is below it.
	MinFreeMemoryMB uint64
	// MaxLoadPerCPU warns when 1-minute load average per CPU exceeds it.
	MaxLoadPerCPU float64
}

// NewChecker creates a checker with default thresholds.
func NewChecker() *Checker {
	return &Checker{
		MinFreeMemoryMB: 256,
		MaxLoadPerCPU:   4.0,
	}
}

// Run performs the preflight checks. Metric collection failures are reported
// as warnings, never as errors: a broken metrics source must not block work.
func (c *Checker) Run() PreflightResult {
	result := PreflightResult{OK: true}

	vm, err := mem.VirtualMemory()
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("memory stats unavailable: %v", err))
	} else {
		freeMB := vm.Available / (1024 * 1024)
		if c.MinFreeMemoryMB > 0 && freeMB < c.MinFreeMemoryMB {
			result.OK = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("insufficient free memory: %dMB available (minimum: %dMB)", freeMB, c.MinFreeMemoryMB))
		} else if c.MinFreeMemoryMB > 0 && freeMB < c.MinFreeMemoryMB*2 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("free memory approaching limit: %dMB available", freeMB))
		}
	}

	avg, err := load.Avg()
	if err == nil && c.MaxLoadPerCPU > 0 {
		perCPU := avg.Load1 / float64(runtime.NumCPU())
		if perCPU > c.MaxLoadPerCPU {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("high load average: %.2f per CPU", perCPU))
		}
	}

	return result
}
