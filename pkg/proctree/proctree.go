// Package proctree answers the process-tree questions terminal discovery
// needs: the ancestor chain of a session, live processes matching a
// command pattern, shell children for tab counting, and the supervisor's
// own resident memory.
package proctree

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// maxDepth bounds the parent walk against ppid cycles in stale /proc
// snapshots.
const maxDepth = 64

// Ancestors returns pid followed by its parent chain, nearest first.
// The walk stops at pid 1, at a missing process, or after maxDepth hops.
func Ancestors(pid int) []int {
	var out []int
	seen := make(map[int32]bool, maxDepth)
	current := int32(pid)
	for depth := 0; depth < maxDepth; depth++ {
		if current <= 0 || seen[current] {
			break
		}
		seen[current] = true
		out = append(out, int(current))
		if current == 1 {
			break
		}
		p, err := process.NewProcess(current)
		if err != nil {
			break
		}
		ppid, err := p.Ppid()
		if err != nil || ppid == current {
			break
		}
		current = ppid
	}
	return out
}

// Alive reports whether pid refers to a live process.
func Alive(pid int) bool {
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// FindByPattern returns pids whose command name or command line matches
// re. The calling process is excluded so the supervisor never discovers
// itself as an assistant session.
func FindByPattern(re *regexp.Regexp) []int {
	procs, err := process.Processes()
	if err != nil {
		return nil
	}
	self := int32(os.Getpid())
	var out []int
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		if name, err := p.Name(); err == nil && re.MatchString(name) {
			out = append(out, int(p.Pid))
			continue
		}
		if cmdline, err := p.Cmdline(); err == nil && cmdline != "" && re.MatchString(cmdline) {
			out = append(out, int(p.Pid))
		}
	}
	return out
}

// shellNames are the interpreters counted as tab shells.
var shellNames = map[string]bool{
	"bash": true,
	"zsh":  true,
	"fish": true,
	"sh":   true,
	"dash": true,
	"tcsh": true,
	"ksh":  true,
}

// ShellChildren counts direct shell children of pid. Terminal emulators
// that multiplex tabs in a single window run one shell per tab, so this
// doubles as the tab count.
func ShellChildren(pid int) int {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	children, err := p.Children()
	if err != nil {
		return 0
	}
	n := 0
	for _, c := range children {
		name, err := c.Name()
		if err != nil {
			continue
		}
		if shellNames[strings.ToLower(name)] {
			n++
		}
	}
	return n
}

// ResidentMemory returns the resident set size of pid in bytes.
func ResidentMemory(pid int) (uint64, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0, fmt.Errorf("process %d: %w", pid, err)
	}
	info, err := p.MemoryInfo()
	if err != nil {
		return 0, fmt.Errorf("memory info for pid %d: %w", pid, err)
	}
	if info == nil {
		return 0, fmt.Errorf("no memory info for pid %d", pid)
	}
	return info.RSS, nil
}
