// Package probe captures a snapshot of the host environment without spawning
// subprocesses. Everything comes from the runtime, the environment, PATH
// lookups, and well-known files, so capture stays fast and side-effect free.
package probe

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/ports"
)

// Probe implements ContextProbe with filesystem and PATH detection only.
type Probe struct {
	toolsToCheck []string
	lookPath     func(string) (string, error)
	readFile     func(string) ([]byte, error)
}

func NewProbe() *Probe {
	return &Probe{
		toolsToCheck: []string{"git", "docker", "kubectl", "curl", "wget", "tar", "jq", "make", "python3", "node", "go", "cargo", "rsync", "ssh", "systemctl", "brew"},
		lookPath:     exec.LookPath,
		readFile:     os.ReadFile,
	}
}

// Capture gathers the snapshot. Sub-probe failures never abort the capture;
// they are recorded on the snapshot and reported through a
// *domain.ProbeDegradedError so callers can log and continue.
func (p *Probe) Capture(ctx context.Context) (domain.ExecutionContext, error) {
	snap := domain.ExecutionContext{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}
	var degraded []string

	if wd, err := os.Getwd(); err == nil {
		snap.WorkingDir = wd
	} else {
		degraded = append(degraded, "working-dir")
	}

	if shell := detectShell(); shell != "" {
		snap.Shell = shell
	} else {
		snap.Shell = defaultShellFor(runtime.GOOS)
		degraded = append(degraded, "shell")
	}

	if user := detectUser(); user != "" {
		snap.User = user
	} else {
		degraded = append(degraded, "user")
	}

	version, dist, ok := p.detectRelease()
	snap.OSVersion = version
	snap.Distribution = dist
	if !ok {
		degraded = append(degraded, "os-release")
	}

	tools, err := p.detectTools(ctx)
	if err != nil {
		return snap, err
	}
	snap.AvailableTools = tools

	snap.DegradedProbes = degraded
	if len(degraded) > 0 {
		return snap, &domain.ProbeDegradedError{Probes: degraded}
	}
	return snap, nil
}

func (p *Probe) detectTools(ctx context.Context) ([]string, error) {
	available := make([]string, 0, len(p.toolsToCheck))
	for _, tool := range p.toolsToCheck {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := p.lookPath(tool); err == nil {
			available = append(available, tool)
		}
	}
	sort.Strings(available)
	return available, nil
}

// detectRelease reads version and distribution from well-known release files.
// Returns ok=false when the platform has such a file but it was unreadable.
func (p *Probe) detectRelease() (version, dist string, ok bool) {
	switch runtime.GOOS {
	case "linux":
		data, err := p.readFile("/etc/os-release")
		if err != nil {
			return "", "", false
		}
		version, dist = parseOSRelease(string(data))
		return version, dist, true
	case "darwin":
		data, err := p.readFile("/System/Library/CoreServices/SystemVersion.plist")
		if err != nil {
			return "", "macos", false
		}
		return parsePlistVersion(string(data)), "macos", true
	default:
		return "", "", true
	}
}

// parseOSRelease pulls VERSION_ID and ID out of os-release(5) content.
func parseOSRelease(content string) (version, dist string) {
	for _, line := range strings.Split(content, "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), "=")
		if !found {
			continue
		}
		value = strings.Trim(value, `"`)
		switch key {
		case "VERSION_ID":
			version = value
		case "ID":
			dist = value
		}
	}
	return version, dist
}

// parsePlistVersion extracts ProductVersion from SystemVersion.plist without
// a plist dependency; the file layout has been stable for decades.
func parsePlistVersion(content string) string {
	idx := strings.Index(content, "<key>ProductVersion</key>")
	if idx < 0 {
		return ""
	}
	rest := content[idx:]
	start := strings.Index(rest, "<string>")
	end := strings.Index(rest, "</string>")
	if start < 0 || end < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(rest[start+len("<string>") : end])
}

func detectShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return filepath.Base(shell)
	}
	if runtime.GOOS == "windows" {
		if shell := os.Getenv("ComSpec"); shell != "" {
			return strings.TrimSuffix(filepath.Base(shell), ".exe")
		}
	}
	return ""
}

func defaultShellFor(goos string) string {
	if goos == "windows" {
		return "powershell"
	}
	return "sh"
}

func detectUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return os.Getenv("USERNAME")
}

var _ ports.ContextProbe = (*Probe)(nil)
