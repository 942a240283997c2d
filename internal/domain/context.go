package domain

import "sort"

// ExecutionContext is an immutable snapshot of the host environment captured
// once per invocation and threaded through prompt building and execution.
type ExecutionContext struct {
	OS             string
	Arch           string
	OSVersion      string
	Distribution   string
	Shell          string
	User           string
	WorkingDir     string
	AvailableTools []string
	// DegradedProbes names sub-probes that failed; the snapshot stays usable.
	DegradedProbes []string
}

// HasTool reports whether a utility was found on PATH during capture.
func (c ExecutionContext) HasTool(name string) bool {
	for _, t := range c.AvailableTools {
		if t == name {
			return true
		}
	}
	return false
}

// Degraded reports whether any sub-probe failed during capture.
func (c ExecutionContext) Degraded() bool {
	return len(c.DegradedProbes) > 0
}

// SortedTools returns detected utilities in stable order for prompt building.
func (c ExecutionContext) SortedTools() []string {
	out := make([]string, len(c.AvailableTools))
	copy(out, c.AvailableTools)
	sort.Strings(out)
	return out
}

// PlatformNotes returns shell dialect hints for the captured platform. Models
// routinely emit GNU-flavored flags on BSD userlands, so the notes are folded
// into every prompt.
func (c ExecutionContext) PlatformNotes() []string {
	switch c.OS {
	case "darwin":
		return []string{
			"BSD userland: sed -i requires an explicit suffix argument (sed -i '')",
			"ls has no --color=auto, use -G",
			"prefer stat -f over stat -c",
		}
	case "linux":
		return []string{
			"GNU userland: long options are available (ls --color=auto, sed -i)",
		}
	case "windows":
		return []string{
			"target PowerShell syntax, not cmd.exe",
		}
	default:
		return nil
	}
}
