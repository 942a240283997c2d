package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"

	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/services"
)

// timeRounding trims duration output to a readable precision.
const timeRounding = time.Millisecond

var (
	commandStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Faint(true)

	badgeStyles = map[domain.RiskLevel]lipgloss.Style{
		domain.RiskSafe:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		domain.RiskModerate: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		domain.RiskHigh:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208")),
		domain.RiskCritical: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}
)

// Renderer formats pipeline results for the terminal. Text output gets
// lipgloss styling on a TTY; json and yaml emit the domain structs verbatim
// so the output is scriptable.
type Renderer struct {
	out    io.Writer
	format domain.OutputFormat
	styled bool
}

// NewRenderer builds a renderer for the writer. Styling applies only to
// text output on a terminal.
func NewRenderer(out io.Writer, format domain.OutputFormat) *Renderer {
	styled := false
	if f, ok := out.(*os.File); ok && format == domain.OutputText {
		styled = isatty.IsTerminal(f.Fd())
	}
	return &Renderer{out: out, format: format, styled: styled}
}

type outcomePayload struct {
	Command   domain.GeneratedCommand `json:"command" yaml:"command"`
	Execution *domain.ExecutionResult `json:"execution,omitempty" yaml:"execution,omitempty"`
}

type checkPayload struct {
	Command string                `json:"command" yaml:"command"`
	Risk    domain.RiskAssessment `json:"risk" yaml:"risk"`
}

// Outcome renders one generate (and possibly execute) cycle.
func (r *Renderer) Outcome(outcome services.RunOutcome) error {
	payload := outcomePayload{Command: outcome.Command, Execution: outcome.Execution}
	switch r.format {
	case domain.OutputJSON:
		return r.renderJSON(payload)
	case domain.OutputYAML:
		return r.renderYAML(payload)
	default:
		r.outcomeText(outcome)
		return nil
	}
}

// Check renders a validate-only assessment.
func (r *Renderer) Check(command string, risk domain.RiskAssessment) error {
	switch r.format {
	case domain.OutputJSON:
		return r.renderJSON(checkPayload{Command: command, Risk: risk})
	case domain.OutputYAML:
		return r.renderYAML(checkPayload{Command: command, Risk: risk})
	default:
		fmt.Fprintf(r.out, "%s %s\n", r.badge(risk.Level), r.styleCommand(command))
		r.riskDetails(risk)
		return nil
	}
}

// History renders records newest first in the pipe-separated list format.
func (r *Renderer) History(records []domain.HistoryRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(r.out, "No history recorded yet.")
		return nil
	}
	for _, rec := range records {
		executed := " "
		if rec.Executed {
			executed = "x"
		}
		fmt.Fprintf(r.out, "%s | [%s] | %-8s | %s | %s\n",
			rec.Timestamp.Format("2006-01-02 15:04"),
			executed,
			rec.RiskLevel,
			rec.Backend,
			rec.Command)
	}
	return nil
}

// Health renders the doctor report.
func (r *Renderer) Health(report domain.HealthReport) error {
	for _, check := range report.Checks {
		fmt.Fprintf(r.out, "[%s] %s - %s\n",
			strings.ToUpper(string(check.Status)),
			check.Name,
			check.Details)
	}
	if report.Healthy() {
		fmt.Fprintln(r.out, "\nEnvironment looks good.")
	} else {
		fmt.Fprintln(r.out, "\nSome checks failed; see above.")
	}
	return nil
}

// CachedModels renders the model cache listing.
func (r *Renderer) CachedModels(models []domain.CachedModel) error {
	if len(models) == 0 {
		fmt.Fprintln(r.out, "No models cached.")
		return nil
	}
	for _, m := range models {
		fmt.Fprintf(r.out, "%-40s %10s  last used %s\n",
			m.ID,
			humanize.IBytes(uint64(m.SizeBytes)),
			humanize.Time(m.LastAccess))
	}
	return nil
}

// CacheStats renders cache usage totals.
func (r *Renderer) CacheStats(stats domain.CacheStats) error {
	fmt.Fprintf(r.out, "Directory: %s\n", stats.Dir)
	fmt.Fprintf(r.out, "Models:    %d (%d pinned)\n", stats.Entries, stats.Pinned)
	fmt.Fprintf(r.out, "Used:      %s of %s\n",
		humanize.IBytes(uint64(stats.TotalBytes)),
		humanize.IBytes(uint64(stats.MaxBytes)))
	return nil
}

func (r *Renderer) outcomeText(outcome services.RunOutcome) {
	generated := outcome.Command
	fmt.Fprintf(r.out, "%s %s\n", r.badge(generated.Risk.Level), r.styleCommand(generated.Command))

	meta := fmt.Sprintf("backend: %s", generated.Backend)
	if generated.Model != "" {
		meta += fmt.Sprintf(", model: %s", generated.Model)
	}
	if generated.Refinements > 0 {
		meta += fmt.Sprintf(", refined %dx", generated.Refinements)
	}
	fmt.Fprintln(r.out, r.styleMuted(meta))

	r.riskDetails(generated.Risk)
	if generated.Rationale != "" {
		fmt.Fprintln(r.out, r.styleMuted("rationale: "+generated.Rationale))
	}

	if outcome.Execution != nil {
		fmt.Fprintln(r.out)
		r.executionText(*outcome.Execution)
	}
}

func (r *Renderer) executionText(result domain.ExecutionResult) {
	if result.DryRunNotes != "" {
		fmt.Fprintln(r.out, result.DryRunNotes)
		return
	}

	switch result.State {
	case domain.StateCompleted:
		if result.ExitCode == 0 {
			fmt.Fprintf(r.out, "completed in %s\n", result.Duration.Round(timeRounding))
		} else {
			fmt.Fprintf(r.out, "exited %d after %s\n", result.ExitCode, result.Duration.Round(timeRounding))
		}
	case domain.StateTimedOut:
		fmt.Fprintf(r.out, "timed out after %s; process group killed\n", result.Duration.Round(timeRounding))
	case domain.StateKilled:
		fmt.Fprintln(r.out, "killed before completion")
	case domain.StateRefused:
		fmt.Fprintf(r.out, "refused: %s\n", result.RefusalWhy)
	}

	if result.Stdout != "" {
		fmt.Fprintln(r.out, result.Stdout)
	}
	if result.Stderr != "" {
		fmt.Fprintln(r.out, r.styleMuted(result.Stderr))
	}
	if result.Truncated {
		fmt.Fprintln(r.out, r.styleMuted("(output truncated)"))
	}
}

func (r *Renderer) riskDetails(risk domain.RiskAssessment) {
	for _, reason := range risk.Reasons {
		fmt.Fprintf(r.out, " - %s\n", reason)
	}
	if risk.Suggestion != "" {
		fmt.Fprintf(r.out, "safer alternative: %s\n", risk.Suggestion)
	}
}

func (r *Renderer) badge(level domain.RiskLevel) string {
	label := fmt.Sprintf("[%s]", strings.ToUpper(string(level)))
	if !r.styled {
		return label
	}
	if style, ok := badgeStyles[level]; ok {
		return style.Render(label)
	}
	return label
}

func (r *Renderer) styleCommand(command string) string {
	if !r.styled {
		return command
	}
	return commandStyle.Render(command)
}

func (r *Renderer) styleMuted(text string) string {
	if !r.styled {
		return text
	}
	return mutedStyle.Render(text)
}

func (r *Renderer) renderJSON(payload interface{}) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func (r *Renderer) renderYAML(payload interface{}) error {
	data, err := yaml.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = r.out.Write(data)
	return err
}
