package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"

	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/ports"
)

// Prompter asks the user to approve a risky command before it runs. On a
// real terminal it presents a huh confirm form; with a supplied reader it
// falls back to a plain y/N line. Enabled reports false on piped stdin so
// the engine refuses instead of hanging on a read.
type Prompter struct {
	in   *bufio.Reader
	out  io.Writer
	tty  bool
	pipe bool
}

// NewPrompter constructs a prompter. Pass nil readers to use the process
// stdio; a non-nil in forces the plain-text path, which tests rely on.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{}
	if in == nil {
		in = os.Stdin
		fd := os.Stdin.Fd()
		p.tty = isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
		p.pipe = !p.tty
	}
	if out == nil {
		out = os.Stderr
	}
	p.in = bufio.NewReader(in)
	p.out = out
	return p
}

// Enabled reports whether a user is attached to answer.
func (p *Prompter) Enabled() bool {
	return !p.pipe
}

// Confirm asks for approval. Critical overrides demand a typed "yes"; other
// tiers accept y/N. Aborting the form counts as a decline, not an error.
func (p *Prompter) Confirm(command string, risk domain.RiskAssessment) (bool, error) {
	if p.tty {
		return p.confirmForm(command, risk)
	}
	return p.confirmPlain(command, risk)
}

func (p *Prompter) confirmForm(command string, risk domain.RiskAssessment) (bool, error) {
	approved := false
	prompt := huh.NewConfirm().
		Title("Run this command?").
		Description(describeRisk(command, risk)).
		Affirmative("Run").
		Negative("Cancel").
		Value(&approved).
		WithTheme(huh.ThemeCharm())
	if err := prompt.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return approved, nil
}

func (p *Prompter) confirmPlain(command string, risk domain.RiskAssessment) (bool, error) {
	fmt.Fprintf(p.out, "\n%s risk detected\n", strings.ToUpper(string(risk.Level)))
	for _, reason := range risk.Reasons {
		fmt.Fprintf(p.out, " - %s\n", reason)
	}
	fmt.Fprintf(p.out, "Command:\n  %s\n", command)

	if risk.Level == domain.RiskCritical {
		return p.askExplicit()
	}
	return p.ask("[y/N]: ")
}

func (p *Prompter) ask(prompt string) (bool, error) {
	fmt.Fprint(p.out, "Continue? ", prompt)
	line, err := p.in.ReadString('\n')
	if err != nil {
		return false, err
	}
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes", nil
}

func (p *Prompter) askExplicit() (bool, error) {
	fmt.Fprint(p.out, "Type 'yes' to confirm (or anything else to cancel): ")
	line, err := p.in.ReadString('\n')
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(line) == "yes", nil
}

func describeRisk(command string, risk domain.RiskAssessment) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(command))
	fmt.Fprintf(&b, "\nrisk: %s", risk.Level)
	for _, reason := range risk.Reasons {
		fmt.Fprintf(&b, "\n- %s", reason)
	}
	return b.String()
}

var _ ports.ConfirmationPrompter = (*Prompter)(nil)
