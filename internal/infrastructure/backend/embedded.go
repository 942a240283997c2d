package backend

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/infrastructure/modelcache"
	"github.com/doeshing/cmdai-go/internal/ports"
)

const defaultRunnerBin = "llama-cli"

// Embedded runs inference through a local llama.cpp-style CLI. The model
// artifact is pinned in the cache for the duration of the run so eviction
// cannot pull it out from under the runner.
type Embedded struct {
	settings domain.EmbeddedSettings
	store    ports.ModelStore
	log      ports.Logger

	lookPath func(string) (string, error)
	run      func(ctx context.Context, bin string, args []string) ([]byte, error)
}

func NewEmbedded(settings domain.EmbeddedSettings, store ports.ModelStore, log ports.Logger) *Embedded {
	return &Embedded{
		settings: settings,
		store:    store,
		log:      log,
		lookPath: exec.LookPath,
		run:      runCommand,
	}
}

func (e *Embedded) ID() string { return "embedded" }

// Available checks the runner binary only; the model is fetched on demand.
func (e *Embedded) Available(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := e.lookPath(e.runnerBin()); err != nil {
		return fmt.Errorf("%s not found on PATH", e.runnerBin())
	}
	return nil
}

func (e *Embedded) Generate(ctx context.Context, call ports.GenerationCall) (domain.RawGeneration, error) {
	spec, err := modelcache.ResolveSpec(e.settings.Model, call.ModelOverride)
	if err != nil {
		return domain.RawGeneration{}, err
	}

	handle, err := e.store.Ensure(ctx, spec)
	if err != nil {
		var capErr *domain.CacheCapacityError
		if errors.As(err, &capErr) {
			return domain.RawGeneration{}, &domain.BackendUnavailableError{Backend: e.ID(), Reason: capErr.Error()}
		}
		return domain.RawGeneration{}, fmt.Errorf("model %s unavailable: %w", spec.ID, err)
	}
	defer handle.Release()

	prompt, err := renderSinglePrompt(call)
	if err != nil {
		return domain.RawGeneration{}, err
	}

	args := []string{
		"-m", handle.Path(),
		"-p", prompt,
		"-n", "256",
		"--temp", "0.2",
		"-no-cnv",
		"--no-display-prompt",
	}
	args = append(args, e.settings.ExtraArgs...)

	e.log.Debug("embedded inference", map[string]interface{}{
		"runner": e.runnerBin(),
		"model":  spec.ID,
	})
	out, err := e.run(ctx, e.runnerBin(), args)
	if err != nil {
		return domain.RawGeneration{}, fmt.Errorf("%s: %w", e.runnerBin(), err)
	}

	command, err := ExtractCommand(string(out))
	if err != nil {
		return domain.RawGeneration{}, err
	}
	return domain.RawGeneration{
		Command:   command,
		Model:     spec.ID,
		Rationale: "generated by local model " + spec.ID,
	}, nil
}

func (e *Embedded) runnerBin() string {
	if e.settings.RunnerBin != "" {
		return e.settings.RunnerBin
	}
	return defaultRunnerBin
}

// runCommand executes the runner, folding stderr into the error on failure
// so inference problems are diagnosable from the attempt log.
func runCommand(ctx context.Context, bin string, args []string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, bin, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%w: %s", err, firstLine(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return out, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

var _ ports.Backend = (*Embedded)(nil)
