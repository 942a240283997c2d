package backend

import (
	"context"
	"time"

	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/ports"
)

// Registry tries backends strictly in configured order. One backend runs at a
// time; the next is consulted only after the previous one was skipped or
// failed. Every non-winning attempt is recorded so exhaustion can report the
// full story instead of just the last error.
type Registry struct {
	chain   []ports.Backend
	timeout time.Duration
	log     ports.Logger
}

// NewRegistry builds a registry over an ordered chain. timeout bounds each
// individual Generate call; zero means the caller's context is the only limit.
func NewRegistry(chain []ports.Backend, timeout time.Duration, log ports.Logger) *Registry {
	return &Registry{chain: chain, timeout: timeout, log: log}
}

// BuildChain maps configured backend names to adapters in fallback order.
// Names are validated by Config.ValidateConsistency before this runs.
func BuildChain(cfg domain.Config, store ports.ModelStore, log ports.Logger) []ports.Backend {
	chain := make([]ports.Backend, 0, 4)
	for _, name := range cfg.OrderedBackends() {
		switch name {
		case "embedded":
			chain = append(chain, NewEmbedded(cfg.Backends.Embedded, store, log))
		case "ollama":
			chain = append(chain, NewOllama(cfg.Backends.Ollama))
		case "openai":
			chain = append(chain, NewOpenAI(cfg.Backends.OpenAI))
		case "static":
			chain = append(chain, NewStatic())
		}
	}
	return chain
}

func (r *Registry) Generate(ctx context.Context, call ports.GenerationCall) (domain.RawGeneration, string, error) {
	attempts := make([]domain.BackendAttempt, 0, len(r.chain))
	for _, b := range r.chain {
		if err := ctx.Err(); err != nil {
			return domain.RawGeneration{}, "", err
		}
		if err := b.Available(ctx); err != nil {
			r.log.Debug("backend skipped", map[string]interface{}{
				"backend": b.ID(),
				"reason":  err.Error(),
			})
			attempts = append(attempts, domain.BackendAttempt{Backend: b.ID(), Reason: "unavailable: " + err.Error()})
			continue
		}

		raw, err := r.generateOne(ctx, b, call)
		if err != nil {
			r.log.Warn("backend failed", map[string]interface{}{
				"backend": b.ID(),
				"error":   err.Error(),
			})
			attempts = append(attempts, domain.BackendAttempt{Backend: b.ID(), Reason: err.Error()})
			continue
		}
		if raw.Command == "" {
			attempts = append(attempts, domain.BackendAttempt{Backend: b.ID(), Reason: domain.ErrGenerationMalformed.Error()})
			continue
		}
		r.log.Debug("backend succeeded", map[string]interface{}{"backend": b.ID()})
		return raw, b.ID(), nil
	}
	return domain.RawGeneration{}, "", &domain.NoBackendError{Attempts: attempts}
}

func (r *Registry) generateOne(ctx context.Context, b ports.Backend, call ports.GenerationCall) (domain.RawGeneration, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return b.Generate(ctx, call)
}

// Backends exposes the chain for diagnostics such as the doctor command.
func (r *Registry) Backends() []ports.Backend {
	out := make([]ports.Backend, len(r.chain))
	copy(out, r.chain)
	return out
}

var _ ports.BackendRegistry = (*Registry)(nil)
