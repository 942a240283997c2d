package modelcache

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/doeshing/cmdai-go/internal/domain"
)

// CatalogModel is one known-good artifact the embedded backend can run.
type CatalogModel struct {
	Spec        domain.ModelSpec
	Name        string
	Description string
	// CISuitable marks models small enough for constrained environments.
	CISuitable bool
}

// DefaultModelID is used when neither config nor flags name a model.
const DefaultModelID = "qwen-1.5b-q4"

var catalog = map[string]CatalogModel{
	"smollm-135m-q4": {
		Spec:        hfSpec("smollm-135m-q4", "HuggingFaceTB/SmolLM-135M-Instruct-GGUF", "smollm-135m-instruct-q4_k_m.gguf", 82),
		Name:        "SmolLM 135M Q4",
		Description: "ultra-tiny model for testing only",
		CISuitable:  true,
	},
	"qwen-0.5b-q4": {
		Spec:        hfSpec("qwen-0.5b-q4", "Qwen/Qwen2.5-Coder-0.5B-Instruct-GGUF", "qwen2.5-coder-0.5b-instruct-q4_k_m.gguf", 352),
		Name:        "Qwen2.5-Coder 0.5B Q4",
		Description: "tiny Qwen model, fast and CI-friendly",
		CISuitable:  true,
	},
	"tinyllama-1.1b-q4": {
		Spec:        hfSpec("tinyllama-1.1b-q4", "TheBloke/TinyLlama-1.1B-Chat-v1.0-GGUF", "tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf", 669),
		Name:        "TinyLlama 1.1B Q4",
		Description: "small general model for low-memory hosts",
		CISuitable:  true,
	},
	DefaultModelID: {
		Spec:        hfSpec(DefaultModelID, "Qwen/Qwen2.5-Coder-1.5B-Instruct-GGUF", "qwen2.5-coder-1.5b-instruct-q4_k_m.gguf", 1117),
		Name:        "Qwen2.5-Coder 1.5B Q4",
		Description: "default model, strong at shell commands",
	},
	"mistral-7b-q3": {
		Spec:        hfSpec("mistral-7b-q3", "TheBloke/Mistral-7B-Instruct-v0.2-GGUF", "mistral-7b-instruct-v0.2.Q3_K_M.gguf", 3520),
		Name:        "Mistral 7B Instruct Q3",
		Description: "highest quality, large download",
	},
}

func hfSpec(id, repo, filename string, sizeMB int64) domain.ModelSpec {
	return domain.ModelSpec{
		ID:        id,
		URL:       fmt.Sprintf("https://huggingface.co/%s/resolve/main/%s", repo, filename),
		SizeBytes: sizeMB * 1024 * 1024,
	}
}

// DefaultModel returns the catalog entry used when nothing else is configured.
func DefaultModel() CatalogModel {
	return catalog[DefaultModelID]
}

// Lookup resolves a catalog id.
func Lookup(id string) (CatalogModel, bool) {
	m, ok := catalog[id]
	return m, ok
}

// Catalog lists every known model, smallest first.
func Catalog() []CatalogModel {
	models := make([]CatalogModel, 0, len(catalog))
	for _, m := range catalog {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Spec.SizeBytes < models[j].Spec.SizeBytes })
	return models
}

// ResolveSpec turns a configured or flag-supplied model reference into a full
// spec. Empty falls back to the default; a bare catalog id expands; anything
// else must already carry a URL.
func ResolveSpec(configured domain.ModelSpec, override string) (domain.ModelSpec, error) {
	if override != "" {
		if m, ok := Lookup(override); ok {
			return m.Spec, nil
		}
		if strings.Contains(override, "://") {
			return domain.ModelSpec{ID: idFromURL(override), URL: override}, nil
		}
		return domain.ModelSpec{}, fmt.Errorf("unknown model %q; known ids: %s", override, strings.Join(knownIDs(), ", "))
	}
	if configured.ID != "" && configured.URL == "" {
		if m, ok := Lookup(configured.ID); ok {
			return m.Spec, nil
		}
		return domain.ModelSpec{}, fmt.Errorf("model %q has no url and is not in the catalog", configured.ID)
	}
	if configured.ID != "" {
		return configured, nil
	}
	return DefaultModel().Spec, nil
}

func knownIDs() []string {
	ids := make([]string, 0, len(catalog))
	for id := range catalog {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func idFromURL(rawURL string) string {
	base := path.Base(rawURL)
	base = strings.TrimSuffix(base, path.Ext(base))
	return sanitizeName(base)
}
