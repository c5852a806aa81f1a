package providers

import (
	"strings"
	"sync"

	"github.com/auralabs/aura/internal/models"
)

// synonyms maps normalized aliases onto canonical provider names. Keys are
// lowercased with separators stripped; NormalizeName applies the same
// folding to input before lookup.
var synonyms = map[string]string{
	"openai":          NameOpenAI,
	"gpt":             NameOpenAI,
	"chatgpt":         NameOpenAI,
	"azure":           NameAzure,
	"azureopenai":     NameAzure,
	"gemini":          NameGemini,
	"google":          NameGemini,
	"ollama":          NameOllama,
	"rulebased":       NameRuleBased,
	"template":        NameRuleBased,
	"elevenlabs":      NameElevenLabs,
	"eleven":          NameElevenLabs,
	"playht":          NamePlayHT,
	"mimic3":          NameMimic3,
	"mimic":           NameMimic3,
	"piper":           NamePiper,
	"windows":         NameWindows,
	"sapi":            NameWindows,
	"null":            NameNull,
	"silence":         NameNull,
	"stability":       NameStability,
	"stabilityai":     NameStability,
	"runway":          NameRunway,
	"localsd":         NameLocalSD,
	"sd":              NameLocalSD,
	"stablediffusion": NameLocalSD,
	"stock":           NameStock,
	"pexels":          NameStock,
	"slideshow":       NameSlideshow,
}

// NormalizeName folds a user-supplied provider name onto its canonical
// form. Unknown names are returned with separators stripped so lookups
// stay case- and punctuation-insensitive.
func NormalizeName(name string) string {
	folded := strings.ToLower(name)
	folded = strings.NewReplacer(" ", "", "-", "", "_", "", ".", "").Replace(folded)
	if canonical, ok := synonyms[folded]; ok {
		return canonical
	}
	return folded
}

// Registry holds registered providers per capability. It is read-mostly:
// populated at startup, read under a shared lock during resolution and
// stage execution.
type Registry struct {
	mu      sync.RWMutex
	llm     map[string]LLMProvider
	tts     map[string]TTSProvider
	visuals map[string]VisualsProvider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		llm:     make(map[string]LLMProvider),
		tts:     make(map[string]TTSProvider),
		visuals: make(map[string]VisualsProvider),
	}
}

// RegisterLLM adds a script provider under its canonical name.
func (r *Registry) RegisterLLM(p LLMProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[NormalizeName(p.Name())] = p
}

// RegisterTTS adds a narration provider under its canonical name.
func (r *Registry) RegisterTTS(p TTSProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[NormalizeName(p.Name())] = p
}

// RegisterVisuals adds a visuals provider under its canonical name.
func (r *Registry) RegisterVisuals(p VisualsProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visuals[NormalizeName(p.Name())] = p
}

// LLM looks up a script provider by name.
func (r *Registry) LLM(name string) (LLMProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.llm[NormalizeName(name)]
	return p, ok
}

// TTS looks up a narration provider by name.
func (r *Registry) TTS(name string) (TTSProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.tts[NormalizeName(name)]
	return p, ok
}

// Visuals looks up a visuals provider by name.
func (r *Registry) Visuals(name string) (VisualsProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.visuals[NormalizeName(name)]
	return p, ok
}

// Has reports whether a provider name is registered for the capability.
func (r *Registry) Has(capability models.Capability, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := NormalizeName(name)
	switch capability {
	case models.CapabilityLLM:
		_, ok := r.llm[key]
		return ok
	case models.CapabilityTTS:
		_, ok := r.tts[key]
		return ok
	case models.CapabilityVisuals:
		_, ok := r.visuals[key]
		return ok
	}
	return false
}

// Names lists canonical registered names for a capability.
func (r *Registry) Names(capability models.Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	switch capability {
	case models.CapabilityLLM:
		for _, p := range r.llm {
			names = append(names, p.Name())
		}
	case models.CapabilityTTS:
		for _, p := range r.tts {
			names = append(names, p.Name())
		}
	case models.CapabilityVisuals:
		for _, p := range r.visuals {
			names = append(names, p.Name())
		}
	}
	return names
}
