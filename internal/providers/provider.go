// Package providers defines the pipeline capability interfaces, the
// provider registry, and the deterministic tier-based resolver.
package providers

import (
	"context"
	"time"

	"github.com/auralabs/aura/internal/models"
)

// Canonical provider names. Resolution chains and the registry use these;
// user input is normalized onto them.
const (
	NameOpenAI     = "OpenAI"
	NameAzure      = "Azure"
	NameGemini     = "Gemini"
	NameOllama     = "Ollama"
	NameRuleBased  = "RuleBased"
	NameElevenLabs = "ElevenLabs"
	NamePlayHT     = "PlayHT"
	NameMimic3     = "Mimic3"
	NamePiper      = "Piper"
	NameWindows    = "Windows"
	NameNull       = "Null"
	NameStability  = "Stability"
	NameRunway     = "Runway"
	NameLocalSD    = "LocalSD"
	NameStock      = "Stock"
	NameSlideshow  = "Slideshow"
)

// Provider is the base contract every capability implementation satisfies.
type Provider interface {
	// Name returns the canonical provider name.
	Name() string

	// Available probes whether the provider can serve a call right now.
	// Terminal fallbacks always return true.
	Available(ctx context.Context) bool

	// RequiresNetwork reports whether calls leave the host.
	RequiresNetwork() bool
}

// GenerateParams tunes a script generation call. Topic carries the brief's
// subject separately from the composed prompt so template-based providers
// never echo prompt scaffolding into the script.
type GenerateParams struct {
	Topic       string
	Language    string
	Tone        string
	TargetWords int
}

// LLMProvider generates narration scripts.
type LLMProvider interface {
	Provider
	Generate(ctx context.Context, systemPrompt, userPrompt string, params GenerateParams) (string, error)
}

// AudioMetadata describes a synthesized narration file.
type AudioMetadata struct {
	Path       string        `json:"path"`
	Duration   time.Duration `json:"duration"`
	SampleRate int           `json:"sample_rate"`
}

// TTSProvider synthesizes narration audio.
type TTSProvider interface {
	Provider
	Synthesize(ctx context.Context, text string, voice models.VoiceSpec, outPath string) (*AudioMetadata, error)
}

// VisualsProvider produces scene imagery.
type VisualsProvider interface {
	Provider
	GenerateImages(ctx context.Context, prompt string, aspect models.AspectRatio, count int, outDir string) ([]string, error)
}
