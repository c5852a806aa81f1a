package models

// Capability identifies an abstract pipeline provider interface.
type Capability string

const (
	// CapabilityLLM generates narration scripts.
	CapabilityLLM Capability = "llm"
	// CapabilityTTS synthesizes narration audio.
	CapabilityTTS Capability = "tts"
	// CapabilityVisuals produces scene imagery.
	CapabilityVisuals Capability = "visuals"
)

// ProviderNone is the decision name when resolution legitimately yields no
// provider (Pro tier in offline-only mode).
const ProviderNone = "None"

// ProviderDecision is the outcome of resolving a provider for one stage.
// Decisions are deterministic given (capability, tier, offline, registry)
// and are persisted in the job log.
type ProviderDecision struct {
	Capability   Capability `json:"capability"`
	Stage        Stage      `json:"stage,omitempty"`
	ProviderName string     `json:"provider_name"`

	// Rank is the 1-based position of the chosen provider in the chain.
	Rank int `json:"rank"`

	// DowngradeChain is the full ordered candidate list for the request.
	DowngradeChain []string `json:"downgrade_chain"`

	// Reason explains the choice in human-readable form.
	Reason string `json:"reason"`

	// IsFallback is true when the terminal always-available provider was
	// chosen because no chain candidate was registered.
	IsFallback bool `json:"is_fallback"`

	// FallbackFrom lists the skipped chain prefix, or "" when not a fallback.
	FallbackFrom string `json:"fallback_from,omitempty"`
}

// IsNone reports whether resolution yielded no provider.
func (d ProviderDecision) IsNone() bool {
	return d.ProviderName == ProviderNone
}
