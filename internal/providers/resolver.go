package providers

import (
	"fmt"
	"strings"

	"github.com/auralabs/aura/internal/models"
)

// terminalFallbacks names the always-available provider per capability.
var terminalFallbacks = map[models.Capability]string{
	models.CapabilityLLM:     NameRuleBased,
	models.CapabilityTTS:     NameNull,
	models.CapabilityVisuals: NameSlideshow,
}

// chainKey indexes the constant downgrade tables.
type chainKey struct {
	capability models.Capability
	tier       models.Tier
	offline    bool
}

// downgradeChains is the authored lookup table for (capability, tier,
// offline). Chains are constants, never derived from the registry at
// runtime; determinism here is what makes decisions reproducible in logs
// and tests. An empty chain means the combination is a config conflict.
// The LocalSD placeholder is substituted by the resolver when a local
// Stable Diffusion host is configured.
var downgradeChains = map[chainKey][]string{
	// Script generation.
	{models.CapabilityLLM, models.TierPro, false}:            {NameOpenAI, NameAzure, NameGemini, NameOllama, NameRuleBased},
	{models.CapabilityLLM, models.TierPro, true}:             {},
	{models.CapabilityLLM, models.TierProIfAvailable, false}: {NameOpenAI, NameAzure, NameGemini, NameOllama, NameRuleBased},
	{models.CapabilityLLM, models.TierProIfAvailable, true}:  {NameOllama, NameRuleBased},
	{models.CapabilityLLM, models.TierFree, false}:           {NameOllama, NameRuleBased},
	{models.CapabilityLLM, models.TierFree, true}:            {NameOllama, NameRuleBased},

	// Narration synthesis.
	{models.CapabilityTTS, models.TierPro, false}:            {NameElevenLabs, NamePlayHT, NameMimic3, NamePiper, NameWindows},
	{models.CapabilityTTS, models.TierPro, true}:             {},
	{models.CapabilityTTS, models.TierProIfAvailable, false}: {NameElevenLabs, NamePlayHT, NameMimic3, NamePiper, NameWindows},
	{models.CapabilityTTS, models.TierProIfAvailable, true}:  {NameMimic3, NamePiper, NameWindows},
	{models.CapabilityTTS, models.TierFree, false}:           {NameMimic3, NamePiper, NameWindows},
	{models.CapabilityTTS, models.TierFree, true}:            {NameMimic3, NamePiper, NameWindows},

	// Scene imagery.
	{models.CapabilityVisuals, models.TierPro, false}:            {NameStability, NameRunway, NameLocalSD, NameStock, NameSlideshow},
	{models.CapabilityVisuals, models.TierPro, true}:             {},
	{models.CapabilityVisuals, models.TierProIfAvailable, false}: {NameStability, NameRunway, NameLocalSD, NameStock, NameSlideshow},
	{models.CapabilityVisuals, models.TierProIfAvailable, true}:  {NameLocalSD, NameSlideshow},
	{models.CapabilityVisuals, models.TierFree, false}:           {NameLocalSD, NameStock, NameSlideshow},
	{models.CapabilityVisuals, models.TierFree, true}:            {NameLocalSD, NameSlideshow},
}

// Resolver picks a provider for a capability deterministically. Resolution
// is pure: it reads the registry's membership but performs no I/O and no
// availability probes.
type Resolver struct {
	registry *Registry

	// localSDEligible includes LocalSD in visual chains. Set at startup
	// when a local Stable Diffusion host with enough VRAM is configured.
	localSDEligible bool
}

// NewResolver creates a resolver over the registry.
func NewResolver(registry *Registry) *Resolver {
	return &Resolver{registry: registry}
}

// WithLocalSD marks local Stable Diffusion as eligible for visual chains.
func (r *Resolver) WithLocalSD(eligible bool) *Resolver {
	r.localSDEligible = eligible
	return r
}

// ResolveRequest carries the inputs of one resolution.
type ResolveRequest struct {
	Capability models.Capability
	Stage      models.Stage
	Tier       models.Tier

	// SpecificName pins a provider when Tier is TierSpecific.
	SpecificName string

	// Offline forbids network providers.
	Offline bool
}

// Resolve returns a decision for the request. The result is total: every
// tier/offline combination yields a decision, with ProviderName "None"
// reserved for combinations the tables declare empty (Pro while offline).
func (r *Resolver) Resolve(req ResolveRequest) models.ProviderDecision {
	if req.Tier == models.TierSpecific {
		return r.resolveSpecific(req)
	}
	return r.resolveChain(req, req.Tier, "")
}

// resolveSpecific honors a pinned provider name when registered, otherwise
// falls through to ProIfAvailable with the miss recorded in the reason.
func (r *Resolver) resolveSpecific(req ResolveRequest) models.ProviderDecision {
	canonical := NormalizeName(req.SpecificName)
	if r.registry.Has(req.Capability, canonical) {
		name := canonicalOrInput(canonical, req.SpecificName)
		return models.ProviderDecision{
			Capability:     req.Capability,
			Stage:          req.Stage,
			ProviderName:   name,
			Rank:           1,
			DowngradeChain: []string{name},
			Reason:         fmt.Sprintf("user pinned provider %q", req.SpecificName),
		}
	}

	prefix := fmt.Sprintf("pinned provider %q is not registered; falling back to tier logic", req.SpecificName)
	return r.resolveChain(req, models.TierProIfAvailable, prefix)
}

func (r *Resolver) resolveChain(req ResolveRequest, tier models.Tier, reasonPrefix string) models.ProviderDecision {
	chain := r.chainFor(req.Capability, tier, req.Offline)

	decision := models.ProviderDecision{
		Capability:     req.Capability,
		Stage:          req.Stage,
		DowngradeChain: chain,
	}

	if len(chain) == 0 {
		decision.ProviderName = models.ProviderNone
		decision.Reason = joinReason(reasonPrefix,
			fmt.Sprintf("tier %s requires network providers but offline-only mode is enabled", tier))
		return decision
	}

	for i, name := range chain {
		if r.registry.Has(req.Capability, name) {
			decision.ProviderName = name
			decision.Rank = i + 1
			decision.Reason = joinReason(reasonPrefix,
				fmt.Sprintf("first registered candidate in the %s chain", tier))
			return decision
		}
	}

	// No chain candidate registered; the terminal fallback carries the job.
	fallback := terminalFallbacks[req.Capability]
	decision.ProviderName = fallback
	decision.Rank = len(chain) + 1
	decision.IsFallback = true
	decision.FallbackFrom = "All providers"
	decision.Reason = joinReason(reasonPrefix,
		fmt.Sprintf("no chain candidate registered; using always-available %s", fallback))
	return decision
}

// chainFor returns the constant chain with the LocalSD gate applied.
func (r *Resolver) chainFor(capability models.Capability, tier models.Tier, offline bool) []string {
	chain, ok := downgradeChains[chainKey{capability, tier, offline}]
	if !ok {
		chain = []string{terminalFallbacks[capability]}
	}

	out := make([]string, 0, len(chain))
	for _, name := range chain {
		if name == NameLocalSD && !r.localSDEligible {
			continue
		}
		out = append(out, name)
	}
	return out
}

func canonicalOrInput(canonical, input string) string {
	// Known synonyms map onto a canonical constant; unknown-but-registered
	// names keep the user's spelling.
	for _, known := range []string{
		NameOpenAI, NameAzure, NameGemini, NameOllama, NameRuleBased,
		NameElevenLabs, NamePlayHT, NameMimic3, NamePiper, NameWindows, NameNull,
		NameStability, NameRunway, NameLocalSD, NameStock, NameSlideshow,
	} {
		if NormalizeName(known) == canonical {
			return known
		}
	}
	return input
}

func joinReason(prefix, reason string) string {
	if prefix == "" {
		return reason
	}
	return strings.Join([]string{prefix, reason}, "; ")
}
