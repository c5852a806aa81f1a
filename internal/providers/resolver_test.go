package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auralabs/aura/internal/models"
)

func fullRegistry() *Registry {
	r := NewRegistry()
	r.RegisterLLM(NewRuleBasedLLM())
	r.RegisterLLM(NewOllamaLLM(ollamaTestConfig(), nil))
	r.RegisterTTS(NewNullTTS())
	r.RegisterVisuals(NewSlideshowVisuals())
	return r
}

func TestResolveFirstMatchWins(t *testing.T) {
	r := NewResolver(fullRegistry())

	d := r.Resolve(ResolveRequest{
		Capability: models.CapabilityLLM,
		Tier:       models.TierPro,
	})

	// OpenAI/Azure/Gemini unregistered, Ollama is the first registered name.
	assert.Equal(t, NameOllama, d.ProviderName)
	assert.Equal(t, 4, d.Rank)
	assert.False(t, d.IsFallback)
	assert.Equal(t, []string{NameOpenAI, NameAzure, NameGemini, NameOllama, NameRuleBased}, d.DowngradeChain)
}

func TestResolveProOfflineIsConfigConflict(t *testing.T) {
	r := NewResolver(fullRegistry())

	for _, capability := range []models.Capability{
		models.CapabilityLLM, models.CapabilityTTS, models.CapabilityVisuals,
	} {
		d := r.Resolve(ResolveRequest{
			Capability: capability,
			Tier:       models.TierPro,
			Offline:    true,
		})
		assert.True(t, d.IsNone(), string(capability))
		assert.False(t, d.IsFallback, string(capability))
		assert.NotEmpty(t, d.Reason, string(capability))
		assert.Empty(t, d.DowngradeChain, string(capability))
	}
}

func TestResolveTerminalFallback(t *testing.T) {
	// Empty registry: every capability must still resolve via its
	// always-available fallback.
	r := NewResolver(NewRegistry())

	cases := []struct {
		capability models.Capability
		fallback   string
	}{
		{models.CapabilityLLM, NameRuleBased},
		{models.CapabilityTTS, NameNull},
		{models.CapabilityVisuals, NameSlideshow},
	}
	for _, tc := range cases {
		d := r.Resolve(ResolveRequest{Capability: tc.capability, Tier: models.TierFree})
		assert.Equal(t, tc.fallback, d.ProviderName, string(tc.capability))
		assert.True(t, d.IsFallback, string(tc.capability))
		assert.Equal(t, "All providers", d.FallbackFrom, string(tc.capability))
	}
}

func TestResolveTotality(t *testing.T) {
	// Every (capability, tier, offline) combination yields a decision
	// with a name and a reason; nothing panics or returns a zero value.
	r := NewResolver(fullRegistry())

	for _, capability := range []models.Capability{
		models.CapabilityLLM, models.CapabilityTTS, models.CapabilityVisuals,
	} {
		for _, tier := range []models.Tier{
			models.TierFree, models.TierProIfAvailable, models.TierPro,
		} {
			for _, offline := range []bool{false, true} {
				d := r.Resolve(ResolveRequest{Capability: capability, Tier: tier, Offline: offline})
				assert.NotEmpty(t, d.ProviderName)
				assert.NotEmpty(t, d.Reason)
			}
		}
	}
}

func TestResolveDeterministic(t *testing.T) {
	r := NewResolver(fullRegistry())
	req := ResolveRequest{Capability: models.CapabilityLLM, Tier: models.TierProIfAvailable}

	first := r.Resolve(req)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, r.Resolve(req))
	}
}

func TestResolveTierMonotonicity(t *testing.T) {
	// Raising the tier never removes options from the chain.
	r := NewResolver(NewRegistry()).WithLocalSD(true)

	for _, capability := range []models.Capability{
		models.CapabilityLLM, models.CapabilityTTS, models.CapabilityVisuals,
	} {
		free := r.chainFor(capability, models.TierFree, false)
		pro := r.chainFor(capability, models.TierProIfAvailable, false)

		set := map[string]bool{}
		for _, name := range pro {
			set[name] = true
		}
		for _, name := range free {
			assert.True(t, set[name], "%s: %s missing from higher tier", capability, name)
		}
	}
}

func TestResolveSpecificRegistered(t *testing.T) {
	r := NewResolver(fullRegistry())

	d := r.Resolve(ResolveRequest{
		Capability:   models.CapabilityLLM,
		Tier:         models.TierSpecific,
		SpecificName: "rule_based",
	})

	assert.Equal(t, NameRuleBased, d.ProviderName)
	assert.Equal(t, 1, d.Rank)
	assert.Equal(t, []string{NameRuleBased}, d.DowngradeChain)
}

func TestResolveSpecificUnregisteredFallsThrough(t *testing.T) {
	r := NewResolver(fullRegistry())

	d := r.Resolve(ResolveRequest{
		Capability:   models.CapabilityLLM,
		Tier:         models.TierSpecific,
		SpecificName: "claude",
	})

	assert.Equal(t, NameOllama, d.ProviderName)
	assert.Contains(t, d.Reason, "claude")
	assert.Contains(t, d.Reason, "not registered")
}

func TestLocalSDGate(t *testing.T) {
	gated := NewResolver(NewRegistry())
	open := NewResolver(NewRegistry()).WithLocalSD(true)

	assert.NotContains(t, gated.chainFor(models.CapabilityVisuals, models.TierPro, false), NameLocalSD)
	assert.Contains(t, open.chainFor(models.CapabilityVisuals, models.TierPro, false), NameLocalSD)
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"eleven labs":      NameElevenLabs,
		"ElevenLabs":       NameElevenLabs,
		"PEXELS":           NameStock,
		"stable-diffusion": NameLocalSD,
		"rule_based":       NameRuleBased,
		"sapi":             NameWindows,
		"mystery":          "mystery",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeName(in), in)
	}
}

func TestRegistryLookup(t *testing.T) {
	r := fullRegistry()

	p, ok := r.LLM("RULE-BASED")
	require.True(t, ok)
	assert.Equal(t, NameRuleBased, p.Name())

	_, ok = r.TTS("ElevenLabs")
	assert.False(t, ok)

	assert.True(t, r.Has(models.CapabilityVisuals, "slideshow"))
	assert.ElementsMatch(t, []string{NameNull}, r.Names(models.CapabilityTTS))
}
