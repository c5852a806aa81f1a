package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/auralabs/aura/internal/models"
	"github.com/auralabs/aura/internal/providers"
)

// NarrationStage synthesizes the narration audio from the cleaned script.
type NarrationStage struct {
	registry *providers.Registry
}

// NewNarrationStage creates the narration stage.
func NewNarrationStage(registry *providers.Registry) *NarrationStage {
	return &NarrationStage{registry: registry}
}

func (s *NarrationStage) Name() models.Stage            { return models.StageNarration }
func (s *NarrationStage) Capability() models.Capability { return models.CapabilityTTS }

func (s *NarrationStage) Execute(ctx context.Context, st *State, progress ProgressFunc) ([]models.Artifact, error) {
	tts, ok := s.registry.TTS(st.Decision.ProviderName)
	if !ok {
		return nil, models.NewStageError(models.ErrCodeProviderUnavailable,
			fmt.Sprintf("narration provider %q is not registered", st.Decision.ProviderName), nil)
	}
	if st.ScriptText == "" {
		return nil, models.NewStageError(models.ErrCodeInternal, "narration stage ran without a script", nil)
	}

	progress(0, 0)

	outPath := filepath.Join(st.OutDir, "narration.wav")
	meta, err := tts.Synthesize(ctx, st.ScriptText, st.Inputs.Voice, outPath)
	if err != nil {
		return nil, err
	}

	st.AudioPath = meta.Path
	st.AudioDuration = meta.Duration

	progress(100, 0)

	size, _ := fileSize(meta.Path)
	return []models.Artifact{{Type: models.ArtifactAudio, Path: meta.Path, SizeBytes: size}}, nil
}
