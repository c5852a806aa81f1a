package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/auralabs/aura/internal/models"
	"github.com/auralabs/aura/internal/providers"
)

// VisualsStage produces one image per scene.
type VisualsStage struct {
	registry *providers.Registry
}

// NewVisualsStage creates the visuals stage.
func NewVisualsStage(registry *providers.Registry) *VisualsStage {
	return &VisualsStage{registry: registry}
}

func (s *VisualsStage) Name() models.Stage            { return models.StageVisuals }
func (s *VisualsStage) Capability() models.Capability { return models.CapabilityVisuals }

func (s *VisualsStage) Execute(ctx context.Context, st *State, progress ProgressFunc) ([]models.Artifact, error) {
	vis, ok := s.registry.Visuals(st.Decision.ProviderName)
	if !ok {
		return nil, models.NewStageError(models.ErrCodeProviderUnavailable,
			fmt.Sprintf("visuals provider %q is not registered", st.Decision.ProviderName), nil)
	}

	count := len(st.Scenes)
	if count == 0 {
		count = 1
	}

	outDir := filepath.Join(st.OutDir, "visuals")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, models.NewStageError(models.ErrCodeDiskSpace, "creating visuals directory", err)
	}

	progress(0, 0)

	paths, err := vis.GenerateImages(ctx, visualsPrompt(st.Inputs), st.Inputs.Brief.Aspect, count, outDir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, &models.StageError{
			Code:      models.ErrCodeProviderCall,
			Message:   fmt.Sprintf("provider %s produced no images", vis.Name()),
			Transient: true,
		}
	}

	st.ImagePaths = paths

	progress(100, 0)

	var total int64
	for _, p := range paths {
		size, _ := fileSize(p)
		total += size
	}
	return []models.Artifact{{Type: models.ArtifactVisualSet, Path: outDir, SizeBytes: total}}, nil
}

// visualsPrompt combines the topic with the plan's style hint.
func visualsPrompt(inputs models.JobInputs) string {
	parts := []string{inputs.Brief.Topic}
	if inputs.Plan.Style != "" {
		parts = append(parts, inputs.Plan.Style)
	}
	return strings.Join(parts, ", ")
}
