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

// scriptWPM converts the target duration into a word budget for the model.
const scriptWPM = 150

// minTargetWords keeps very short videos from producing one-sentence prompts
// the models pad with filler.
const minTargetWords = 30

// ScriptStage generates and cleans the narration script.
type ScriptStage struct {
	registry *providers.Registry
}

// NewScriptStage creates the script stage.
func NewScriptStage(registry *providers.Registry) *ScriptStage {
	return &ScriptStage{registry: registry}
}

func (s *ScriptStage) Name() models.Stage            { return models.StageScript }
func (s *ScriptStage) Capability() models.Capability { return models.CapabilityLLM }

// Execute generates the script with the resolved provider, cleans it, splits
// it into scenes, and persists it as the script artifact.
func (s *ScriptStage) Execute(ctx context.Context, st *State, progress ProgressFunc) ([]models.Artifact, error) {
	llm, ok := s.registry.LLM(st.Decision.ProviderName)
	if !ok {
		return nil, models.NewStageError(models.ErrCodeProviderUnavailable,
			fmt.Sprintf("script provider %q is not registered", st.Decision.ProviderName), nil)
	}

	progress(0, 0)

	brief := st.Inputs.Brief
	plan := st.Inputs.Plan

	targetWords := int(plan.TargetDuration.Minutes() * scriptWPM)
	if targetWords < minTargetWords {
		targetWords = minTargetWords
	}

	raw, err := llm.Generate(ctx, systemPrompt(), userPrompt(brief, plan, targetWords), providers.GenerateParams{
		Topic:       brief.Topic,
		Language:    brief.LanguageOrDefault(),
		Tone:        brief.Tone,
		TargetWords: targetWords,
	})
	if err != nil {
		return nil, err
	}
	progress(70, 0)

	cleaned := CleanScript(raw)
	if cleaned == "" {
		return nil, &models.StageError{
			Code:      models.ErrCodeProviderCall,
			Message:   fmt.Sprintf("provider %s returned no narratable text", llm.Name()),
			Transient: true,
		}
	}

	scriptPath := filepath.Join(st.OutDir, "script.txt")
	if err := os.WriteFile(scriptPath, []byte(cleaned+"\n"), 0o644); err != nil {
		return nil, models.NewStageError(models.ErrCodeDiskSpace, "writing script artifact", err)
	}

	st.ScriptText = cleaned
	st.ScriptPath = scriptPath
	st.Scenes = SplitScenes(cleaned)

	progress(100, 0)

	size, _ := fileSize(scriptPath)
	return []models.Artifact{{Type: models.ArtifactScript, Path: scriptPath, SizeBytes: size}}, nil
}

func systemPrompt() string {
	return "You write narration scripts for short informational videos. " +
		"Write only the words the narrator speaks. Separate scenes with blank lines. " +
		"Do not include headings, stage directions, bracketed markers, word counts, or sources."
}

func userPrompt(brief models.Brief, plan models.PlanSpec, targetWords int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a %d word narration script about: %s.\n", targetWords, brief.Topic)
	if brief.Audience != "" {
		fmt.Fprintf(&b, "Audience: %s.\n", brief.Audience)
	}
	if brief.Goal != "" {
		fmt.Fprintf(&b, "Goal: %s.\n", brief.Goal)
	}
	if brief.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s.\n", brief.Tone)
	}
	if plan.Pacing != "" {
		fmt.Fprintf(&b, "Pacing: %s.\n", plan.Pacing)
	}
	fmt.Fprintf(&b, "Language: %s.", brief.LanguageOrDefault())
	return b.String()
}

func fileSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
