package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/auralabs/aura/internal/encoder"
	"github.com/auralabs/aura/internal/models"
)

// ExportStage transcodes an intermediate video into a platform preset. For
// timeline exports it renders the timeline first, then transcodes.
type ExportStage struct {
	render *RenderStage
}

// NewExportStage creates the export stage.
func NewExportStage(render *RenderStage) *ExportStage {
	return &ExportStage{render: render}
}

func (s *ExportStage) Name() models.Stage            { return models.StageExport }
func (s *ExportStage) Capability() models.Capability { return "" }

func (s *ExportStage) Execute(ctx context.Context, st *State, progress ProgressFunc) ([]models.Artifact, error) {
	if st.Export == nil {
		return nil, models.NewStageError(models.ErrCodeInternal, "export stage ran without an export request", nil)
	}

	preset, err := encoder.LookupPreset(st.Export.Preset)
	if err != nil {
		return nil, models.NewStageError(models.ErrCodeValidation, err.Error(), nil)
	}

	input := st.IntermediatePath
	transcodeProgress := progress

	if input == "" && st.Export.Timeline != nil {
		// Render the timeline into the first half of the progress range,
		// transcode into the second.
		tl := st.Export.Timeline
		rendered := filepath.Join(st.OutDir, "intermediate.mp4")
		renderProgress := func(pct float64, eta time.Duration) { progress(pct/2, eta) }
		if err := s.render.RenderTimeline(ctx, tl.Scenes, tl.AudioPath, tl.Render, rendered, renderProgress); err != nil {
			return nil, err
		}
		st.IntermediatePath = rendered
		input = rendered
		transcodeProgress = func(pct float64, eta time.Duration) { progress(50+pct/2, eta) }
	}
	if input == "" {
		input = st.Export.InputFile
	}
	if _, err := os.Stat(input); err != nil {
		return nil, models.NewStageError(models.ErrCodeValidation,
			fmt.Sprintf("export input %q is not readable", input), err)
	}

	info, err := s.render.detector.Detect(ctx)
	if err != nil {
		return nil, models.NewStageError(models.ErrCodeNoEncoder, "encoder binary not found", err)
	}
	if !info.HasEncoder(preset.VideoCodec) {
		return nil, models.NewStageError(models.ErrCodeNoEncoder,
			fmt.Sprintf("this ffmpeg build lacks the %s encoder", preset.VideoCodec), nil)
	}

	// Progress needs the source duration; a failed probe degrades to a
	// coarse 0 then 100.
	target, probeErr := encoder.ProbeDuration(ctx, info.ProbePath, input)
	if probeErr != nil {
		target = 0
	}

	outPath := filepath.Join(st.OutDir, fmt.Sprintf("final_%s.%s", preset.Name, preset.Container))

	name, args := encoder.NewCommandBuilder(info.Path).
		HideBanner().
		Stats().
		Overwrite().
		Input(input).
		Scale(preset.Width, preset.Height).
		VideoCodec(preset.VideoCodec).
		VideoBitrate(preset.VideoBitrate).
		FPS(preset.FPS).
		AudioCodec(preset.AudioCodec).
		AudioBitrate(preset.AudioBitrate).
		PixelFormat("yuv420p").
		MovFlags("+faststart").
		Output(outPath).
		Build()

	if err := s.render.runEncode(ctx, name, args, target, transcodeProgress); err != nil {
		return nil, err
	}

	st.FinalPath = outPath

	size, _ := fileSize(outPath)
	return []models.Artifact{{Type: models.ArtifactFinalVideo, Path: outPath, SizeBytes: size}}, nil
}
