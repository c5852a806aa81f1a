package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/auralabs/aura/internal/encoder"
	"github.com/auralabs/aura/internal/models"
)

// defaultResolutions maps aspect ratios onto output resolutions used when
// the render spec leaves the size unset.
var defaultResolutions = map[models.AspectRatio][2]int{
	models.AspectLandscape: {1920, 1080},
	models.AspectPortrait:  {1080, 1920},
	models.AspectSquare:    {1080, 1080},
	models.AspectClassic:   {1440, 1080},
}

// RenderStage composes the scene images and narration audio into the
// intermediate timeline video.
type RenderStage struct {
	supervisor *encoder.Supervisor
	detector   *encoder.Detector
}

// NewRenderStage creates the timeline render stage.
func NewRenderStage(supervisor *encoder.Supervisor, detector *encoder.Detector) *RenderStage {
	return &RenderStage{supervisor: supervisor, detector: detector}
}

func (s *RenderStage) Name() models.Stage            { return models.StageTimelineRender }
func (s *RenderStage) Capability() models.Capability { return "" }

func (s *RenderStage) Execute(ctx context.Context, st *State, progress ProgressFunc) ([]models.Artifact, error) {
	if len(st.ImagePaths) == 0 {
		return nil, models.NewStageError(models.ErrCodeInternal, "timeline render ran without images", nil)
	}
	if st.AudioPath == "" {
		return nil, models.NewStageError(models.ErrCodeInternal, "timeline render ran without narration audio", nil)
	}

	durations := sceneDurations(st.Scenes, len(st.ImagePaths), st.AudioDuration)
	scenes := make([]models.TimelineScene, len(st.ImagePaths))
	for i, p := range st.ImagePaths {
		scenes[i] = models.TimelineScene{ImagePath: p, Duration: durations[i]}
	}

	outPath := filepath.Join(st.OutDir, "final.mp4")
	spec := st.Inputs.Render
	applyRenderDefaults(&spec, st.Inputs.Brief.Aspect)

	if err := s.RenderTimeline(ctx, scenes, st.AudioPath, spec, outPath, progress); err != nil {
		return nil, err
	}

	st.IntermediatePath = outPath
	st.FinalPath = outPath

	size, _ := fileSize(outPath)
	return []models.Artifact{{Type: models.ArtifactFinalVideo, Path: outPath, SizeBytes: size}}, nil
}

// RenderTimeline renders an ordered scene list over an optional narration
// track. Standalone timeline exports reuse this directly.
func (s *RenderStage) RenderTimeline(ctx context.Context, scenes []models.TimelineScene, audioPath string, spec models.RenderSpec, outPath string, progress ProgressFunc) error {
	if len(scenes) == 0 {
		return models.NewStageError(models.ErrCodeValidation, "timeline has no scenes", nil)
	}

	info, err := s.detector.Detect(ctx)
	if err != nil {
		return models.NewStageError(models.ErrCodeNoEncoder, "encoder binary not found", err)
	}

	var target time.Duration
	for _, sc := range scenes {
		target += sc.Duration
	}

	b := encoder.NewCommandBuilder(info.Path).
		HideBanner().
		Stats().
		Overwrite()

	for _, sc := range scenes {
		b.InputWithArgs(sc.ImagePath, "-loop", "1", "-t", formatSeconds(sc.Duration))
	}
	if audioPath != "" {
		b.Input(audioPath)
	}

	b.FilterComplex(concatFilter(scenes, spec.Width, spec.Height)).
		Map("[v]").
		VideoCodec(spec.Codec).
		PixelFormat("yuv420p").
		FPS(spec.FPS).
		VideoBitrate(spec.VideoBitrate)

	if audioPath != "" {
		b.Map(strconv.Itoa(len(scenes)) + ":a").
			AudioCodec("aac").
			AudioBitrate(spec.AudioBitrate).
			Shortest()
	}

	b.MovFlags("+faststart").Output(outPath)

	name, args := b.Build()
	return s.runEncode(ctx, name, args, target, progress)
}

// runEncode spawns ffmpeg under the supervisor, feeds stderr progress into
// the callback, and maps exit conditions onto the error taxonomy.
func (s *RenderStage) runEncode(ctx context.Context, name string, args []string, target time.Duration, progress ProgressFunc) error {
	// started flips once the encoder reports progress; failures before that
	// point are init failures (bad args, missing codec) and stay retryable.
	var started atomic.Bool
	h, err := s.supervisor.Spawn(encoder.SpawnSpec{
		Name: name,
		Args: args,
		OnStderrLine: func(line string) {
			if p, ok := encoder.ParseProgressLine(line); ok {
				started.Store(true)
				if target > 0 {
					progress(p.Percent(target), p.ETARemaining(target))
				}
			}
		},
	})
	if err != nil {
		return models.NewStageError(models.ErrCodeNoEncoder, "launching encoder", err)
	}

	done := make(chan error, 1)
	go func() { done <- h.Wait() }()

	select {
	case <-ctx.Done():
		s.supervisor.Kill(h)
		<-done
		return ctx.Err()
	case err := <-done:
		if err == nil {
			progress(100, 0)
			return nil
		}
		if errors.Is(err, models.ErrCancelled) {
			return err
		}
		msg := fmt.Sprintf("encoder exited with code %d", h.ExitCode())
		if tail := h.StderrTail(); len(tail) > 0 {
			msg += ": " + tail[len(tail)-1]
		}
		return &models.StageError{
			Code:      models.ErrCodeSubprocessExit,
			Message:   msg,
			Err:       err,
			Transient: !started.Load(),
		}
	}
}

// sceneDurations splits the narration length across scenes weighted by each
// scene's word count, so wordy scenes stay on screen longer. Falls back to
// an even split when word counts are unusable.
func sceneDurations(scenes []string, imageCount int, audio time.Duration) []time.Duration {
	if audio <= 0 {
		audio = time.Duration(imageCount) * 4 * time.Second
	}

	durations := make([]time.Duration, imageCount)

	totalWords := 0
	if len(scenes) == imageCount {
		for _, sc := range scenes {
			totalWords += WordCount(sc)
		}
	}

	if totalWords == 0 {
		even := audio / time.Duration(imageCount)
		for i := range durations {
			durations[i] = even
		}
		return durations
	}

	var assigned time.Duration
	for i, sc := range scenes {
		d := time.Duration(float64(audio) * float64(WordCount(sc)) / float64(totalWords))
		durations[i] = d
		assigned += d
	}
	// Rounding remainder lands on the final scene.
	durations[imageCount-1] += audio - assigned
	return durations
}

// concatFilter scales and pads every input to the output resolution, then
// concatenates them into a single video stream labelled [v].
func concatFilter(scenes []models.TimelineScene, width, height int) string {
	var b strings.Builder
	for i := range scenes {
		fmt.Fprintf(&b, "[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1[v%d];",
			i, width, height, width, height, i)
	}
	for i := range scenes {
		fmt.Fprintf(&b, "[v%d]", i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=1:a=0[v]", len(scenes))
	return b.String()
}

// applyRenderDefaults fills unset render spec fields from the aspect ratio.
func applyRenderDefaults(spec *models.RenderSpec, aspect models.AspectRatio) {
	if spec.Width <= 0 || spec.Height <= 0 {
		res, ok := defaultResolutions[aspect]
		if !ok {
			res = defaultResolutions[models.AspectLandscape]
		}
		spec.Width, spec.Height = res[0], res[1]
	}
	if spec.FPS <= 0 {
		spec.FPS = 30
	}
	if spec.Codec == "" {
		spec.Codec = "libx264"
	}
	if spec.AudioBitrate == "" {
		spec.AudioBitrate = "192k"
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
