package models

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// AspectRatio is the closed set of supported output aspect ratios.
type AspectRatio string

const (
	// AspectLandscape is standard 16:9 widescreen.
	AspectLandscape AspectRatio = "16:9"
	// AspectPortrait is vertical 9:16 (shorts/reels).
	AspectPortrait AspectRatio = "9:16"
	// AspectSquare is 1:1.
	AspectSquare AspectRatio = "1:1"
	// AspectClassic is 4:3.
	AspectClassic AspectRatio = "4:3"
)

// Valid returns true if the aspect ratio is one of the supported values.
func (a AspectRatio) Valid() bool {
	switch a {
	case AspectLandscape, AspectPortrait, AspectSquare, AspectClassic:
		return true
	}
	return false
}

// MinTopicLength is the minimum trimmed topic length accepted at admission.
const MinTopicLength = 3

// Target duration bounds for a generation job.
const (
	MinTargetDuration = 10 * time.Second
	MaxTargetDuration = 30 * time.Minute
)

// Brief captures the user's intent for a video.
type Brief struct {
	// Topic is the subject of the video. Must be at least 3 characters
	// after trimming.
	Topic string `json:"topic"`

	// Audience describes who the video is for (e.g. "general", "developers").
	Audience string `json:"audience,omitempty"`

	// Goal is what the video should achieve (inform, persuade, entertain).
	Goal string `json:"goal,omitempty"`

	// Tone is the narration tone (e.g. "friendly", "authoritative").
	Tone string `json:"tone,omitempty"`

	// Language is a BCP 47 language tag for script and narration.
	// Empty defaults to "en".
	Language string `json:"language,omitempty"`

	// Aspect is the output aspect ratio.
	Aspect AspectRatio `json:"aspect"`
}

// Validate checks the brief for admission.
func (b *Brief) Validate() error {
	if len(strings.TrimSpace(b.Topic)) < MinTopicLength {
		return fmt.Errorf("topic must be at least %d characters", MinTopicLength)
	}
	if !b.Aspect.Valid() {
		return fmt.Errorf("unsupported aspect ratio %q", b.Aspect)
	}
	if b.Language != "" {
		if _, err := language.Parse(b.Language); err != nil {
			return fmt.Errorf("invalid language tag %q: %w", b.Language, err)
		}
	}
	return nil
}

// LanguageOrDefault returns the brief language or "en" when unset.
func (b *Brief) LanguageOrDefault() string {
	if b.Language == "" {
		return "en"
	}
	return b.Language
}

// PlanSpec shapes the generated pipeline output.
type PlanSpec struct {
	// TargetDuration is the intended length of the final video.
	TargetDuration time.Duration `json:"target_duration"`

	// Pacing controls narration rhythm ("slow", "medium", "fast").
	Pacing string `json:"pacing,omitempty"`

	// Density controls information density per scene.
	Density string `json:"density,omitempty"`

	// Style is a free-form visual style hint.
	Style string `json:"style,omitempty"`
}

// Validate checks the plan for admission.
func (p *PlanSpec) Validate() error {
	if p.TargetDuration < MinTargetDuration || p.TargetDuration > MaxTargetDuration {
		return fmt.Errorf("target duration must be between %s and %s",
			MinTargetDuration, MaxTargetDuration)
	}
	return nil
}

// VoiceSpec configures narration synthesis.
type VoiceSpec struct {
	// Voice is the provider-specific voice name.
	Voice string `json:"voice,omitempty"`

	// Rate is the speaking rate multiplier (1.0 = normal).
	Rate float64 `json:"rate,omitempty"`

	// Pitch is the pitch adjustment in semitones.
	Pitch float64 `json:"pitch,omitempty"`

	// SentencePause is the inter-sentence pause.
	SentencePause time.Duration `json:"sentence_pause,omitempty"`
}

// Validate checks the voice spec for admission.
func (v *VoiceSpec) Validate() error {
	if v.Rate < 0 {
		return fmt.Errorf("voice rate must not be negative, got %g", v.Rate)
	}
	if v.SentencePause < 0 {
		return fmt.Errorf("sentence pause must not be negative")
	}
	return nil
}

// RenderSpec configures video encoding.
type RenderSpec struct {
	// Width and Height give the output resolution in pixels.
	Width  int `json:"width"`
	Height int `json:"height"`

	// Container is the output container format (e.g. "mp4").
	Container string `json:"container,omitempty"`

	// VideoBitrate is the target video bitrate (e.g. "4M").
	VideoBitrate string `json:"video_bitrate,omitempty"`

	// AudioBitrate is the target audio bitrate (e.g. "192k").
	AudioBitrate string `json:"audio_bitrate,omitempty"`

	// FPS is the output frame rate.
	FPS int `json:"fps,omitempty"`

	// Codec is the video codec name (e.g. "libx264").
	Codec string `json:"codec,omitempty"`

	// Quality is an abstract 0-100 quality level mapped onto the codec's
	// rate control.
	Quality int `json:"quality,omitempty"`

	// SceneCut enables scene-cut detection during encoding.
	SceneCut bool `json:"scene_cut,omitempty"`
}

// Validate checks the render spec for admission.
func (r *RenderSpec) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("resolution %dx%d is invalid", r.Width, r.Height)
	}
	if r.Quality < 0 || r.Quality > 100 {
		return fmt.Errorf("quality must be within 0-100, got %d", r.Quality)
	}
	if r.FPS < 0 {
		return fmt.Errorf("fps must be non-negative, got %d", r.FPS)
	}
	return nil
}

// Tier is the user-expressed provider preference.
type Tier string

const (
	// TierFree restricts resolution to local/no-cost providers.
	TierFree Tier = "free"
	// TierProIfAvailable prefers pro providers but degrades silently.
	TierProIfAvailable Tier = "pro_if_available"
	// TierPro requires pro providers; conflicts with offline-only mode.
	TierPro Tier = "pro"
	// TierSpecific pins a single named provider.
	TierSpecific Tier = "specific"
)

// Valid returns true for a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierProIfAvailable, TierPro, TierSpecific:
		return true
	}
	return false
}
