package encoder

import (
	"fmt"

	"github.com/auralabs/aura/internal/models"
)

// Preset is one entry of the closed export preset table.
type Preset struct {
	Name         string             `json:"name"`
	Label        string             `json:"label"`
	Width        int                `json:"width"`
	Height       int                `json:"height"`
	FPS          int                `json:"fps"`
	Aspect       models.AspectRatio `json:"aspect"`
	Container    string             `json:"container"`
	VideoCodec   string             `json:"video_codec"`
	VideoBitrate string             `json:"video_bitrate"`
	AudioCodec   string             `json:"audio_codec"`
	AudioBitrate string             `json:"audio_bitrate"`
}

// presets is the closed set of export targets. Resolution and bitrate
// follow each platform's published upload recommendations.
var presets = []Preset{
	{
		Name: "youtube_landscape", Label: "YouTube 1080p",
		Width: 1920, Height: 1080, FPS: 30, Aspect: models.AspectLandscape,
		Container: "mp4", VideoCodec: "libx264", VideoBitrate: "8M",
		AudioCodec: "aac", AudioBitrate: "192k",
	},
	{
		Name: "youtube_shorts", Label: "YouTube Shorts",
		Width: 1080, Height: 1920, FPS: 30, Aspect: models.AspectPortrait,
		Container: "mp4", VideoCodec: "libx264", VideoBitrate: "6M",
		AudioCodec: "aac", AudioBitrate: "128k",
	},
	{
		Name: "tiktok", Label: "TikTok",
		Width: 1080, Height: 1920, FPS: 30, Aspect: models.AspectPortrait,
		Container: "mp4", VideoCodec: "libx264", VideoBitrate: "5M",
		AudioCodec: "aac", AudioBitrate: "128k",
	},
	{
		Name: "instagram_reel", Label: "Instagram Reel",
		Width: 1080, Height: 1920, FPS: 30, Aspect: models.AspectPortrait,
		Container: "mp4", VideoCodec: "libx264", VideoBitrate: "5M",
		AudioCodec: "aac", AudioBitrate: "128k",
	},
	{
		Name: "instagram_square", Label: "Instagram Square",
		Width: 1080, Height: 1080, FPS: 30, Aspect: models.AspectSquare,
		Container: "mp4", VideoCodec: "libx264", VideoBitrate: "4M",
		AudioCodec: "aac", AudioBitrate: "128k",
	},
	{
		Name: "x_landscape", Label: "X / Twitter",
		Width: 1280, Height: 720, FPS: 30, Aspect: models.AspectLandscape,
		Container: "mp4", VideoCodec: "libx264", VideoBitrate: "5M",
		AudioCodec: "aac", AudioBitrate: "128k",
	},
	{
		Name: "archive_master", Label: "Archive Master",
		Width: 1920, Height: 1080, FPS: 30, Aspect: models.AspectLandscape,
		Container: "mp4", VideoCodec: "libx264", VideoBitrate: "16M",
		AudioCodec: "aac", AudioBitrate: "256k",
	},
}

// Presets returns the full export preset table.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// LookupPreset resolves a preset by name.
func LookupPreset(name string) (Preset, error) {
	for _, p := range presets {
		if p.Name == name {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("unknown export preset %q", name)
}
