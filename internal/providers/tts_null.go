package providers

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/auralabs/aura/internal/models"
)

const (
	// nullReadingWPM is the assumed narration pace when estimating how
	// long the silent track must run.
	nullReadingWPM = 150

	nullSampleRate = 22050
	nullChannels   = 1
	nullBitDepth   = 16
)

// NullTTS is the terminal narration fallback: a wav of silence whose
// length matches the estimated read time of the script. Always available.
type NullTTS struct{}

// NewNullTTS creates the silence narration provider.
func NewNullTTS() *NullTTS { return &NullTTS{} }

func (p *NullTTS) Name() string                     { return NameNull }
func (p *NullTTS) Available(_ context.Context) bool { return true }
func (p *NullTTS) RequiresNetwork() bool            { return false }

// Synthesize writes a silent PCM wav sized for reading text at 150 words
// per minute, scaled by the requested speaking rate.
func (p *NullTTS) Synthesize(_ context.Context, text string, voice models.VoiceSpec, outPath string) (*AudioMetadata, error) {
	duration := EstimateReadTime(text, voice.Rate)

	if err := writeSilenceWAV(outPath, duration); err != nil {
		return nil, models.NewStageError(models.ErrCodeDiskSpace, "writing silence wav", err)
	}

	return &AudioMetadata{
		Path:       outPath,
		Duration:   duration,
		SampleRate: nullSampleRate,
	}, nil
}

// EstimateReadTime returns the narration length for text at the standard
// pace, scaled by rate (1.0 = normal). Never below one second.
func EstimateReadTime(text string, rate float64) time.Duration {
	words := len(strings.Fields(text))
	minutes := float64(words) / nullReadingWPM
	if rate > 0 {
		minutes /= rate
	}
	d := time.Duration(minutes * float64(time.Minute))
	if d < time.Second {
		d = time.Second
	}
	return d
}

// writeSilenceWAV emits a canonical 44-byte RIFF/WAVE header followed by
// zeroed PCM samples.
func writeSilenceWAV(path string, duration time.Duration) error {
	samples := int(float64(nullSampleRate) * duration.Seconds())
	dataSize := samples * nullChannels * (nullBitDepth / 8)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	byteRate := nullSampleRate * nullChannels * (nullBitDepth / 8)
	blockAlign := nullChannels * (nullBitDepth / 8)

	w.WriteString("RIFF")
	binary.Write(w, binary.LittleEndian, uint32(36+dataSize))
	w.WriteString("WAVE")

	w.WriteString("fmt ")
	binary.Write(w, binary.LittleEndian, uint32(16))
	binary.Write(w, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(w, binary.LittleEndian, uint16(nullChannels))
	binary.Write(w, binary.LittleEndian, uint32(nullSampleRate))
	binary.Write(w, binary.LittleEndian, uint32(byteRate))
	binary.Write(w, binary.LittleEndian, uint16(blockAlign))
	binary.Write(w, binary.LittleEndian, uint16(nullBitDepth))

	w.WriteString("data")
	binary.Write(w, binary.LittleEndian, uint32(dataSize))

	zeros := make([]byte, 4096)
	remaining := dataSize
	for remaining > 0 {
		n := len(zeros)
		if remaining < n {
			n = remaining
		}
		if _, err := w.Write(zeros[:n]); err != nil {
			return err
		}
		remaining -= n
	}

	if err := w.Flush(); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	return nil
}
