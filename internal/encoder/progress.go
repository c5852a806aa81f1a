package encoder

import (
	"regexp"
	"strconv"
	"time"
)

// Progress is one parsed ffmpeg stderr status line.
type Progress struct {
	Frame   int64         `json:"frame"`
	FPS     float64       `json:"fps"`
	Bitrate string        `json:"bitrate"`
	Time    time.Duration `json:"time"`
	Speed   float64       `json:"speed"`
}

// Stderr status line patterns. ffmpeg writes lines like:
// frame=  120 fps= 30 q=28.0 size=512kB time=00:00:04.00 bitrate=1048.5kbits/s speed=1.01x
var (
	frameRE   = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRE     = regexp.MustCompile(`fps=\s*([\d.]+)`)
	bitrateRE = regexp.MustCompile(`bitrate=\s*([\d.]+\s*\w+/s)`)
	timeRE    = regexp.MustCompile(`time=(\d+):(\d+):(\d+).(\d+)`)
	speedRE   = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

// ParseProgressLine parses one stderr line. Returns false when the line
// carries no progress fields.
func ParseProgressLine(line string) (Progress, bool) {
	var p Progress
	found := false

	if m := frameRE.FindStringSubmatch(line); len(m) > 1 {
		p.Frame, _ = strconv.ParseInt(m[1], 10, 64)
		found = true
	}
	if m := fpsRE.FindStringSubmatch(line); len(m) > 1 {
		p.FPS, _ = strconv.ParseFloat(m[1], 64)
		found = true
	}
	if m := bitrateRE.FindStringSubmatch(line); len(m) > 1 {
		p.Bitrate = m[1]
		found = true
	}
	if m := timeRE.FindStringSubmatch(line); len(m) > 4 {
		hours, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		secs, _ := strconv.Atoi(m[3])
		centis, _ := strconv.Atoi(m[4])
		p.Time = time.Duration(hours)*time.Hour +
			time.Duration(mins)*time.Minute +
			time.Duration(secs)*time.Second +
			time.Duration(centis)*10*time.Millisecond
		found = true
	}
	if m := speedRE.FindStringSubmatch(line); len(m) > 1 {
		p.Speed, _ = strconv.ParseFloat(m[1], 64)
		found = true
	}

	return p, found
}

// Percent normalizes the encoded position against the target duration to
// a 0-100 value. Values past the target clamp to 100.
func (p Progress) Percent(target time.Duration) float64 {
	if target <= 0 {
		return 0
	}
	pct := float64(p.Time) / float64(target) * 100
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// ETARemaining estimates the remaining wall time from the encode speed.
// Returns 0 when the speed is unknown.
func (p Progress) ETARemaining(target time.Duration) time.Duration {
	if p.Speed <= 0 || target <= p.Time {
		return 0
	}
	return time.Duration(float64(target-p.Time) / p.Speed)
}
