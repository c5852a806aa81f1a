// Package encoder provides ffmpeg binary detection, command construction,
// subprocess supervision, and stderr progress parsing.
package encoder

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/auralabs/aura/internal/config"
	"github.com/auralabs/aura/internal/util"
)

// BinaryInfo describes the detected ffmpeg installation.
type BinaryInfo struct {
	Path         string   `json:"path"`
	ProbePath    string   `json:"probe_path,omitempty"`
	Version      string   `json:"version"`
	MajorVersion int      `json:"major_version"`
	MinorVersion int      `json:"minor_version"`
	Encoders     []string `json:"encoders,omitempty"`
	HWAccels     []string `json:"hw_accels,omitempty"`
}

// Detector locates the ffmpeg binary and caches its capabilities.
type Detector struct {
	cfg config.EncoderConfig

	mu           sync.RWMutex
	info         *BinaryInfo
	lastDetected time.Time
	cacheTTL     time.Duration
}

// NewDetector creates a binary detector for the configured encoder.
func NewDetector(cfg config.EncoderConfig) *Detector {
	return &Detector{
		cfg:      cfg,
		cacheTTL: 5 * time.Minute,
	}
}

// WithCacheTTL sets the cache TTL for binary detection.
func (d *Detector) WithCacheTTL(ttl time.Duration) *Detector {
	d.cacheTTL = ttl
	return d
}

// Detect locates ffmpeg and returns its capabilities, using the cache when
// fresh.
func (d *Detector) Detect(ctx context.Context) (*BinaryInfo, error) {
	d.mu.RLock()
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		info := d.info
		d.mu.RUnlock()
		return info, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		return d.info, nil
	}

	info, err := d.detect(ctx)
	if err != nil {
		return nil, err
	}

	d.info = info
	d.lastDetected = time.Now()
	return info, nil
}

// Clear drops the cached binary information.
func (d *Detector) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = nil
}

func (d *Detector) detect(ctx context.Context) (*BinaryInfo, error) {
	info := &BinaryInfo{}

	path, err := util.FindBinary("ffmpeg", d.cfg.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	info.Path = path

	// ffprobe is optional; duration probing degrades without it.
	if probePath, err := util.FindBinary("ffprobe", d.cfg.ProbePath); err == nil {
		info.ProbePath = probePath
	}

	version, err := d.getVersion(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("getting ffmpeg version: %w", err)
	}
	info.Version = version.full
	info.MajorVersion = version.major
	info.MinorVersion = version.minor

	if encoders, err := d.getEncoders(ctx, path); err == nil {
		info.Encoders = encoders
	}
	if hwaccels, err := d.getHWAccels(ctx, path); err == nil {
		info.HWAccels = hwaccels
	}

	return info, nil
}

type versionInfo struct {
	full  string
	major int
	minor int
}

var versionRE = regexp.MustCompile(`^n?(\d+)\.(\d+)`)

// getVersion extracts version information from `ffmpeg -version`.
func (d *Detector) getVersion(ctx context.Context, path string) (*versionInfo, error) {
	cmd := exec.CommandContext(ctx, path, "-version")
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	for _, line := range strings.Split(string(output), "\n") {
		if !strings.HasPrefix(line, "ffmpeg version") {
			continue
		}
		// "ffmpeg version 6.0 Copyright..." or "ffmpeg version n6.0-2-g..."
		parts := strings.Fields(line)
		if len(parts) < 3 {
			break
		}
		info := &versionInfo{full: parts[2]}
		if matches := versionRE.FindStringSubmatch(parts[2]); len(matches) >= 3 {
			info.major, _ = strconv.Atoi(matches[1])
			info.minor, _ = strconv.Atoi(matches[2])
		}
		return info, nil
	}

	return nil, fmt.Errorf("failed to parse ffmpeg version")
}

// getEncoders retrieves available encoder names.
func (d *Detector) getEncoders(ctx context.Context, path string) ([]string, error) {
	cmd := exec.CommandContext(ctx, path, "-encoders", "-hide_banner")
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var encoders []string
	inList := false
	for _, line := range strings.Split(string(output), "\n") {
		if strings.Contains(line, "------") {
			inList = true
			continue
		}
		if !inList {
			continue
		}
		line = strings.TrimLeft(line, " ")
		if len(line) < 8 {
			continue
		}
		if line[0] != 'V' && line[0] != 'A' && line[0] != 'S' {
			continue
		}
		fields := strings.Fields(strings.TrimSpace(line[6:]))
		if len(fields) >= 1 && fields[0] != "" {
			encoders = append(encoders, fields[0])
		}
	}

	return encoders, nil
}

// getHWAccels retrieves available hardware acceleration methods.
func (d *Detector) getHWAccels(ctx context.Context, path string) ([]string, error) {
	cmd := exec.CommandContext(ctx, path, "-hwaccels", "-hide_banner")
	output, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var accels []string
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Hardware acceleration") {
			continue
		}
		accels = append(accels, line)
	}

	return accels, nil
}

// HasEncoder returns true if the named encoder is available.
func (info *BinaryInfo) HasEncoder(name string) bool {
	return slices.Contains(info.Encoders, name)
}

// SupportsMinVersion returns true if the detected version meets the minimum.
func (info *BinaryInfo) SupportsMinVersion(major, minor int) bool {
	if info.MajorVersion > major {
		return true
	}
	return info.MajorVersion == major && info.MinorVersion >= minor
}

// PreferredHWAccel returns the first configured hardware accelerator that
// the binary supports, or "" when none match.
func (info *BinaryInfo) PreferredHWAccel(priority []string) string {
	for _, want := range priority {
		if slices.Contains(info.HWAccels, want) {
			return want
		}
	}
	return ""
}
