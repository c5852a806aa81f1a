package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/auralabs/aura/internal/encoder"
	"github.com/auralabs/aura/internal/models"
	"github.com/auralabs/aura/internal/providers"
	"github.com/auralabs/aura/internal/validate"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the local environment",
	Long: `Check that the local environment can run aura: ffmpeg presence and
version, free disk space, output directory writability, and which providers
respond.

Exits non-zero when a required check fails. Provider checks are
informational; the terminal fallbacks work without any of them.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	initLogging(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failed := false

	// Run the same preflight every job admission runs, against a
	// representative brief.
	detector := encoder.NewDetector(cfg.Encoder)
	validator := validate.New(detector, cfg.Encoder, cfg.Storage)
	result := validator.Check(ctx, models.Brief{
		Topic:  "environment check",
		Aspect: models.AspectLandscape,
	}, models.PlanSpec{TargetDuration: time.Minute})

	for _, issue := range result.Issues {
		switch issue.Severity {
		case validate.SeverityError:
			failed = true
			fmt.Printf("FAIL  %s: %s\n", issue.Code, issue.Message)
		default:
			fmt.Printf("warn  %s: %s\n", issue.Code, issue.Message)
		}
	}

	if info, err := detector.Detect(ctx); err == nil {
		fmt.Printf("ok    encoder: %s (%s)\n", info.Path, info.Version)
		if len(info.HWAccels) > 0 {
			fmt.Printf("ok    hwaccel: %s\n", strings.Join(info.HWAccels, ", "))
		}
	}

	// Output directory must be writable before any job can land artifacts.
	if err := checkWritable(cfg.Storage.OutputDir); err != nil {
		failed = true
		fmt.Printf("FAIL  output dir %s: %v\n", cfg.Storage.OutputDir, err)
	} else {
		fmt.Printf("ok    output dir: %s\n", cfg.Storage.OutputDir)
	}

	// Provider probes are informational.
	registry := buildRegistry(cfg, slog.Default())
	for _, capability := range []models.Capability{
		models.CapabilityLLM, models.CapabilityTTS, models.CapabilityVisuals,
	} {
		for _, name := range registry.Names(capability) {
			fmt.Printf("%s  provider %s/%s\n",
				probeStatus(ctx, registry, capability, name), capability, name)
		}
	}

	if cfg.Providers.Offline {
		fmt.Println("note  offline mode: network providers disabled")
	}

	if failed {
		return fmt.Errorf("environment checks failed")
	}
	fmt.Println("\nall required checks passed")
	return nil
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".aura-doctor")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return err
	}
	return os.Remove(probe)
}

func probeStatus(ctx context.Context, registry *providers.Registry, capability models.Capability, name string) string {
	var p providers.Provider
	var ok bool
	switch capability {
	case models.CapabilityLLM:
		p, ok = registry.LLM(name)
	case models.CapabilityTTS:
		p, ok = registry.TTS(name)
	case models.CapabilityVisuals:
		p, ok = registry.Visuals(name)
	}
	if !ok || !p.Available(ctx) {
		return "miss"
	}
	return "ok  "
}
