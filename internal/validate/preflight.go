// Package validate implements the synchronous pre-admission checks run
// before a generation job is created.
package validate

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/auralabs/aura/internal/config"
	"github.com/auralabs/aura/internal/encoder"
	"github.com/auralabs/aura/internal/models"
	"github.com/auralabs/aura/pkg/bytesize"
)

// Host floors. RAM below the floor is a warning, not a rejection; small
// machines can still render short videos, just slowly.
const (
	minLogicalCores = 2
	minMemory       = 4 * bytesize.GB
)

// Severity distinguishes fatal issues from warnings.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one distinct preflight finding.
type Issue struct {
	Severity Severity         `json:"severity"`
	Code     models.ErrorCode `json:"code"`
	Message  string           `json:"message"`
}

// Result is the outcome of a preflight run. OK is true when no
// error-severity issue was found; warnings ride along either way.
type Result struct {
	OK     bool    `json:"ok"`
	Issues []Issue `json:"issues,omitempty"`
}

func (r *Result) addError(code models.ErrorCode, msg string) {
	r.Issues = append(r.Issues, Issue{Severity: SeverityError, Code: code, Message: msg})
}

func (r *Result) addWarning(code models.ErrorCode, msg string) {
	r.Issues = append(r.Issues, Issue{Severity: SeverityWarning, Code: code, Message: msg})
}

// Validator runs the pre-admission checks.
type Validator struct {
	detector *encoder.Detector
	encCfg   config.EncoderConfig
	stoCfg   config.StorageConfig
}

// New creates a validator.
func New(detector *encoder.Detector, encCfg config.EncoderConfig, stoCfg config.StorageConfig) *Validator {
	return &Validator{detector: detector, encCfg: encCfg, stoCfg: stoCfg}
}

// Check runs every preflight check and collects distinct issues. It never
// creates a job; callers reject admission when OK is false.
func (v *Validator) Check(ctx context.Context, brief models.Brief, plan models.PlanSpec) Result {
	var result Result

	v.checkEncoder(ctx, &result)
	v.checkDisk(&result)
	checkBrief(brief, &result)
	checkPlan(plan, &result)
	checkHost(&result)

	result.OK = true
	for _, issue := range result.Issues {
		if issue.Severity == SeverityError {
			result.OK = false
			break
		}
	}
	return result
}

// checkEncoder verifies the binary is discoverable and recent enough.
func (v *Validator) checkEncoder(ctx context.Context, result *Result) {
	info, err := v.detector.Detect(ctx)
	if err != nil {
		result.addError(models.ErrCodeNoEncoder,
			"encoder binary not found: install ffmpeg or set encoder.binary_path")
		return
	}
	if !info.SupportsMinVersion(v.encCfg.MinMajorVersion, 0) {
		result.addError(models.ErrCodeNoEncoder,
			fmt.Sprintf("encoder version %s is below the required %d.0", info.Version, v.encCfg.MinMajorVersion))
	}
}

// checkDisk verifies the output drive has at least the configured floor.
func (v *Validator) checkDisk(result *Result) {
	usage, err := disk.Usage(v.stoCfg.OutputDir)
	if err != nil {
		// Output dir may not exist yet; probe its parent volume instead.
		usage, err = disk.Usage(filepath.Dir(v.stoCfg.OutputDir))
	}
	if err != nil {
		result.addWarning(models.ErrCodeDiskSpace,
			fmt.Sprintf("could not probe free space for %s: %v", v.stoCfg.OutputDir, err))
		return
	}
	if usage.Free < uint64(v.stoCfg.MinFreeDisk.Bytes()) {
		result.addError(models.ErrCodeDiskSpace,
			fmt.Sprintf("output drive has %s free, need at least %s",
				bytesize.Size(usage.Free), v.stoCfg.MinFreeDisk))
	}
}

func checkBrief(brief models.Brief, result *Result) {
	if len(strings.TrimSpace(brief.Topic)) < models.MinTopicLength {
		result.addError(models.ErrCodeValidation,
			fmt.Sprintf("topic must be at least %d characters after trimming", models.MinTopicLength))
	}
	if !brief.Aspect.Valid() {
		result.addError(models.ErrCodeValidation,
			fmt.Sprintf("unsupported aspect ratio %q", brief.Aspect))
	}
}

func checkPlan(plan models.PlanSpec, result *Result) {
	if plan.TargetDuration < models.MinTargetDuration || plan.TargetDuration > models.MaxTargetDuration {
		result.addError(models.ErrCodeValidation,
			fmt.Sprintf("target duration %s outside the allowed range [%s, %s]",
				plan.TargetDuration, models.MinTargetDuration, models.MaxTargetDuration))
	}
}

// checkHost verifies cores and memory. Cores below the floor reject the
// job; low RAM only warns.
func checkHost(result *Result) {
	if cores := runtime.NumCPU(); cores < minLogicalCores {
		result.addError(models.ErrCodeValidation,
			fmt.Sprintf("host has %d logical cores, need at least %d", cores, minLogicalCores))
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return
	}
	if vm.Total < uint64(minMemory.Bytes()) {
		result.addWarning(models.ErrCodeValidation,
			fmt.Sprintf("host has %s RAM, below the recommended %s; generation may be slow",
				bytesize.Size(vm.Total), minMemory))
	}
}
