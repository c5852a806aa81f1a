package encoder

import (
	"strconv"
	"strings"
)

// CommandBuilder builds ffmpeg argument vectors with a fluent API. Timeline
// renders feed several inputs (image sequence plus narration audio); exports
// feed one.
type CommandBuilder struct {
	binary      string
	globalArgs  []string
	inputs      []input
	filterArgs  []string
	complexExpr string
	outputArgs  []string
	output      string
	logLevel    string
	overwrite   bool
}

type input struct {
	args []string
	path string
}

// NewCommandBuilder creates a builder for the given ffmpeg binary.
func NewCommandBuilder(binaryPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   binaryPath,
		logLevel: "error",
	}
}

// LogLevel sets the ffmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// HideBanner hides the ffmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Stats enables periodic progress output on stderr.
func (b *CommandBuilder) Stats() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-stats")
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// Input adds an input path with no per-input arguments.
func (b *CommandBuilder) Input(path string) *CommandBuilder {
	b.inputs = append(b.inputs, input{path: path})
	return b
}

// InputWithArgs adds an input path preceded by per-input arguments, e.g.
// ("-loop", "1", "-t", "4.5") for a still image shown for 4.5 seconds.
func (b *CommandBuilder) InputWithArgs(path string, args ...string) *CommandBuilder {
	b.inputs = append(b.inputs, input{path: path, args: args})
	return b
}

// HWAccel sets the hardware acceleration method on the first input.
// "auto" and "none" are skipped; ffmpeg needs a concrete method name.
func (b *CommandBuilder) HWAccel(accel string) *CommandBuilder {
	if accel != "" && accel != "none" && accel != "auto" {
		b.globalArgs = append(b.globalArgs, "-hwaccel", accel)
	}
	return b
}

// VideoCodec sets the video codec.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// AudioCodec sets the audio codec.
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

// VideoBitrate sets the video bitrate.
func (b *CommandBuilder) VideoBitrate(bitrate string) *CommandBuilder {
	if bitrate != "" {
		b.outputArgs = append(b.outputArgs, "-b:v", bitrate)
	}
	return b
}

// AudioBitrate sets the audio bitrate.
func (b *CommandBuilder) AudioBitrate(bitrate string) *CommandBuilder {
	if bitrate != "" {
		b.outputArgs = append(b.outputArgs, "-b:a", bitrate)
	}
	return b
}

// FPS sets the output frame rate.
func (b *CommandBuilder) FPS(fps int) *CommandBuilder {
	if fps > 0 {
		b.outputArgs = append(b.outputArgs, "-r", strconv.Itoa(fps))
	}
	return b
}

// Scale adds a scale+pad filter producing exactly the given resolution while
// preserving the source aspect ratio.
func (b *CommandBuilder) Scale(width, height int) *CommandBuilder {
	b.filterArgs = append(b.filterArgs,
		"scale="+strconv.Itoa(width)+":"+strconv.Itoa(height)+
			":force_original_aspect_ratio=decrease,pad="+
			strconv.Itoa(width)+":"+strconv.Itoa(height)+":(ow-iw)/2:(oh-ih)/2")
	return b
}

// VideoFilter adds a video filter expression.
func (b *CommandBuilder) VideoFilter(filter string) *CommandBuilder {
	b.filterArgs = append(b.filterArgs, filter)
	return b
}

// FilterComplex sets a filter_complex expression. Mutually exclusive with
// VideoFilter/Scale in the built command; filter_complex wins.
func (b *CommandBuilder) FilterComplex(expr string) *CommandBuilder {
	b.complexExpr = expr
	return b
}

// Map adds a stream mapping, e.g. "[v]" or "1:a".
func (b *CommandBuilder) Map(spec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-map", spec)
	return b
}

// Shortest truncates the output at the shortest input stream.
func (b *CommandBuilder) Shortest() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-shortest")
	return b
}

// PixelFormat sets the output pixel format.
func (b *CommandBuilder) PixelFormat(format string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-pix_fmt", format)
	return b
}

// MovFlags sets MP4 muxer flags; "+faststart" moves the index up front so
// players can start before the download completes.
func (b *CommandBuilder) MovFlags(flags string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-movflags", flags)
	return b
}

// OutputArgs adds arbitrary output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(path string) *CommandBuilder {
	b.output = path
	return b
}

// Build assembles the final argument vector.
func (b *CommandBuilder) Build() (string, []string) {
	var args []string

	args = append(args, "-loglevel", b.logLevel)
	args = append(args, b.globalArgs...)

	if b.overwrite {
		args = append(args, "-y")
	}

	for _, in := range b.inputs {
		args = append(args, in.args...)
		args = append(args, "-i", in.path)
	}

	if b.complexExpr != "" {
		args = append(args, "-filter_complex", b.complexExpr)
	} else if len(b.filterArgs) > 0 {
		args = append(args, "-vf", strings.Join(b.filterArgs, ","))
	}

	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return b.binary, args
}
