package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
)

// Command is an external process invocation.
type Command struct {
	Binary string
	Args   []string
}

// String returns the command as a string.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// CommandBuilder builds ffmpeg commands with a fluent API. Arguments are
// emitted in the order they are added.
type CommandBuilder struct {
	binary     string
	logLevel   string
	globalArgs []string
	overwrite  bool
	input      string
	outputArgs []string
	output     string
}

// NewCommandBuilder creates a new ffmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "warning",
	}
}

// LogLevel sets the ffmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// Stats enables the periodic progress line on stderr.
func (b *CommandBuilder) Stats() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-stats")
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.overwrite = true
	return b
}

// Input sets the input file.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.input = input
	return b
}

// VideoCodec sets the video codec.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	return b.OutputArgs("-c:v", codec)
}

// X264Keyframes pins the GOP to exactly interval frames with scene cut detection off.
func (b *CommandBuilder) X264Keyframes(interval int) *CommandBuilder {
	k := strconv.Itoa(interval)
	return b.OutputArgs("-x264opts", "keyint="+k+":min-keyint="+k+":no-scenecut")
}

// Framerate sets the output framerate.
func (b *CommandBuilder) Framerate(fps int) *CommandBuilder {
	return b.OutputArgs("-r", strconv.Itoa(fps))
}

// ScaleToHeight scales to the given height, keeping the aspect ratio with an even width.
func (b *CommandBuilder) ScaleToHeight(height int) *CommandBuilder {
	return b.OutputArgs("-vf", fmt.Sprintf("scale=-2:%d", height))
}

// PixelFormat sets the output pixel format.
func (b *CommandBuilder) PixelFormat(format string) *CommandBuilder {
	return b.OutputArgs("-pix_fmt", format)
}

// ConstrainedBitrate sets the target and max bitrate to kbps with a buffer of twice that.
func (b *CommandBuilder) ConstrainedBitrate(kbps int) *CommandBuilder {
	rate := strconv.Itoa(kbps) + "k"
	return b.OutputArgs(
		"-b:v", rate,
		"-maxrate", rate,
		"-bufsize", strconv.Itoa(kbps*2)+"k",
	)
}

// OutputArgs adds raw output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build builds the command.
func (b *CommandBuilder) Build() *Command {
	args := []string{"-v", b.logLevel}
	args = append(args, b.globalArgs...)
	if b.overwrite {
		args = append(args, "-y")
	}
	args = append(args, "-i", b.input)
	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return &Command{Binary: b.binary, Args: args}
}

// EncodeSpec describes one rendition encode.
type EncodeSpec struct {
	Input         string
	Output        string
	Height        int
	BandwidthKbps int
	Framerate     int
}

// EncodeCommand returns the H.264 encode for one rendition: keyframes every
// two seconds, no audio, moov atom up front.
func EncodeCommand(ffmpegPath string, spec EncodeSpec) *Command {
	return NewCommandBuilder(ffmpegPath).
		LogLevel("warning").
		Stats().
		Overwrite().
		Input(spec.Input).
		VideoCodec("libx264").
		X264Keyframes(spec.Framerate*2).
		Framerate(spec.Framerate).
		ScaleToHeight(spec.Height).
		PixelFormat("yuv420p").
		ConstrainedBitrate(spec.BandwidthKbps).
		OutputArgs(
			"-profile:v", "main",
			"-movflags", "faststart",
			"-preset", "fast",
			"-an",
		).
		Output(spec.Output).
		Build()
}

// DASH packaging parameters.
const (
	SegmentDurationMs = 4000
	SegmentName       = "segment_$RepresentationID$_"
)

// PackageInput is one rendition fed to the packager, identified by its height.
type PackageInput struct {
	Path   string
	Height int
}

// PackageCommand returns the MP4Box invocation that segments the renditions
// into a single DASH manifest at mpdPath.
func PackageCommand(mp4boxPath string, inputs []PackageInput, mpdPath, title string) *Command {
	args := []string{
		"-dash", strconv.Itoa(SegmentDurationMs),
		"-rap",
		"-segment-name", SegmentName,
	}
	for _, in := range inputs {
		args = append(args, fmt.Sprintf("%s#video:id=%d", in.Path, in.Height))
	}
	args = append(args, "-out", mpdPath, "-mpd-title", `"`+title+`"`)

	return &Command{Binary: mp4boxPath, Args: args}
}
