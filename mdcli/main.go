package mdcli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"cdr.dev/slog"
	"github.com/spf13/pflag"

	"oss.terrastruct.com/util-go/go2"
	"oss.terrastruct.com/util-go/xbrowser"
	"oss.terrastruct.com/util-go/xmain"

	"github.com/eivindml/marker-dispersion/lib/log"
	"github.com/eivindml/marker-dispersion/lib/textmeasure"
	"github.com/eivindml/marker-dispersion/lib/version"
	"github.com/eivindml/marker-dispersion/mdanimate"
	"github.com/eivindml/marker-dispersion/mdforce"
)

type runOpts struct {
	iterations int64
	strength   float64
	sweeps     int64
	padding    float64
	fontSize   int64
	fontStyle  string
	labelPad   float64
	units      mdanimate.StaticUnits
	duration   time.Duration
	fps        int64
	frames     bool
	dedupe     bool
	carry      bool
	svgPad     int64
}

func Run(ctx context.Context, ms *xmain.State) (err error) {
	// These should be kept up-to-date with the help text
	iterationsFlag, err := ms.Opts.Int64("MD_ITERATIONS", "iterations", "i", mdforce.DefaultIterations, "simulation steps per resolution pass")
	if err != nil {
		return err
	}
	strengthFlag, err := ms.Opts.Float64("MD_STRENGTH", "strength", "", mdforce.DefaultAnchorStrength, "pull of each label toward its anchor per step, in [0, 1]")
	if err != nil {
		return err
	}
	sweepsFlag, err := ms.Opts.Int64("MD_SWEEPS", "sweeps", "", 0, "maximum collision sweeps per step. 0 scales the cap with the number of labels.")
	if err != nil {
		return err
	}
	paddingFlag, err := ms.Opts.Float64("MD_PADDING", "padding", "", 0, "pixels kept clear around every label when resolving collisions")
	if err != nil {
		return err
	}
	fontSizeFlag, err := ms.Opts.Int64("MD_FONT_SIZE", "font-size", "", textmeasure.DEFAULT_FONT_SIZE, "font size labels are measured with")
	if err != nil {
		return err
	}
	fontStyleFlag := ms.Opts.String("MD_FONT_STYLE", "font-style", "", string(textmeasure.FONT_STYLE_MEDIUM), "font style labels are measured with (regular, medium, bold, italic)")
	labelPadFlag, err := ms.Opts.Float64("MD_LABEL_PAD", "label-pad", "", 0, "pixels added around each measured title")
	if err != nil {
		return err
	}
	textSizeFlag, err := ms.Opts.Float64("MD_TEXT_SIZE", "text-size", "", mdanimate.DefaultUnits.Text, "text size text offsets are expressed in")
	if err != nil {
		return err
	}
	iconSizeFlag, err := ms.Opts.Float64("MD_ICON_SIZE", "icon-size", "", mdanimate.DefaultUnits.Icon, "icon size icon offsets are expressed in")
	if err != nil {
		return err
	}
	durationFlag, err := ms.Opts.Int64("MD_DURATION", "duration", "", mdanimate.DefaultDuration.Milliseconds(), "offset animation length in milliseconds")
	if err != nil {
		return err
	}
	fpsFlag, err := ms.Opts.Int64("MD_FPS", "fps", "", mdanimate.DefaultFrameRate, "frame rate of the recorded animation")
	if err != nil {
		return err
	}
	framesFlag, err := ms.Opts.Bool("MD_FRAMES", "frames", "f", false, "include every animation frame in JSON output")
	if err != nil {
		return err
	}
	dedupeFlag, err := ms.Opts.Bool("MD_DEDUPE", "dedupe", "", false, "keep the first label of each id instead of rejecting duplicates")
	if err != nil {
		return err
	}
	carryFlag, err := ms.Opts.Bool("MD_CARRY_OFFSETS", "carry-offsets", "", false, "start labels carried over from the previous pass at their old offset from the new anchor")
	if err != nil {
		return err
	}
	padFlag, err := ms.Opts.Int64("MD_PAD", "pad", "", 20, "pixels padded around the rendered SVG")
	if err != nil {
		return err
	}
	watchFlag, err := ms.Opts.Bool("MD_WATCH", "watch", "w", false, "watch the input and its geojson sources for changes and resolve again, carrying positions over")
	if err != nil {
		return err
	}
	openFlag, err := ms.Opts.Bool("MD_OPEN", "open", "", false, "open the rendered svg in a browser")
	if err != nil {
		return err
	}
	browserFlag := ms.Opts.String("BROWSER", "browser", "", "", "browser executable that --open uses. Setting to 0 opens no browser.")
	timeoutFlag, err := ms.Opts.Int64("MD_TIMEOUT", "timeout", "", 120, "the maximum number of seconds a run may take")
	if err != nil {
		return err
	}
	debugFlag, err := ms.Opts.Bool("DEBUG", "debug", "d", false, "print debug logs.")
	if err != nil {
		ms.Log.Warn.Printf("Invalid DEBUG flag value ignored")
		debugFlag = go2.Pointer(false)
	}
	versionFlag, err := ms.Opts.Bool("", "version", "v", false, "get the version")
	if err != nil {
		return err
	}

	err = ms.Opts.Flags.Parse(ms.Opts.Args)
	if !errors.Is(err, pflag.ErrHelp) && err != nil {
		return xmain.UsageErrorf("failed to parse flags: %v", err)
	}
	if errors.Is(err, pflag.ErrHelp) {
		help(ms)
		return nil
	}

	if *browserFlag != "" {
		ms.Env.Setenv("BROWSER", *browserFlag)
	}

	level := slog.LevelInfo
	if *debugFlag {
		level = slog.LevelDebug
	}
	ctx = log.To(ctx, ms.Stderr, level)

	if len(ms.Opts.Flags.Args()) > 0 {
		switch ms.Opts.Flags.Arg(0) {
		case "validate":
			return validateCmd(ctx, ms, *dedupeFlag)
		case "version":
			if len(ms.Opts.Flags.Args()) > 1 {
				return xmain.UsageErrorf("version subcommand accepts no arguments")
			}
			fmt.Fprintln(ms.Stdout, version.Version)
			return nil
		}
	}

	if len(ms.Opts.Flags.Args()) == 0 {
		if *versionFlag {
			fmt.Fprintln(ms.Stdout, version.Version)
			return nil
		}
		help(ms)
		return nil
	} else if len(ms.Opts.Flags.Args()) >= 3 {
		return xmain.UsageErrorf("too many arguments passed")
	}

	inputPath := ms.Opts.Flags.Arg(0)
	outputPath := "-"
	if len(ms.Opts.Flags.Args()) == 2 {
		outputPath = ms.Opts.Flags.Arg(1)
	}
	if inputPath != "-" {
		inputPath = ms.AbsPath(inputPath)
	}
	if outputPath != "-" {
		outputPath = ms.AbsPath(outputPath)
		switch ext := filepath.Ext(outputPath); ext {
		case ".svg", ".json":
		default:
			return xmain.UsageErrorf("unsupported output extension %q, expected .svg or .json", ext)
		}
	}

	if *openFlag && filepath.Ext(outputPath) != ".svg" {
		return xmain.UsageErrorf("--open requires an .svg output file")
	}
	if *watchFlag && inputPath == "-" {
		return xmain.UsageErrorf("-w[atch] cannot be combined with reading input from stdin")
	}
	if *iterationsFlag <= 0 {
		return xmain.UsageErrorf("-i[terations] must be positive, got %d", *iterationsFlag)
	}
	if *fpsFlag <= 0 {
		return xmain.UsageErrorf("--fps must be positive, got %d", *fpsFlag)
	}
	if *durationFlag < 0 {
		return xmain.UsageErrorf("--duration must not be negative, got %d", *durationFlag)
	}
	style := textmeasure.FontStyle(strings.ToLower(*fontStyleFlag))
	if !textmeasure.Go.Font(1, style).Valid() {
		return xmain.UsageErrorf("unknown --font-style %q", *fontStyleFlag)
	}

	opts := runOpts{
		iterations: *iterationsFlag,
		strength:   *strengthFlag,
		sweeps:     *sweepsFlag,
		padding:    *paddingFlag,
		fontSize:   *fontSizeFlag,
		fontStyle:  string(style),
		labelPad:   *labelPadFlag,
		units:      mdanimate.StaticUnits{Text: *textSizeFlag, Icon: *iconSizeFlag},
		duration:   time.Duration(*durationFlag) * time.Millisecond,
		fps:        *fpsFlag,
		frames:     *framesFlag,
		dedupe:     *dedupeFlag,
		carry:      *carryFlag,
		svgPad:     *padFlag,
	}

	timeout := time.Duration(*timeoutFlag) * time.Second
	if *watchFlag {
		return watchCmd(ctx, ms, opts, watcherOpts{
			inputPath:  inputPath,
			outputPath: outputPath,
			timeout:    timeout,
			open:       *openFlag,
		})
	}

	ctx, cancel := log.WithTimeout(ctx, timeout)
	defer cancel()

	err = resolveCmd(ctx, ms, opts, inputPath, outputPath)
	if err != nil {
		return err
	}
	if outputPath != "-" {
		ms.Log.Success.Printf("successfully resolved %v to %v", ms.HumanPath(inputPath), ms.HumanPath(outputPath))
	}
	if *openFlag {
		openOutput(ctx, ms, outputPath)
	}
	return nil
}

func openOutput(ctx context.Context, ms *xmain.State, outputPath string) {
	url := "file://" + filepath.ToSlash(outputPath)
	err := xbrowser.Open(ctx, ms.Env, url)
	if err != nil {
		ms.Log.Warn.Printf("failed to open browser to %v: %v", url, err)
	}
}
