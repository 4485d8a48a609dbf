package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

// ErrShowHelpRequested signals that -h/--help was passed; the caller should
// print usage and exit 0 (spec §6).
var ErrShowHelpRequested = errors.New("config: help requested")

// Flags is the parsed command-line surface described in spec §6.
type Flags struct {
	CaptureDevice  string // -c/--capture
	PlaybackDevice string // -d/--playback
	LogFile        string // -l/--logfile
	NetworkAudio   string // -N/--network-audio listen address, empty disables it
	LLMMode        string // -m/--llm cloud|local
	CloudProvider  string // -P/--cloud-provider

	DirectOnly  bool // -D
	DirectFirst bool // -C
	LLMOnly     bool // -L

	ActionConfigPath  string
	RuntimeConfigPath string
}

// ParseFlags parses args (os.Args[1:] when called from Run) into Flags. An unrecognized flag causes
// flag's usage message to be printed and exit code 1 returned by the
// caller (spec §6: "-h exits 0; any other parse failure exits 1").
func ParseFlags(args []string, stderr io.Writer) (*Flags, error) {
	fs := flag.NewFlagSet("dawnd", flag.ContinueOnError)
	fs.SetOutput(stderr)

	f := &Flags{}

	fs.StringVar(&f.CaptureDevice, "c", "", "capture device logical name")
	fs.StringVar(&f.CaptureDevice, "capture", "", "capture device logical name")
	fs.StringVar(&f.PlaybackDevice, "d", "", "playback device logical name")
	fs.StringVar(&f.PlaybackDevice, "playback", "", "playback device logical name")
	fs.StringVar(&f.LogFile, "l", "", "log file path (default: stdout)")
	fs.StringVar(&f.LogFile, "logfile", "", "log file path (default: stdout)")
	fs.StringVar(&f.NetworkAudio, "N", "", "enable the network audio gateway on this listen address")
	fs.StringVar(&f.NetworkAudio, "network-audio", "", "enable the network audio gateway on this listen address")
	fs.StringVar(&f.LLMMode, "m", "", "llm backend: cloud or local")
	fs.StringVar(&f.LLMMode, "llm", "", "llm backend: cloud or local")
	fs.StringVar(&f.CloudProvider, "P", "", "cloud llm provider: openai, anthropic, google, groq")
	fs.StringVar(&f.CloudProvider, "cloud-provider", "", "cloud llm provider: openai, anthropic, google, groq")

	fs.BoolVar(&f.DirectOnly, "D", false, "dispatch mode: action table, then the LLM unless the utterance is ignore-listed")
	fs.BoolVar(&f.DirectFirst, "C", false, "dispatch mode: action table first, fall through to the LLM (default)")
	fs.BoolVar(&f.LLMOnly, "L", false, "dispatch mode: always route through the LLM dispatcher")

	fs.StringVar(&f.ActionConfigPath, "action-config", "/etc/dawn/actions.json", "path to the action/device JSON config")
	fs.StringVar(&f.RuntimeConfigPath, "runtime-config", "/etc/dawn/runtime.toml", "path to the runtime TOML config")

	help := fs.Bool("h", false, "show this help and exit")
	fs.BoolVar(help, "help", false, "show this help and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, ErrShowHelpRequested
		}
		return nil, err
	}

	if *help {
		fs.Usage()
		return nil, ErrShowHelpRequested
	}

	if f.LLMMode != "" && f.LLMMode != "cloud" && f.LLMMode != "local" {
		return nil, fmt.Errorf("config: -m/--llm must be cloud or local, got %q", f.LLMMode)
	}

	modeCount := 0
	for _, set := range []bool{f.DirectOnly, f.DirectFirst, f.LLMOnly} {
		if set {
			modeCount++
		}
	}
	if modeCount > 1 {
		return nil, fmt.Errorf("config: -D, -C, -L are mutually exclusive")
	}

	return f, nil
}

// DispatchModeOverride returns the dispatch mode selected by -D/-C/-L, or
// "" if none was passed and the runtime config's value should be used.
func (f *Flags) DispatchModeOverride() DispatchMode {
	switch {
	case f.DirectOnly:
		return DispatchDirectOnly
	case f.DirectFirst:
		return DispatchDirectFirst
	case f.LLMOnly:
		return DispatchLLMOnly
	default:
		return ""
	}
}

// Run is a thin helper for cmd/dawnd/main.go: parses os.Args, handles the
// help/error exit codes, and returns the flags on success.
func Run() (*Flags, int) {
	f, err := ParseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, ErrShowHelpRequested) {
			return nil, 0
		}
		return nil, 1
	}
	return f, 0
}
