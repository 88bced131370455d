// Command uw-log views and analyzes realtime protocol capture files.
//
// Capture files are written by uw-watch and uw-tail with the -capture flag.
//
// Usage:
//
//	uw-log <command> [flags] <file.rtlog>
//
// Commands:
//
//	view     View capture file in human-readable format
//	export   Export capture file to JSONL or CSV format
//	filter   Filter capture file and write to new file
//	stats    Show statistics about the capture file
//
// Examples:
//
//	# View all events
//	uw-log view session.rtlog
//
//	# View only start and stop frames
//	uw-log view --type start session.rtlog
//	uw-log view --type stop session.rtlog
//
//	# View the second connection of a session
//	uw-log view --generation 2 session.rtlog
//
//	# Export to JSONL
//	uw-log export --format jsonl session.rtlog
//
//	# Keep one subscription's events
//	uw-log filter --subscription 6f1c9e2a-... -o sub.rtlog session.rtlog
//
//	# Show statistics
//	uw-log stats session.rtlog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/underwrite-ai/underwrite-go/cmd/uw-log/commands"
)

const usage = `uw-log - Realtime Capture Analyzer

Usage:
  uw-log <command> [flags] <file.rtlog>

Commands:
  view     View capture file in human-readable format
  export   Export capture file to JSONL or CSV format
  filter   Filter capture file and write to new file
  stats    Show statistics about the capture file

Use "uw-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// selectionFlags registers the flags shared by view and filter.
func selectionFlags(fs *flag.FlagSet, opts *commands.FilterOptions) {
	fs.StringVar(&opts.SessionID, "session", "", "Filter by session ID")
	fs.StringVar(&opts.SubscriptionID, "subscription", "", "Filter by subscription ID")
	fs.StringVar(&opts.FrameType, "type", "", "Filter by frame type (start, data, stop, ka, ...)")
	fs.StringVar(&opts.Generation, "generation", "", "Filter by connection generation")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (socket, protocol, subscription)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (frame, state, error)")
}

func requirePath(fs *flag.FlagSet) string {
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `uw-log view - View capture file in human-readable format

Usage:
  uw-log view [flags] <file.rtlog>

Flags:
`)
		fs.PrintDefaults()
	}

	var opts commands.FilterOptions
	selectionFlags(fs, &opts)

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requirePath(fs)

	filter, err := opts.Filter()
	if err != nil {
		fail(err)
	}
	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `uw-log export - Export capture file to JSONL or CSV format

Usage:
  uw-log export [flags] <file.rtlog>

Flags:
`)
		fs.PrintDefaults()
	}

	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requirePath(fs)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `uw-log filter - Filter capture file and write to new file

Usage:
  uw-log filter [flags] <file.rtlog>

Flags:
`)
		fs.PrintDefaults()
	}

	var opts commands.FilterOptions
	fs.StringVar(&opts.Output, "o", "", "Output file (required)")
	selectionFlags(fs, &opts)

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requirePath(fs)

	if opts.Output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	if err := commands.RunFilter(path, opts, os.Stdout); err != nil {
		fail(err)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `uw-log stats - Show statistics about the capture file

Usage:
  uw-log stats <file.rtlog>

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	path := requirePath(fs)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
