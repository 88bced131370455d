// Command uw-tail connects to a raw JSON push stream and prints every
// message. The connection is re-established after every close.
//
// Usage:
//
//	uw-tail [flags] [url]
//
// Flags:
//
//	-config string           Configuration file path (uses stream.url and stream.bufferSize)
//	-url string              WebSocket URL (ws:// or wss://)
//	-protocol string         Comma-separated subprotocols to offer
//	-header value            Extra upgrade header "Name: value" (repeatable)
//	-send string             JSON message sent after every (re)connect
//	-buffer int              Replay buffer size (default 256)
//	-reconnect-delay dur     Fixed delay between reconnects (default 3s)
//	-backoff                 Use exponential backoff instead of a fixed delay
//	-pretty                  Indent JSON output
//	-capture string          Write a protocol capture (.rtlog) to this file
//	-log-level string        Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	uw-tail wss://push.underwrite.example/stream
//	uw-tail -send '{"action":"subscribe","channel":"projects"}' -pretty wss://push.underwrite.example/stream
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/underwrite-ai/underwrite-go/pkg/config"
	pkglog "github.com/underwrite-ai/underwrite-go/pkg/log"
	"github.com/underwrite-ai/underwrite-go/pkg/socket"
)

// headerFlags collects repeated -header values.
type headerFlags []string

func (h *headerFlags) String() string { return strings.Join(*h, ", ") }

func (h *headerFlags) Set(v string) error {
	if !strings.Contains(v, ":") {
		return fmt.Errorf("header %q: expected \"Name: value\"", v)
	}
	*h = append(*h, v)
	return nil
}

// Flags holds the command-line settings.
type Flags struct {
	ConfigFile     string
	URL            string
	Protocols      string
	Headers        headerFlags
	Send           string
	BufferSize     int
	ReconnectDelay time.Duration
	Backoff        bool
	Pretty         bool
	Capture        string
	LogLevel       string
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (uses stream.url and stream.bufferSize)")
	flag.StringVar(&flags.URL, "url", "", "WebSocket URL (ws:// or wss://)")
	flag.StringVar(&flags.Protocols, "protocol", "", "Comma-separated subprotocols to offer")
	flag.Var(&flags.Headers, "header", "Extra upgrade header \"Name: value\" (repeatable)")
	flag.StringVar(&flags.Send, "send", "", "JSON message sent after every (re)connect")
	flag.IntVar(&flags.BufferSize, "buffer", 0, "Replay buffer size (default 256)")
	flag.DurationVar(&flags.ReconnectDelay, "reconnect-delay", 0, "Fixed delay between reconnects (default 3s)")
	flag.BoolVar(&flags.Backoff, "backoff", false, "Use exponential backoff instead of a fixed delay")
	flag.BoolVar(&flags.Pretty, "pretty", false, "Indent JSON output")
	flag.StringVar(&flags.Capture, "capture", "", "Write a protocol capture (.rtlog) to this file")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func main() {
	flag.Parse()
	if flag.NArg() > 0 && flags.URL == "" {
		flags.URL = flag.Arg(0)
	}
	setupLogging(flags.LogLevel)

	opts, url, err := buildOptions(flags)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	if flags.Capture != "" {
		fl, err := pkglog.NewFileLogger(flags.Capture)
		if err != nil {
			log.Fatalf("Failed to open capture: %v", err)
		}
		defer fl.Close()
		opts.ProtocolLogger = fl
		opts.CaptureFrames = true
	}
	opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel(flags.LogLevel)}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t := newTailer(os.Stdout, flags.Pretty)
	if flags.Send != "" {
		if err := t.setGreeting(flags.Send); err != nil {
			log.Fatalf("Invalid -send: %v", err)
		}
	}
	if err := t.start(ctx, url, opts); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	log.Printf("Tailing %s", url)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received signal: %v", sig)

	t.stop()
	log.Printf("Received %d messages over %d connections", t.received(), t.connections())
}

// buildOptions merges the configuration file and flags into socket options.
func buildOptions(f Flags) (socket.Options, string, error) {
	var opts socket.Options
	url := f.URL
	bufferSize := f.BufferSize

	if f.ConfigFile != "" {
		cfg, err := config.Load(f.ConfigFile)
		if err != nil {
			return opts, "", err
		}
		if url == "" {
			url = cfg.Stream.URL
		}
		if bufferSize == 0 {
			bufferSize = cfg.Stream.BufferSize
		}
		if f.ReconnectDelay == 0 && !f.Backoff {
			opts.Reconnect = cfg.ReconnectPolicy()
		}
	}
	if url == "" {
		return opts, "", fmt.Errorf("no URL given (use -url, an argument or stream.url)")
	}

	opts.BufferSize = bufferSize
	switch {
	case f.Backoff:
		opts.Reconnect = socket.NewBackoff(socket.BackoffConfig{
			Initial: f.ReconnectDelay,
			Jitter:  socket.DefaultJitter,
		})
	case f.ReconnectDelay > 0:
		opts.ReconnectDelay = f.ReconnectDelay
	}

	if f.Protocols != "" {
		var protocols []string
		for _, p := range strings.Split(f.Protocols, ",") {
			if p = strings.TrimSpace(p); p != "" {
				protocols = append(protocols, p)
			}
		}
		opts.Protocols = func() []string { return protocols }
	}

	if len(f.Headers) > 0 {
		opts.HTTPHeader = http.Header{}
		for _, h := range f.Headers {
			name, value, _ := strings.Cut(h, ":")
			opts.HTTPHeader.Add(strings.TrimSpace(name), strings.TrimSpace(value))
		}
	}
	return opts, url, nil
}

func setupLogging(level string) {
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	log.SetOutput(os.Stderr)

	switch level {
	case "debug":
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
	case "warn", "error":
		log.SetFlags(log.Ltime)
	}
}

func slogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
