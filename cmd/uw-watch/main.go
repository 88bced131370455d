// Command uw-watch opens a realtime GraphQL session against the
// underwriting API and prints subscription payloads as they arrive.
//
// Usage:
//
//	uw-watch [flags]
//
// Flags:
//
//	-config string           Configuration file path
//	-endpoint string         GraphQL HTTP endpoint (https)
//	-api-key string          API key (x-api-key)
//	-token string            Bearer identity token
//	-token-env string        Environment variable holding the bearer token
//	-subscribe string        Comma-separated subscription names from the config (default: all)
//	-project string          Watch document and insight feeds of this project
//	-resubscribe             Re-issue lost subscriptions after every reconnect
//	-reconnect-delay dur     Fixed delay between reconnects (default 3s)
//	-capture string          Write a protocol capture (.rtlog) to this file
//	-capture-frames          Include raw socket frames in the capture
//	-log-level string        Log level: debug, info, warn, error (default "info")
//	-interactive             Enable interactive command mode
//
// Examples:
//
//	# Watch everything configured in uw.yaml
//	uw-watch -config uw.yaml
//
//	# Watch one project's documents and insights with an API key
//	uw-watch -endpoint https://abc.appsync-api.eu-central-1.amazonaws.com/graphql \
//	    -api-key da2-xxxx -project p-42 -resubscribe
//
//	# Interactive mode with a capture for uw-log
//	uw-watch -config uw.yaml -interactive -capture session.rtlog
//
// Interactive Commands:
//
//	sub <name>         - Subscribe a configured document
//	unsub <feed|id>    - Cancel a feed
//	list               - List feeds
//	status             - Show session status
//	ready              - Wait for the connection to be acknowledged
//	quit               - Exit
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/underwrite-ai/underwrite-go/cmd/uw-watch/interactive"
	"github.com/underwrite-ai/underwrite-go/pkg/config"
	pkglog "github.com/underwrite-ai/underwrite-go/pkg/log"
	"github.com/underwrite-ai/underwrite-go/pkg/realtime"
	"github.com/underwrite-ai/underwrite-go/pkg/socket"
	"github.com/underwrite-ai/underwrite-go/pkg/underwriting"
)

// Flags holds the command-line settings. Non-empty values override the
// configuration file.
type Flags struct {
	ConfigFile     string
	Endpoint       string
	APIKey         string
	Token          string
	TokenEnv       string
	Subscribe      string
	Project        string
	Resubscribe    bool
	ReconnectDelay time.Duration
	Capture        string
	CaptureFrames  bool
	LogLevel       string
	Interactive    bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&flags.Endpoint, "endpoint", "", "GraphQL HTTP endpoint (https)")
	flag.StringVar(&flags.APIKey, "api-key", "", "API key (x-api-key)")
	flag.StringVar(&flags.Token, "token", "", "Bearer identity token")
	flag.StringVar(&flags.TokenEnv, "token-env", "", "Environment variable holding the bearer token")
	flag.StringVar(&flags.Subscribe, "subscribe", "", "Comma-separated subscription names from the config (default: all)")
	flag.StringVar(&flags.Project, "project", "", "Watch document and insight feeds of this project")
	flag.BoolVar(&flags.Resubscribe, "resubscribe", false, "Re-issue lost subscriptions after every reconnect")
	flag.DurationVar(&flags.ReconnectDelay, "reconnect-delay", 0, "Fixed delay between reconnects (default 3s)")
	flag.StringVar(&flags.Capture, "capture", "", "Write a protocol capture (.rtlog) to this file")
	flag.BoolVar(&flags.CaptureFrames, "capture-frames", false, "Include raw socket frames in the capture")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error (default \"info\")")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Enable interactive command mode")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig(flags)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	setupLogging(cfg.LogLevel)

	log.Println("Underwrite Realtime Watch")
	log.Println("=========================")
	log.Printf("Endpoint: %s", cfg.Endpoint)

	auth, err := cfg.RealtimeAuth()
	if err != nil {
		log.Fatalf("Credentials: %v", err)
	}
	log.Printf("Auth mode: %s", auth.Mode())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ic *interactive.Watcher
	if flags.Interactive {
		ic, err = interactive.New(cfg)
		if err != nil {
			log.Fatalf("Failed to create interactive mode: %v", err)
		}
		// Route log output through readline so it does not clobber the prompt.
		log.SetOutput(ic.Stdout())
	}

	logger := newLogger(cfg.LogLevel, log.Writer())

	capture, closeCapture, err := openCapture(cfg.Capture.File, logger, cfg.LogLevel == "debug")
	if err != nil {
		log.Fatalf("Failed to open capture: %v", err)
	}
	defer closeCapture()

	feeds := underwriting.NewFeeds()
	feeds.SetLogger(logger)
	session, err := realtime.Connect(ctx, cfg.Endpoint, auth, realtime.Options{
		Reconnect:      cfg.ReconnectPolicy(),
		CaptureFrames:  cfg.Capture.Frames,
		Logger:         logger,
		ProtocolLogger: capture,
		OnAck: func() {
			log.Printf("[ACK] Connection acknowledged")
			if flags.Resubscribe {
				feeds.Resubscribe()
			}
		},
		OnClose: func(ev socket.CloseEvent) {
			log.Printf("[CLOSE] code=%d reason=%q", ev.Code, ev.Reason)
		},
	})
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	feeds.Attach(session)
	log.Printf("Realtime URL: %s", session.URL())

	if err := registerFeeds(feeds, cfg, flags); err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}

	if ic != nil {
		ic.Attach(session, feeds)
		go ic.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	_ = session.Close()

	select {
	case <-session.Done():
	case <-time.After(5 * time.Second):
		log.Println("Timed out waiting for the socket to close")
	}

	st := session.Stats()
	log.Printf("Frames in/out: %d/%d, dropped: %d, reconnects: %d", st.FramesIn, st.FramesOut, st.Dropped, st.Reconnects)
	log.Println("Goodbye!")
}

// loadConfig reads the configuration file (if any) and applies flag
// overrides.
func loadConfig(f Flags) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if f.ConfigFile != "" {
		cfg, err = config.Load(f.ConfigFile)
	} else {
		cfg, err = config.Parse(nil)
	}
	if err != nil {
		return nil, err
	}

	if f.Endpoint != "" {
		cfg.Endpoint = f.Endpoint
	}
	switch {
	case f.APIKey != "":
		cfg.Auth = config.AuthConfig{Mode: config.ModeAPIKey, APIKey: f.APIKey}
	case f.Token != "":
		cfg.Auth = config.AuthConfig{Mode: config.ModeBearer, Token: f.Token}
	case f.TokenEnv != "":
		cfg.Auth = config.AuthConfig{Mode: config.ModeBearer, TokenEnv: f.TokenEnv}
	}
	if f.ReconnectDelay > 0 {
		cfg.Reconnect.Delay = f.ReconnectDelay
		cfg.Reconnect.Backoff = false
	}
	if f.Capture != "" {
		cfg.Capture.File = f.Capture
	}
	if f.CaptureFrames {
		cfg.Capture.Frames = true
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}

	if cfg.Endpoint == "" {
		return nil, &config.ConfigError{Field: "endpoint", Message: "required (use -endpoint or the config file)"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// registerFeeds subscribes the configured documents and the project feeds.
func registerFeeds(feeds *underwriting.Feeds, cfg *config.Config, f Flags) error {
	names := selectedSubscriptions(cfg, f.Subscribe)
	for _, name := range names {
		sub, ok := cfg.Subscription(name)
		if !ok {
			return fmt.Errorf("unknown subscription %q", name)
		}
		if _, err := feeds.Raw(name, sub.Request(), printHandlers(name)); err != nil {
			return fmt.Errorf("subscribe %s: %w", name, err)
		}
		log.Printf("Subscribed: %s", name)
	}

	if f.Project != "" {
		onError := printError("project " + f.Project)
		if _, err := feeds.DocumentUpdates(f.Project, printDocument, onError); err != nil {
			return err
		}
		if _, err := feeds.InsightsCreated(f.Project, printInsight, onError); err != nil {
			return err
		}
		log.Printf("Watching project %s", f.Project)
	}
	return nil
}

func selectedSubscriptions(cfg *config.Config, list string) []string {
	if list != "" {
		var names []string
		for _, n := range strings.Split(list, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		return names
	}
	names := make([]string, 0, len(cfg.Subscriptions))
	for _, s := range cfg.Subscriptions {
		names = append(names, s.Name)
	}
	return names
}

func printHandlers(name string) realtime.Handlers {
	return realtime.Handlers{
		Next: func(data json.RawMessage) {
			log.Printf("[DATA] %s: %s", name, data)
		},
		Error:    printError(name),
		Complete: func() { log.Printf("[COMPLETE] %s", name) },
	}
}

func printError(name string) realtime.ErrorFunc {
	return func(payload json.RawMessage) {
		errs, err := realtime.ParseErrors(payload)
		if err != nil {
			log.Printf("[ERROR] %s: %s", name, payload)
			return
		}
		for _, e := range errs {
			log.Printf("[ERROR] %s: %v", name, e)
		}
	}
}

func printDocument(d underwriting.Document) {
	line := fmt.Sprintf("[DOCUMENT] %s %q status=%s", d.ID, d.Name, d.Status)
	if d.Error != "" {
		line += " error=" + d.Error
	}
	log.Println(line)
}

func printInsight(i underwriting.Insight) {
	log.Printf("[INSIGHT] %s doc=%s %s (%.0f%%): %s", i.ID, i.DocumentID, i.Category, i.Confidence*100, i.Summary)
}

func setupLogging(level string) {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	switch level {
	case "debug":
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
	case "warn", "error":
		log.SetFlags(log.Ltime)
	}
}

// newLogger builds the slog logger handed to the session.
func newLogger(level string, w io.Writer) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

// openCapture opens the capture file. In debug mode capture events are
// also written to the slog logger.
func openCapture(path string, logger *slog.Logger, debug bool) (pkglog.Logger, func(), error) {
	var loggers []pkglog.Logger
	closeFn := func() {}

	if path != "" {
		fl, err := pkglog.NewFileLogger(path)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Capturing protocol events to %s", path)
		loggers = append(loggers, fl)
		closeFn = func() { _ = fl.Close() }
	}
	if debug {
		loggers = append(loggers, pkglog.NewSlogAdapter(logger))
	}

	if len(loggers) == 0 {
		return nil, closeFn, nil
	}
	return pkglog.NewMultiLogger(loggers...), closeFn, nil
}
