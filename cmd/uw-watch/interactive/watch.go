// Package interactive provides the interactive command-line interface
// for uw-watch.
package interactive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/underwrite-ai/underwrite-go/pkg/config"
	"github.com/underwrite-ai/underwrite-go/pkg/realtime"
	"github.com/underwrite-ai/underwrite-go/pkg/underwriting"
)

// Catalog provides the named subscription documents available to "sub".
type Catalog interface {
	Subscription(name string) (config.Subscription, bool)
}

// Watcher handles interactive mode for uw-watch.
type Watcher struct {
	catalog Catalog
	names   []string
	rl      *readline.Instance
	out     io.Writer

	session *realtime.Session
	feeds   *underwriting.Feeds
}

// New creates a new interactive watcher.
func New(cfg *config.Config) (*Watcher, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "uw> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	w := newWatcher(cfg, rl.Stdout())
	w.rl = rl
	return w, nil
}

func newWatcher(cfg *config.Config, out io.Writer) *Watcher {
	names := make([]string, 0, len(cfg.Subscriptions))
	for _, s := range cfg.Subscriptions {
		names = append(names, s.Name)
	}
	return &Watcher{catalog: cfg, names: names, out: out}
}

// Attach binds the watcher to the running session and its feeds.
func (w *Watcher) Attach(s *realtime.Session, feeds *underwriting.Feeds) {
	w.session = s
	w.feeds = feeds
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (w *Watcher) Stdout() io.Writer {
	return w.rl.Stdout()
}

// Run starts the interactive command loop.
func (w *Watcher) Run(ctx context.Context, cancel context.CancelFunc) {
	defer w.rl.Close()

	w.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := w.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(w.out, "Exiting...")
			cancel()
			return
		}

		if w.Execute(ctx, line) {
			cancel()
			return
		}
	}
}

// Execute runs one command line. It returns true when the user asked to quit.
func (w *Watcher) Execute(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		w.printHelp()

	case "sub", "s":
		w.cmdSub(args)

	case "docs":
		w.cmdDocs(args)

	case "insights":
		w.cmdInsights(args)

	case "projects":
		w.cmdProjects()

	case "unsub", "u":
		w.cmdUnsub(args)

	case "list", "l":
		w.cmdList()

	case "status", "st":
		w.cmdStatus()

	case "ready":
		w.cmdReady(ctx, args)

	case "quit", "exit", "q":
		fmt.Fprintln(w.out, "Exiting...")
		return true

	default:
		fmt.Fprintf(w.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (w *Watcher) printHelp() {
	fmt.Fprintln(w.out, `
Commands:
  sub <name>            - Subscribe a configured document
  docs <project-id>     - Watch document status changes of a project
  insights <project-id> - Watch new insights of a project
  projects              - Watch project updates
  unsub <feed|id>       - Cancel a feed
  list                  - List feeds and configured documents
  status                - Show session status
  ready [timeout]       - Wait for the connection to be acknowledged
  help                  - Show this help
  quit                  - Exit`)
	fmt.Fprintln(w.out)
}

func (w *Watcher) attached() bool {
	if w.session == nil || w.feeds == nil {
		fmt.Fprintln(w.out, "Not connected")
		return false
	}
	return true
}

func (w *Watcher) cmdSub(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(w.out, "Usage: sub <name>")
		return
	}
	if !w.attached() {
		return
	}
	name := args[0]
	sub, ok := w.catalog.Subscription(name)
	if !ok {
		fmt.Fprintf(w.out, "Unknown subscription: %s\n", name)
		return
	}
	if _, ok := w.feeds.Lookup(name); ok {
		fmt.Fprintf(w.out, "Already subscribed: %s\n", name)
		return
	}

	feed, err := w.feeds.Raw(name, sub.Request(), realtime.Handlers{
		Next: func(data json.RawMessage) {
			fmt.Fprintf(w.out, "[DATA] %s: %s\n", name, data)
		},
		Error: w.printError(name),
		Complete: func() {
			fmt.Fprintf(w.out, "[COMPLETE] %s\n", name)
		},
	})
	if err != nil {
		fmt.Fprintf(w.out, "Subscribe failed: %v\n", err)
		return
	}
	fmt.Fprintf(w.out, "Subscribed %s (id %s)\n", feed.Name(), feed.SubscriptionID())
}

func (w *Watcher) cmdDocs(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(w.out, "Usage: docs <project-id>")
		return
	}
	if !w.attached() {
		return
	}
	feed, err := w.feeds.DocumentUpdates(args[0], func(d underwriting.Document) {
		fmt.Fprintf(w.out, "[DOCUMENT] %s %q status=%s\n", d.ID, d.Name, d.Status)
	}, w.printError("documents:"+args[0]))
	w.reportFeed(feed, err)
}

func (w *Watcher) cmdInsights(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(w.out, "Usage: insights <project-id>")
		return
	}
	if !w.attached() {
		return
	}
	feed, err := w.feeds.InsightsCreated(args[0], func(i underwriting.Insight) {
		fmt.Fprintf(w.out, "[INSIGHT] %s %s: %s\n", i.ID, i.Category, i.Summary)
	}, w.printError("insights:"+args[0]))
	w.reportFeed(feed, err)
}

func (w *Watcher) cmdProjects() {
	if !w.attached() {
		return
	}
	feed, err := w.feeds.ProjectUpdates(func(p underwriting.Project) {
		fmt.Fprintf(w.out, "[PROJECT] %s %q %s\n", p.ID, p.Name, p.Status)
	}, w.printError("projects"))
	w.reportFeed(feed, err)
}

func (w *Watcher) reportFeed(feed *underwriting.Feed, err error) {
	if err != nil {
		fmt.Fprintf(w.out, "Subscribe failed: %v\n", err)
		return
	}
	fmt.Fprintf(w.out, "Watching %s (id %s)\n", feed.Name(), feed.SubscriptionID())
}

func (w *Watcher) cmdUnsub(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(w.out, "Usage: unsub <feed|id>")
		return
	}
	if !w.attached() {
		return
	}
	feed, ok := w.feeds.Lookup(args[0])
	if !ok {
		fmt.Fprintf(w.out, "No such feed: %s\n", args[0])
		return
	}
	feed.Cancel()
	fmt.Fprintf(w.out, "Cancelled %s\n", feed.Name())
}

func (w *Watcher) cmdList() {
	if w.feeds != nil {
		names := w.feeds.Names()
		fmt.Fprintf(w.out, "Feeds (%d):\n", len(names))
		for _, name := range names {
			id := ""
			if feed, ok := w.feeds.Lookup(name); ok {
				id = feed.SubscriptionID()
			}
			fmt.Fprintf(w.out, "  %-30s %s\n", name, id)
		}
	}

	names := append([]string(nil), w.names...)
	sort.Strings(names)
	fmt.Fprintf(w.out, "Configured (%d):\n", len(names))
	for _, name := range names {
		fmt.Fprintf(w.out, "  %s\n", name)
	}
}

func (w *Watcher) cmdStatus() {
	if w.session == nil {
		fmt.Fprintln(w.out, "Not connected")
		return
	}
	st := w.session.Stats()
	fmt.Fprintf(w.out, "Session:     %s\n", w.session.ID())
	fmt.Fprintf(w.out, "URL:         %s\n", w.session.URL())
	fmt.Fprintf(w.out, "State:       %s\n", st.State)
	fmt.Fprintf(w.out, "Generation:  %d\n", st.Generation)
	fmt.Fprintf(w.out, "Subs:        %d active, %d pending\n", st.Active, st.Pending)
	fmt.Fprintf(w.out, "Frames:      %d in, %d out, %d dropped\n", st.FramesIn, st.FramesOut, st.Dropped)
	fmt.Fprintf(w.out, "Reconnects:  %d (keepalive timeouts %d)\n", st.Reconnects, st.KeepaliveTimeouts)
	if st.ConnectionTimeout > 0 {
		fmt.Fprintf(w.out, "Keepalive:   timeout %s", st.ConnectionTimeout)
		if !st.LastKeepalive.IsZero() {
			fmt.Fprintf(w.out, ", last %s ago", time.Since(st.LastKeepalive).Round(time.Millisecond))
		}
		fmt.Fprintln(w.out)
	}
}

func (w *Watcher) cmdReady(ctx context.Context, args []string) {
	if w.session == nil {
		fmt.Fprintln(w.out, "Not connected")
		return
	}
	timeout := 10 * time.Second
	if len(args) > 0 {
		d, err := time.ParseDuration(args[0])
		if err != nil {
			fmt.Fprintf(w.out, "Invalid timeout: %v\n", err)
			return
		}
		timeout = d
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := w.session.Ready(ctx); err != nil {
		fmt.Fprintf(w.out, "Not ready: %v\n", err)
		return
	}
	fmt.Fprintln(w.out, "Ready")
}

func (w *Watcher) printError(name string) realtime.ErrorFunc {
	return func(payload json.RawMessage) {
		errs, err := realtime.ParseErrors(payload)
		if err != nil {
			fmt.Fprintf(w.out, "[ERROR] %s: %s\n", name, payload)
			return
		}
		for _, e := range errs {
			fmt.Fprintf(w.out, "[ERROR] %s: %v\n", name, e)
		}
	}
}
