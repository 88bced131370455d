package underwriting

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/underwrite-ai/underwrite-go/pkg/realtime"
)

// ErrNotAttached is returned when a feed is requested before Attach.
var ErrNotAttached = errors.New("underwriting: feeds not attached to a session")

type subscribeFunc func(s *realtime.Session) (*realtime.Subscription, error)

type registration struct {
	name      string
	subscribe subscribeFunc
	current   *realtime.Subscription
	cancelled bool
	err       error
}

// Feed is the handle of one registered feed. It survives reconnects when
// Resubscribe is wired to the session's OnAck.
type Feed struct {
	feeds *Feeds
	reg   *registration
}

// Name returns the feed's name.
func (f *Feed) Name() string { return f.reg.name }

// SubscriptionID returns the id of the current underlying subscription.
func (f *Feed) SubscriptionID() string {
	f.feeds.mu.Lock()
	defer f.feeds.mu.Unlock()
	if f.reg.current == nil {
		return ""
	}
	return f.reg.current.ID()
}

// Err returns the error of the last failed re-subscription, or nil once
// the feed is running again.
func (f *Feed) Err() error {
	f.feeds.mu.Lock()
	defer f.feeds.mu.Unlock()
	return f.reg.err
}

// Cancel unsubscribes the feed and forgets it.
func (f *Feed) Cancel() {
	f.feeds.cancel(f.reg)
}

// Feeds registers typed feeds on a session.
type Feeds struct {
	mu      sync.Mutex
	session *realtime.Session
	regs    []*registration
	logger  *slog.Logger
}

// NewFeeds creates an unattached feed set.
func NewFeeds() *Feeds {
	return &Feeds{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// SetLogger sets the logger for re-subscription failures.
func (f *Feeds) SetLogger(logger *slog.Logger) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logger = logger
}

// Attach binds the feed set to a session.
func (f *Feeds) Attach(s *realtime.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = s
}

// ProjectUpdates subscribes to project changes.
func (f *Feeds) ProjectUpdates(fn func(Project), onError realtime.ErrorFunc) (*Feed, error) {
	return f.register("projects", func(s *realtime.Session) (*realtime.Subscription, error) {
		return realtime.Subscribe(s, realtime.Request{Query: ProjectUpdatedQuery},
			func(ev projectUpdated) { fn(ev.OnProjectUpdated) }, onError)
	})
}

// DocumentUpdates subscribes to document status changes of a project.
func (f *Feeds) DocumentUpdates(projectID string, fn func(Document), onError realtime.ErrorFunc) (*Feed, error) {
	req := realtime.Request{
		Query:     DocumentUpdatedQuery,
		Variables: map[string]any{"projectId": projectID},
	}
	return f.register("documents:"+projectID, func(s *realtime.Session) (*realtime.Subscription, error) {
		return realtime.Subscribe(s, req, func(ev documentUpdated) { fn(ev.OnDocumentUpdated) }, onError)
	})
}

// InsightsCreated subscribes to new analysis insights of a project.
func (f *Feeds) InsightsCreated(projectID string, fn func(Insight), onError realtime.ErrorFunc) (*Feed, error) {
	req := realtime.Request{
		Query:     InsightCreatedQuery,
		Variables: map[string]any{"projectId": projectID},
	}
	return f.register("insights:"+projectID, func(s *realtime.Session) (*realtime.Subscription, error) {
		return realtime.Subscribe(s, req, func(ev insightCreated) { fn(ev.OnInsightCreated) }, onError)
	})
}

// Raw registers an arbitrary subscription document under name.
func (f *Feeds) Raw(name string, req realtime.Request, h realtime.Handlers) (*Feed, error) {
	return f.register(name, func(s *realtime.Session) (*realtime.Subscription, error) {
		return s.Subscribe(req, h)
	})
}

func (f *Feeds) register(name string, subscribe subscribeFunc) (*Feed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return nil, ErrNotAttached
	}

	sub, err := subscribe(f.session)
	if err != nil {
		return nil, err
	}
	reg := &registration{name: name, subscribe: subscribe, current: sub}
	f.regs = append(f.regs, reg)
	return &Feed{feeds: f, reg: reg}, nil
}

// Resubscribe re-issues every feed whose subscription is no longer active,
// typically because its connection generation ended. Feeds that are still
// active (queued or running) are left alone. Failures are logged and kept
// on the feed (see Feed.Err); the next call retries. It is meant to be used
// as realtime.Options.OnAck.
func (f *Feeds) Resubscribe() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return
	}

	for _, reg := range f.regs {
		if reg.cancelled || (reg.current != nil && reg.current.Active()) {
			continue
		}
		sub, err := reg.subscribe(f.session)
		if err != nil {
			reg.err = err
			f.logger.Warn("underwriting: resubscribe failed", "feed", reg.name, "error", err)
			continue
		}
		reg.current = sub
		reg.err = nil
	}
}

// Names returns the names of all registered feeds.
func (f *Feeds) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.regs))
	for _, reg := range f.regs {
		names = append(names, reg.name)
	}
	return names
}

// Lookup returns the feed registered under name, or the feed whose current
// subscription has that id.
func (f *Feeds) Lookup(nameOrID string) (*Feed, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, reg := range f.regs {
		if reg.name == nameOrID || (reg.current != nil && reg.current.ID() == nameOrID) {
			return &Feed{feeds: f, reg: reg}, true
		}
	}
	return nil, false
}

func (f *Feeds) cancel(reg *registration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if reg.cancelled {
		return
	}
	reg.cancelled = true
	if reg.current != nil {
		reg.current.Unsubscribe()
	}
	for i, r := range f.regs {
		if r == reg {
			f.regs = append(f.regs[:i], f.regs[i+1:]...)
			break
		}
	}
}
