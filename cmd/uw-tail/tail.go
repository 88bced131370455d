package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/underwrite-ai/underwrite-go/pkg/socket"
)

// tailer prints every message of one socket.
type tailer struct {
	out    io.Writer
	pretty bool

	mu       sync.Mutex
	sock     *socket.Socket
	greeting []byte
	unlisten func()

	count atomic.Uint64
	opens atomic.Uint64
}

func newTailer(out io.Writer, pretty bool) *tailer {
	return &tailer{out: out, pretty: pretty}
}

// setGreeting sets the message sent after every open.
func (t *tailer) setGreeting(msg string) error {
	if !json.Valid([]byte(msg)) {
		return errors.New("not valid JSON")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.greeting = []byte(msg)
	return nil
}

func (t *tailer) start(ctx context.Context, url string, opts socket.Options) error {
	// Held until Connect returns so callbacks see t.sock.
	t.mu.Lock()
	defer t.mu.Unlock()

	opts.OnOpen = t.onOpen
	opts.OnClose = func(ev socket.CloseEvent) {
		log.Printf("[CLOSE] code=%d reason=%q local=%v", ev.Code, ev.Reason, ev.Local)
	}
	opts.OnError = func(err error) {
		log.Printf("[ERROR] %v", err)
	}

	sock, err := socket.Connect(ctx, url, opts)
	if err != nil {
		return err
	}
	t.sock = sock
	t.unlisten = sock.Listen(t.print)
	return nil
}

func (t *tailer) onOpen() {
	n := t.opens.Add(1)
	t.mu.Lock()
	sock, greeting := t.sock, t.greeting
	t.mu.Unlock()

	log.Printf("[OPEN] connection %d", n)
	if sock != nil && greeting != nil && !sock.SendRaw(greeting) {
		log.Printf("[ERROR] greeting not sent")
	}
}

func (t *tailer) print(msg json.RawMessage) {
	t.count.Add(1)
	if t.pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, msg, "", "  "); err == nil {
			fmt.Fprintln(t.out, buf.String())
			return
		}
	}
	fmt.Fprintln(t.out, string(msg))
}

func (t *tailer) stop() {
	t.mu.Lock()
	sock, unlisten := t.sock, t.unlisten
	t.mu.Unlock()
	if sock == nil {
		return
	}
	unlisten()
	sock.Close()
	<-sock.Done()
}

func (t *tailer) received() uint64    { return t.count.Load() }
func (t *tailer) connections() uint64 { return t.opens.Load() }
