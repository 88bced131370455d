package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/underwrite-ai/underwrite-go/pkg/log"
)

const testSession = "5b0c2f7e-11aa-4c1b-9d3e-7a6b5c4d3e2f"

func TestFormatFrameEvent(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)
	event := log.Event{
		Timestamp:      ts,
		SessionID:      testSession,
		Generation:     3,
		Direction:      log.DirectionOut,
		Layer:          log.LayerProtocol,
		Category:       log.CategoryFrame,
		SubscriptionID: "9f8e7d6c-0000-0000-0000-000000000000",
		Frame:          log.NewFrameEvent("start", []byte(`{ "id": "9f8e7d6c", "type": "start" }`)),
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "2026-01-28T10:15:32.123456Z") {
		t.Errorf("expected microsecond timestamp, got: %s", output)
	}
	if !strings.Contains(output, "[sess:5b0c2f7e g3]") {
		t.Errorf("expected shortened session ID with generation, got: %s", output)
	}
	if !strings.Contains(output, "OUT PROTOCOL start [sub:9f8e7d6c]") {
		t.Errorf("expected header with frame type and subscription, got: %s", output)
	}
	if !strings.Contains(output, `Data: {"id":"9f8e7d6c","type":"start"}`) {
		t.Errorf("expected compacted frame data, got: %s", output)
	}
}

func TestFormatRawFrameTruncated(t *testing.T) {
	data := []byte(`{"blob":"` + strings.Repeat("x", log.MaxFrameData) + `"}`)
	event := log.Event{
		SessionID: "short",
		Direction: log.DirectionIn,
		Layer:     log.LayerSocket,
		Category:  log.CategoryFrame,
		Frame:     log.NewFrameEvent("", data),
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "[sess:short]") {
		t.Errorf("expected unshortened short ID, got: %s", output)
	}
	if !strings.Contains(output, "IN  SOCKET Frame") {
		t.Errorf("expected raw frame label, got: %s", output)
	}
	if !strings.Contains(output, "(truncated)") {
		t.Errorf("expected truncation marker, got: %s", output)
	}
}

func TestFormatStateChangeEvent(t *testing.T) {
	event := log.Event{
		SessionID: testSession,
		Layer:     log.LayerProtocol,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: "AWAITING_ACK",
			NewState: "ACKNOWLEDGED",
			Reason:   "connection_ack",
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	for _, want := range []string{"-   PROTOCOL State", "Entity: SESSION", "AWAITING_ACK -> ACKNOWLEDGED", "Reason: connection_ack"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q, got: %s", want, output)
		}
	}
}

func TestFormatErrorEvent(t *testing.T) {
	code := 4000
	event := log.Event{
		SessionID: testSession,
		Layer:     log.LayerSocket,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerSocket,
			Message: "keepalive timeout",
			Code:    &code,
			Context: "watchdog",
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	for _, want := range []string{"SOCKET Error", "Message: keepalive timeout", "Code: 4000", "Context: watchdog"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q, got: %s", want, output)
		}
	}
}

func TestParseFlags(t *testing.T) {
	if l, err := ParseLayerFlag("Protocol"); err != nil || l != log.LayerProtocol {
		t.Errorf("ParseLayerFlag(Protocol) = %v, %v", l, err)
	}
	if _, err := ParseLayerFlag("wire"); err == nil {
		t.Error("expected error for unknown layer")
	}
	if d, err := ParseDirectionFlag("IN"); err != nil || d != log.DirectionIn {
		t.Errorf("ParseDirectionFlag(IN) = %v, %v", d, err)
	}
	if _, err := ParseDirectionFlag("sideways"); err == nil {
		t.Error("expected error for unknown direction")
	}
	if c, err := ParseCategoryFlag("error"); err != nil || c != log.CategoryError {
		t.Errorf("ParseCategoryFlag(error) = %v, %v", c, err)
	}
	if _, err := ParseCategoryFlag("message"); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestRunViewFilters(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, SessionID: testSession, Direction: log.DirectionOut, Layer: log.LayerProtocol, Category: log.CategoryFrame, Frame: log.NewFrameEvent("connection_init", []byte(`{"type":"connection_init"}`))},
		{Timestamp: ts, SessionID: testSession, Direction: log.DirectionIn, Layer: log.LayerProtocol, Category: log.CategoryFrame, Frame: log.NewFrameEvent("ka", []byte(`{"type":"ka"}`))},
		{Timestamp: ts, SessionID: testSession, Direction: log.DirectionIn, Layer: log.LayerProtocol, Category: log.CategoryFrame, Frame: log.NewFrameEvent("data", []byte(`{"type":"data"}`))},
	}
	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	in := log.DirectionIn
	if err := RunView(path, log.Filter{Direction: &in}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	output := buf.String()
	if strings.Contains(output, "connection_init") {
		t.Errorf("outgoing frame should be filtered, got: %s", output)
	}
	if !strings.Contains(output, "IN  PROTOCOL ka") || !strings.Contains(output, "IN  PROTOCOL data") {
		t.Errorf("expected incoming frames, got: %s", output)
	}

	buf.Reset()
	if err := RunView(path, log.Filter{FrameType: "data"}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if got := strings.Count(buf.String(), "PROTOCOL"); got != 1 {
		t.Errorf("expected 1 event, got %d: %s", got, buf.String())
	}
}

func TestRunViewMissingFile(t *testing.T) {
	var buf bytes.Buffer
	if err := RunView("/nonexistent/file.rtlog", log.Filter{}, &buf); err == nil {
		t.Error("expected error for missing file")
	}
}
