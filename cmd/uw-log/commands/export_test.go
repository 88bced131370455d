package commands

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/underwrite-ai/underwrite-go/pkg/log"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.rtlog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func exportEvents() []log.Event {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)
	code := 4001
	return []log.Event{
		{
			Timestamp:      ts,
			SessionID:      testSession,
			Generation:     1,
			Direction:      log.DirectionOut,
			Layer:          log.LayerProtocol,
			Category:       log.CategoryFrame,
			Endpoint:       "wss://abc.appsync-realtime-api.eu-central-1.amazonaws.com/graphql",
			SubscriptionID: "sub-1",
			Frame:          log.NewFrameEvent("start", []byte(`{"id":"sub-1","type":"start"}`)),
		},
		{
			Timestamp: ts.Add(time.Second),
			SessionID: testSession,
			Layer:     log.LayerProtocol,
			Category:  log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntitySession,
				OldState: "ACKNOWLEDGED",
				NewState: "CONNECTING",
				Reason:   "closed",
			},
		},
		{
			Timestamp: ts.Add(2 * time.Second),
			SessionID: testSession,
			Layer:     log.LayerSocket,
			Category:  log.CategoryError,
			Error:     &log.ErrorEventData{Layer: log.LayerSocket, Message: "connection_error", Code: &code},
		},
	}
}

func TestExportToJSONL(t *testing.T) {
	path := createTestLogFile(t, exportEvents())
	outPath := filepath.Join(t.TempDir(), "out.jsonl")

	if err := RunExport(path, "jsonl", outPath); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}

	var first exportRecord
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("invalid JSON line: %v", err)
	}
	if first.Timestamp != "2026-01-28T10:15:32.123456Z" {
		t.Errorf("unexpected timestamp %s", first.Timestamp)
	}
	if first.Type != "start" || first.Direction != "OUT" || first.Layer != "PROTOCOL" {
		t.Errorf("unexpected header fields: %+v", first)
	}
	if first.Data != `{"id":"sub-1","type":"start"}` {
		t.Errorf("expected frame data as text, got %s", first.Data)
	}
	if first.Generation != 1 || first.SubscriptionID != "sub-1" {
		t.Errorf("unexpected ids: %+v", first)
	}

	var state exportRecord
	if err := json.Unmarshal([]byte(lines[1]), &state); err != nil {
		t.Fatalf("invalid JSON line: %v", err)
	}
	if state.OldState != "ACKNOWLEDGED" || state.NewState != "CONNECTING" || state.Entity != "SESSION" {
		t.Errorf("unexpected state record: %+v", state)
	}

	var errRec exportRecord
	if err := json.Unmarshal([]byte(lines[2]), &errRec); err != nil {
		t.Fatalf("invalid JSON line: %v", err)
	}
	if errRec.Code == nil || *errRec.Code != 4001 {
		t.Errorf("expected code 4001, got %+v", errRec)
	}
}

func TestExportToCSV(t *testing.T) {
	path := createTestLogFile(t, exportEvents())
	outPath := filepath.Join(t.TempDir(), "out.csv")

	if err := RunExport(path, "csv", outPath); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(outPath)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(rows))
	}
	if rows[0][1] != "session_id" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	if rows[1][7] != "start" || rows[1][8] != "29" {
		t.Errorf("unexpected frame row: %v", rows[1])
	}
	if rows[2][9] != "CONNECTING" {
		t.Errorf("unexpected state row: %v", rows[2])
	}
	if rows[3][9] != "connection_error" {
		t.Errorf("unexpected error row: %v", rows[3])
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, exportEvents())
	if err := RunExport(path, "xml", filepath.Join(t.TempDir(), "out.xml")); err == nil {
		t.Error("expected error for unknown format")
	}
}
