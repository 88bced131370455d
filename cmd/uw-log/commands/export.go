package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/underwrite-ai/underwrite-go/pkg/log"
)

// RunExport exports the capture file to the specified format.
func RunExport(path, format, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

// exportRecord is the JSON shape of one exported event. Frame data is
// emitted as text since captured frames are JSON.
type exportRecord struct {
	Timestamp      string `json:"timestamp"`
	SessionID      string `json:"sessionId"`
	Generation     uint32 `json:"generation,omitempty"`
	Direction      string `json:"direction"`
	Layer          string `json:"layer"`
	Category       string `json:"category"`
	Endpoint       string `json:"endpoint,omitempty"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	Type           string `json:"type"`

	Size      int    `json:"size,omitempty"`
	Data      string `json:"data,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`

	Entity   string `json:"entity,omitempty"`
	OldState string `json:"oldState,omitempty"`
	NewState string `json:"newState,omitempty"`
	Reason   string `json:"reason,omitempty"`

	Message string `json:"message,omitempty"`
	Code    *int   `json:"code,omitempty"`
	Context string `json:"context,omitempty"`
}

func newExportRecord(event log.Event) exportRecord {
	rec := exportRecord{
		Timestamp:      event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		SessionID:      event.SessionID,
		Generation:     event.Generation,
		Direction:      event.Direction.String(),
		Layer:          event.Layer.String(),
		Category:       event.Category.String(),
		Endpoint:       event.Endpoint,
		SubscriptionID: event.SubscriptionID,
		Type:           typeLabel(event),
	}
	switch {
	case event.Frame != nil:
		rec.Size = event.Frame.Size
		rec.Data = string(event.Frame.Data)
		rec.Truncated = event.Frame.Truncated
	case event.StateChange != nil:
		rec.Entity = event.StateChange.Entity.String()
		rec.OldState = event.StateChange.OldState
		rec.NewState = event.StateChange.NewState
		rec.Reason = event.StateChange.Reason
	case event.Error != nil:
		rec.Message = event.Error.Message
		rec.Code = event.Error.Code
		rec.Context = event.Error.Context
	}
	return rec
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(newExportRecord(event)); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "session_id", "generation", "direction", "layer", "category", "subscription_id", "type", "size", "detail"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		rec := newExportRecord(event)
		size, detail := "", ""
		switch {
		case event.Frame != nil:
			size = strconv.Itoa(rec.Size)
		case event.StateChange != nil:
			detail = rec.NewState
		case event.Error != nil:
			detail = rec.Message
		}

		row := []string{
			rec.Timestamp,
			rec.SessionID,
			strconv.FormatUint(uint64(rec.Generation), 10),
			rec.Direction,
			rec.Layer,
			rec.Category,
			rec.SubscriptionID,
			rec.Type,
			size,
			detail,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}
