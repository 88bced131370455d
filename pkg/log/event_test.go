package log

import (
	"bytes"
	"testing"
)

func TestDirectionString(t *testing.T) {
	tests := []struct {
		dir  Direction
		want string
	}{
		{DirectionNone, "-"},
		{DirectionIn, "IN"},
		{DirectionOut, "OUT"},
		{Direction(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.dir.String(); got != tt.want {
			t.Errorf("Direction(%d).String() = %q, want %q", tt.dir, got, tt.want)
		}
	}
}

func TestLayerString(t *testing.T) {
	tests := []struct {
		layer Layer
		want  string
	}{
		{LayerSocket, "SOCKET"},
		{LayerProtocol, "PROTOCOL"},
		{LayerSubscription, "SUBSCRIPTION"},
		{Layer(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.layer.String(); got != tt.want {
			t.Errorf("Layer(%d).String() = %q, want %q", tt.layer, got, tt.want)
		}
	}
}

func TestCategoryString(t *testing.T) {
	tests := []struct {
		cat  Category
		want string
	}{
		{CategoryFrame, "FRAME"},
		{CategoryState, "STATE"},
		{CategoryError, "ERROR"},
		{Category(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.cat.String(); got != tt.want {
			t.Errorf("Category(%d).String() = %q, want %q", tt.cat, got, tt.want)
		}
	}
}

func TestStateEntityString(t *testing.T) {
	tests := []struct {
		entity StateEntity
		want   string
	}{
		{StateEntitySocket, "SOCKET"},
		{StateEntitySession, "SESSION"},
		{StateEntitySubscription, "SUBSCRIPTION"},
		{StateEntity(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.entity.String(); got != tt.want {
			t.Errorf("StateEntity(%d).String() = %q, want %q", tt.entity, got, tt.want)
		}
	}
}

func TestNewFrameEventCopiesData(t *testing.T) {
	data := []byte(`{"type":"ka"}`)
	fe := NewFrameEvent("ka", data)

	if fe.Size != len(data) {
		t.Errorf("Size = %d, want %d", fe.Size, len(data))
	}
	if fe.Truncated {
		t.Error("small frame should not be truncated")
	}

	data[2] = 'X'
	if bytes.Equal(fe.Data, data) {
		t.Error("FrameEvent must not alias the caller's buffer")
	}
}

func TestNewFrameEventTruncates(t *testing.T) {
	data := bytes.Repeat([]byte("a"), MaxFrameData+10)
	fe := NewFrameEvent("data", data)

	if fe.Size != MaxFrameData+10 {
		t.Errorf("Size = %d, want %d", fe.Size, MaxFrameData+10)
	}
	if len(fe.Data) != MaxFrameData {
		t.Errorf("len(Data) = %d, want %d", len(fe.Data), MaxFrameData)
	}
	if !fe.Truncated {
		t.Error("expected Truncated")
	}
}

func TestNewFrameEventEmpty(t *testing.T) {
	fe := NewFrameEvent("", nil)
	if fe.Data != nil || fe.Size != 0 {
		t.Errorf("empty frame: got %+v", fe)
	}
}
