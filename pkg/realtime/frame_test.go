package realtime

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"id":"a","type":"data","payload":{"data":{"x":1}}}`))
	require.NoError(t, err)
	assert.Equal(t, "a", f.ID)
	assert.Equal(t, TypeData, f.Type)
	assert.JSONEq(t, `{"data":{"x":1}}`, string(f.Payload))

	_, err = DecodeFrame([]byte(`{"id":"a"}`))
	assert.ErrorContains(t, err, "missing type")

	_, err = DecodeFrame([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestConnectionTimeout(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    time.Duration
	}{
		{"negotiated", `{"connectionTimeoutMs":30000}`, 30 * time.Second},
		{"absent payload", ``, DefaultConnectionTimeout},
		{"absent field", `{}`, DefaultConnectionTimeout},
		{"zero", `{"connectionTimeoutMs":0}`, DefaultConnectionTimeout},
		{"negative", `{"connectionTimeoutMs":-5}`, DefaultConnectionTimeout},
		{"wrong type", `{"connectionTimeoutMs":"soon"}`, DefaultConnectionTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, connectionTimeout(json.RawMessage(tt.payload)))
		})
	}
}

func TestEncodeStart(t *testing.T) {
	auth := map[string]string{"host": testHost, "x-api-key": "XYZ"}
	data, err := encodeStart("sub-1", Request{
		Query:         "subscription S($p: ID!) { onX(p: $p) { id } }",
		Variables:     map[string]any{"p": "p-1"},
		OperationName: "S",
	}, auth)
	require.NoError(t, err)

	f := decodeWrite(t, data)
	assert.Equal(t, "sub-1", f.ID)
	start := decodeStart(t, f)
	assert.Equal(t, "S", start.Request.OperationName)
	assert.Equal(t, map[string]any{"p": "p-1"}, start.Request.Variables)
	assert.Equal(t, auth, start.Authorization)

	// The request travels as a JSON string, not an object.
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(f.Payload, &raw))
	assert.Equal(t, byte('"'), raw["data"][0])

	// Omitted optional fields stay off the wire.
	data, err = encodeStart("sub-2", Request{Query: "subscription { a }"}, auth)
	require.NoError(t, err)
	var p startPayload
	require.NoError(t, json.Unmarshal(decodeWrite(t, data).Payload, &p))
	assert.JSONEq(t, `{"query":"subscription { a }"}`, p.Data)

	_, err = encodeStart("sub-3", Request{Query: "q", Variables: map[string]any{"bad": math.Inf(1)}}, auth)
	assert.Error(t, err)
}

func TestEncodeStopAndInit(t *testing.T) {
	assert.JSONEq(t, `{"id":"sub-1","type":"stop"}`, string(encodeStop("sub-1")))
	assert.JSONEq(t, `{"type":"connection_init"}`, string(connectionInitFrame))

	f, err := DecodeFrame(connectionInitFrame)
	require.NoError(t, err)
	assert.Empty(t, f.ID)
	assert.Nil(t, f.Payload)
}

func TestIsNull(t *testing.T) {
	assert.True(t, isNull(nil))
	assert.True(t, isNull(json.RawMessage("null")))
	assert.False(t, isNull(json.RawMessage(`{}`)))
	assert.False(t, isNull(json.RawMessage(`0`)))
}
