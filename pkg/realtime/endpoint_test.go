package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealtimeURL(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		wantURL  string
		wantHost string
		wantErr  error
	}{
		{
			name:     "managed host",
			endpoint: "https://abc.appsync-api.us-east-1.amazonaws.com/graphql",
			wantURL:  "wss://abc.appsync-realtime-api.us-east-1.amazonaws.com/graphql",
			wantHost: "abc.appsync-api.us-east-1.amazonaws.com",
		},
		{
			name:     "custom domain",
			endpoint: "https://api.underwrite.example/graphql",
			wantURL:  "wss://api.underwrite.example/graphql/realtime",
			wantHost: "api.underwrite.example",
		},
		{
			name:     "custom domain trailing slash",
			endpoint: "https://api.underwrite.example/graphql/",
			wantURL:  "wss://api.underwrite.example/graphql/realtime",
			wantHost: "api.underwrite.example",
		},
		{
			name:     "custom domain with port",
			endpoint: "https://localhost:8443/graphql",
			wantURL:  "wss://localhost:8443/graphql/realtime",
			wantHost: "localhost:8443",
		},
		{name: "http", endpoint: "http://abc.appsync-api.us-east-1.amazonaws.com/graphql", wantErr: ErrInsecureEndpoint},
		{name: "wss", endpoint: "wss://abc.appsync-realtime-api.us-east-1.amazonaws.com/graphql", wantErr: ErrInsecureEndpoint},
		{name: "no host", endpoint: "https:///graphql", wantErr: ErrInvalidEndpoint},
		{name: "garbage", endpoint: "://", wantErr: ErrInvalidEndpoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url, host, err := RealtimeURL(tt.endpoint)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, url)
			assert.Equal(t, tt.wantHost, host)
		})
	}
}
