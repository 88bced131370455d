package realtime

import (
	"fmt"
	"net/url"
	"strings"
)

// RealtimeURL derives the WebSocket endpoint from an https GraphQL endpoint.
// Managed hostnames swap "appsync-api" for "appsync-realtime-api"; custom
// domains get "/realtime" appended to the path. host is the original HTTP
// host, used in authorization headers.
func RealtimeURL(endpoint string) (realtimeURL, host string, err error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "https" {
		return "", "", fmt.Errorf("%w: %q", ErrInsecureEndpoint, endpoint)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("%w: missing host in %q", ErrInvalidEndpoint, endpoint)
	}

	host = u.Host
	rt := url.URL{Scheme: "wss", Host: u.Host, Path: u.Path}
	if strings.Contains(u.Hostname(), "appsync-api") {
		rt.Host = strings.Replace(u.Host, "appsync-api", "appsync-realtime-api", 1)
	} else {
		rt.Path = strings.TrimSuffix(u.Path, "/") + "/realtime"
	}
	return rt.String(), host, nil
}
