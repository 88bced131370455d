package realtime

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

type authMode uint8

const (
	authNone authMode = iota
	authAPIKey
	authBearer
)

// Auth describes the credential attached to the connection handshake and to
// every start frame. The zero value carries no credentials.
type Auth struct {
	mode   authMode
	apiKey string
	token  func() string
}

// APIKey authenticates with an API key (x-api-key).
func APIKey(key string) Auth {
	return Auth{mode: authAPIKey, apiKey: key}
}

// Bearer authenticates with a fixed identity token (Authorization).
func Bearer(token string) Auth {
	return BearerFunc(func() string { return token })
}

// BearerFunc authenticates with a token that is looked up every time a
// header is built, so refreshed tokens are picked up on reconnect and on
// every new subscription.
func BearerFunc(fn func() string) Auth {
	return Auth{mode: authBearer, token: fn}
}

// IsZero reports whether a carries no credentials.
func (a Auth) IsZero() bool {
	return a.mode == authNone
}

// Mode returns "apiKey", "bearer" or "none".
func (a Auth) Mode() string {
	switch a.mode {
	case authAPIKey:
		return "apiKey"
	case authBearer:
		return "bearer"
	default:
		return "none"
	}
}

// Header returns the authorization header object for host.
func (a Auth) Header(host string) map[string]string {
	h := map[string]string{"host": host}
	switch a.mode {
	case authAPIKey:
		h["x-api-key"] = a.apiKey
	case authBearer:
		if a.token != nil {
			h["Authorization"] = a.token()
		}
	}
	return h
}

// HeaderProtocol encodes a header object as a "header-<base64url>"
// subprotocol token.
func HeaderProtocol(header map[string]string) (string, error) {
	data, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("encode auth header: %w", err)
	}
	return headerProtocolPrefix + base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeHeaderProtocol reverses HeaderProtocol.
func DecodeHeaderProtocol(protocol string) (map[string]string, error) {
	if len(protocol) <= len(headerProtocolPrefix) || protocol[:len(headerProtocolPrefix)] != headerProtocolPrefix {
		return nil, fmt.Errorf("not a header protocol: %q", protocol)
	}
	data, err := base64.RawURLEncoding.DecodeString(protocol[len(headerProtocolPrefix):])
	if err != nil {
		return nil, fmt.Errorf("decode auth header: %w", err)
	}
	var header map[string]string
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("decode auth header: %w", err)
	}
	return header, nil
}
