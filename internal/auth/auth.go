// Package auth maps static bearer tokens to device identities. The token
// table is parsed once at startup from configuration and passed to the
// HTTP layer as an explicit, read-only value — there is no ambient global
// auth state.
package auth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBadTokenSpec is returned when the DEVICE_TOKENS value is malformed.
var ErrBadTokenSpec = errors.New("malformed device token spec")

// DeviceTokens is a read-only mapping from bearer token to the device
// identity bound to it.
type DeviceTokens map[string]string

// ParseDeviceTokens parses a "token:device_id[,token:device_id...]" spec.
// Tokens and device IDs must be non-empty; duplicate tokens are rejected
// because they would make the caller identity ambiguous.
func ParseDeviceTokens(spec string) (DeviceTokens, error) {
	out := make(DeviceTokens)
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, device, ok := strings.Cut(pair, ":")
		token = strings.TrimSpace(token)
		device = strings.TrimSpace(device)
		if !ok || token == "" || device == "" {
			return nil, fmt.Errorf("%w: %q (want token:device_id)", ErrBadTokenSpec, pair)
		}
		if _, dup := out[token]; dup {
			return nil, fmt.Errorf("%w: duplicate token", ErrBadTokenSpec)
		}
		out[token] = device
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no token pairs", ErrBadTokenSpec)
	}
	return out, nil
}

// Lookup resolves a bearer token to its device identity.
func (t DeviceTokens) Lookup(token string) (string, bool) {
	device, ok := t[token]
	return device, ok
}
