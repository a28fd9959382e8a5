package twitch

import (
	_ "embed"
	"os"
	"strings"
)

// ClientIDEnv names the environment variable consulted last.
const ClientIDEnv = "TWITCH_CLIENT_ID"

type ClientIDSource string

const (
	ClientIDFromOverride    ClientIDSource = "override"
	ClientIDFromBundle      ClientIDSource = "bundled"
	ClientIDFromEnvironment ClientIDSource = "environment"
	ClientIDMissing         ClientIDSource = "missing"
)

// bundledClientID is filled in at packaging time; an empty file means no
// bundled identifier.
//
//go:embed resources/client_id
var bundledClientID string

var lookupEnv = os.LookupEnv

// ResolveClientID picks the client ID from, in order, an explicit override,
// the bundled resource and the environment.
func ResolveClientID(override string) (string, ClientIDSource) {
	return resolveClientID(override, bundledClientID, lookupEnv)
}

func resolveClientID(override, bundled string, env func(string) (string, bool)) (string, ClientIDSource) {
	if id := strings.TrimSpace(override); id != "" {
		return id, ClientIDFromOverride
	}
	if id := strings.TrimSpace(bundled); id != "" {
		return id, ClientIDFromBundle
	}
	if env != nil {
		if id, ok := env(ClientIDEnv); ok && strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id), ClientIDFromEnvironment
		}
	}
	return "", ClientIDMissing
}
