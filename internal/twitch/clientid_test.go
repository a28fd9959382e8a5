package twitch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func env(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestResolveClientIDOrder(t *testing.T) {
	allSet := env(map[string]string{ClientIDEnv: "from-env"})

	id, source := resolveClientID("override", "bundled", allSet)
	assert.Equal(t, "override", id)
	assert.Equal(t, ClientIDFromOverride, source)

	id, source = resolveClientID("", "bundled\n", allSet)
	assert.Equal(t, "bundled", id)
	assert.Equal(t, ClientIDFromBundle, source)

	id, source = resolveClientID(" ", "", allSet)
	assert.Equal(t, "from-env", id)
	assert.Equal(t, ClientIDFromEnvironment, source)
}

func TestResolveClientIDMissing(t *testing.T) {
	for name, lookup := range map[string]func(string) (string, bool){
		"unset":   env(nil),
		"empty":   env(map[string]string{ClientIDEnv: "  "}),
		"nil env": nil,
	} {
		t.Run(name, func(t *testing.T) {
			id, source := resolveClientID("", "", lookup)
			assert.Empty(t, id)
			assert.Equal(t, ClientIDMissing, source)
		})
	}
}

func TestResolveClientIDUsesEnvironment(t *testing.T) {
	orig := lookupEnv
	t.Cleanup(func() { lookupEnv = orig })
	lookupEnv = env(map[string]string{ClientIDEnv: "env-id"})

	id, source := ResolveClientID("")
	if bundledClientID != "" {
		assert.Equal(t, ClientIDFromBundle, source)
		return
	}
	assert.Equal(t, "env-id", id)
	assert.Equal(t, ClientIDFromEnvironment, source)
}
