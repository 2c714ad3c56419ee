package stealth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/mailpilot/internal/config"
)

func TestPersonaFromConfig(t *testing.T) {
	t.Run("empty config keeps the defaults", func(t *testing.T) {
		p := PersonaFromConfig(config.BrowserConfig{})
		assert.Equal(t, DefaultPersona.UserAgent, p.UserAgent)
		assert.Equal(t, DefaultPersona.Headers, p.Headers)
	})

	t.Run("overrides are copied", func(t *testing.T) {
		headers := map[string]string{"Accept-Language": "de-DE"}
		p := PersonaFromConfig(config.BrowserConfig{UserAgent: "TestAgent/1.0", Headers: headers})
		assert.Equal(t, "TestAgent/1.0", p.UserAgent)
		assert.Equal(t, "de-DE", p.Headers["Accept-Language"])

		headers["Accept-Language"] = "fr-FR"
		assert.Equal(t, "de-DE", p.Headers["Accept-Language"], "persona must not alias the config map")
	})
}

func TestScript(t *testing.T) {
	p := Persona{Platform: "Test\"OS", Languages: []string{"xx-YY", "xx"}}
	script := p.Script()

	assert.NotContains(t, script, "__PLATFORM__")
	assert.NotContains(t, script, "__LANGUAGES__")
	assert.Contains(t, script, `'platform', "Test\"OS"`)
	assert.Contains(t, script, `["xx-YY","xx"]`)
	assert.Contains(t, script, "'webdriver', undefined")
}

func TestApply(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	tasks := Apply(DefaultPersona, zap.New(core))
	// user agent, script, network enable, headers
	assert.Len(t, tasks, 4)
	assert.Equal(t, 1, logs.FilterMessage("Applying browser stealth persona").Len())

	noHeaders := DefaultPersona
	noHeaders.Headers = nil
	assert.Len(t, Apply(noHeaders, zap.NewNop()), 2)
}
