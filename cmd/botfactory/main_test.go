package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const salonSpec = `
version: "2"
flows:
  - entry_cmd: /book
    type: wizard
    steps:
      - ask: Which service?
        var: service
        validate:
          regex: ^(massage|spa)$
      - ask: When?
        var: slot
    on_complete:
      - action.reply_template.v1:
          text: "Booked {{service}}"
  - entry_cmd: /hours
    on_enter:
      - action.reply_template.v1:
          text: "9 to 18"
`

const brokenSpec = `
flows:
  - entry_cmd: book
    steps:
      - ask: ""
        var: x
        validate:
          regex: "("
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func specsDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "botfactory version dev\n", out)
}

func TestValidate(t *testing.T) {
	dir := specsDir(t, map[string]string{"salon.yaml": salonSpec})
	out, err := execute(t, "validate", "--specs", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "1 spec(s) valid!")
}

func TestValidate_Invalid(t *testing.T) {
	dir := specsDir(t, map[string]string{"salon.yaml": salonSpec, "broken.yaml": brokenSpec})
	out, err := execute(t, "validate", "--specs", dir)
	assert.ErrorIs(t, err, errInvalidSpecs)
	assert.Contains(t, out, "flows[0].entry_cmd")
	assert.Contains(t, out, "flows[0].steps[0].validate.regex")
	assert.NotContains(t, out, "valid!")
}

func TestFlows(t *testing.T) {
	dir := specsDir(t, map[string]string{"salon.yaml": salonSpec})

	out, err := execute(t, "flows", "salon", "--specs", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "salon (version 2)")
	assert.Contains(t, out, "/book")
	assert.Contains(t, out, "wizard")
	assert.Contains(t, out, "generic")

	out, err = execute(t, "flows", "salon", "--specs", dir, "--mermaid")
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, `f0_entry(("/book"))`)
}

func TestFlows_UnknownBot(t *testing.T) {
	dir := specsDir(t, nil)
	_, err := execute(t, "flows", "ghost", "--specs", dir, "--mermaid=false")
	assert.Error(t, err)
}

func TestI18nSet(t *testing.T) {
	db := filepath.Join(t.TempDir(), "bots.db")
	out, err := execute(t, "i18n", "set", "salon", "pt", "greeting", "Olá", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "Saved salon/pt/greeting\n", out)
}
