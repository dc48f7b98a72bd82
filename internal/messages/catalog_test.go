package messages

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.Equal(t, []string{"org_creation", "views"}, c.Groups())
	require.Contains(t, c.Keys("org_creation"), "error_org_policy")

	msg, err := c.Render("org_creation", "error_org_already_exists_message", map[string]any{
		"new_org_name": "eng-payments",
	})
	require.NoError(t, err)
	require.Equal(t, "An organisation called *eng-payments* already exists in Snyk.", msg)
}

func TestRender_unknown(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	_, err = c.Render("org_creation", "nope", nil)
	require.ErrorIs(t, err, ErrUnknownMessage)

	_, err = c.Render("nope", "message_cancelled", nil)
	require.ErrorIs(t, err, ErrUnknownMessage)
}

func TestRender_missingParam(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	_, err = c.Render("org_creation", "message_tell_admins_existing_org", nil)
	require.Error(t, err)

	_, err = c.Render("org_creation", "message_tell_admins_existing_org", map[string]any{"other": 1})
	require.Error(t, err)
}

func TestLoad_overrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "org_creation.yaml"),
		[]byte("message_cancelled: Cancelled {{ .who }}\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.yaml"),
		[]byte("hello: hi\n"), 0o600))

	c, err := Load(dir)
	require.NoError(t, err)

	msg, err := c.Render("org_creation", "message_cancelled", map[string]any{"who": "bob"})
	require.NoError(t, err)
	require.Equal(t, "Cancelled bob", msg)

	// untouched defaults survive the override
	_, err = c.Render("org_creation", "error_org_create", nil)
	require.NoError(t, err)

	msg, err = c.Render("extra", "hello", nil)
	require.NoError(t, err)
	require.Equal(t, "hi", msg)
}

func TestLoad_badTemplate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"),
		[]byte("oops: \"{{ .x \"\n"), 0o600))

	_, err := Load(dir)
	require.Error(t, err)
}
