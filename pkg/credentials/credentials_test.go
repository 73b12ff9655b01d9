// SPDX-License-Identifier: AGPL-3.0-or-later

package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeGetenv(values map[string]string) func(string) string {
	return func(k string) string { return values[k] }
}

func TestResolve_FromEnv(t *testing.T) {
	r := &Resolver{Getenv: fakeGetenv(map[string]string{
		"AWS_ACCESS_KEY_ID":     "AKIA123",
		"AWS_SECRET_ACCESS_KEY": "secret",
		"AWS_DEFAULT_REGION":    "us-east-1",
	})}

	creds, err := r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "AKIA123", creds.AccessKeyID)
	assert.Equal(t, "us-east-1", creds.Region)
}

func TestResolve_MissingEnvNoProfileFile(t *testing.T) {
	r := &Resolver{Getenv: fakeGetenv(nil)}
	_, err := r.Resolve("default")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingCredentials))
}

func TestResolve_FromProfileFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")
	content := "[default]\naws_access_key_id = envkey\naws_secret_access_key = envsecret\n\n" +
		"[research]\naws_access_key_id = AKIAPROFILE\naws_secret_access_key = profilesecret\nregion = eu-west-1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	r := &Resolver{Getenv: fakeGetenv(nil), ConfigPath: path}

	creds, err := r.Resolve("research")
	require.NoError(t, err)
	assert.Equal(t, "AKIAPROFILE", creds.AccessKeyID)
	assert.Equal(t, "eu-west-1", creds.Region)
}

func TestResolve_ProfileNotFound(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")
	require.NoError(t, os.WriteFile(path, []byte("[default]\naws_access_key_id=a\naws_secret_access_key=b\n"), 0o600))

	r := &Resolver{Getenv: fakeGetenv(nil), ConfigPath: path}
	_, err := r.Resolve("ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingCredentials))
}
