// SPDX-License-Identifier: AGPL-3.0-or-later

// Package credentials resolves object-store credentials either from the
// environment or from a named profile section of a config file, the way
// the cluster and parallel backends need them before any object-store
// asset can be touched. Grounded on the teacher's digitalocean provider,
// which resolves its API token from a single named environment variable
// (TokenEnv); this package generalizes that to a profile-file fallback.
package credentials

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ErrMissingCredentials is returned when neither the environment nor the
// profile file name the required credential. Per spec.md §4.2, this check
// is immediate-raise, not accumulated with other validation errors: the
// validator cannot finish its remaining checks without it.
var ErrMissingCredentials = fmt.Errorf("missing object-store credentials")

// Credentials holds the resolved access key pair and default region.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// Resolver resolves Credentials for a named profile, preferring
// environment variables for the default profile and a config-file
// section for any other.
type Resolver struct {
	// Getenv is overridable for testing; defaults to os.Getenv.
	Getenv func(string) string
	// ConfigPath is the profile file to consult when profile != "default" or
	// the environment variables are unset. Empty disables the file lookup.
	ConfigPath string
}

// NewResolver creates a Resolver reading from the real environment and,
// optionally, a profile config file at configPath.
func NewResolver(configPath string) *Resolver {
	return &Resolver{Getenv: os.Getenv, ConfigPath: configPath}
}

// Resolve returns Credentials for the named profile ("" or "default"
// means the environment-variable profile). It wraps ErrMissingCredentials
// with guidance on the missing piece when resolution fails.
func (r *Resolver) Resolve(profile string) (Credentials, error) {
	if profile == "" || profile == "default" {
		creds, ok := r.fromEnv()
		if ok {
			return creds, nil
		}
		if r.ConfigPath == "" {
			return Credentials{}, fmt.Errorf(
				"%w: set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY, or pass --profile with a config file",
				ErrMissingCredentials)
		}
	}

	if r.ConfigPath == "" {
		return Credentials{}, fmt.Errorf("%w: no --profile config file configured", ErrMissingCredentials)
	}

	creds, err := r.fromProfileFile(profile)
	if err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

func (r *Resolver) fromEnv() (Credentials, bool) {
	accessKey := r.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := r.Getenv("AWS_SECRET_ACCESS_KEY")
	if accessKey == "" || secretKey == "" {
		return Credentials{}, false
	}
	return Credentials{
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		Region:          r.Getenv("AWS_DEFAULT_REGION"),
	}, true
}

// fromProfileFile reads an INI-style config file with sections named
// "[profile]" and key = value pairs aws_access_key_id / aws_secret_access_key
// / region, the shape the AWS CLI's own credentials file uses.
func (r *Resolver) fromProfileFile(profile string) (Credentials, error) {
	if profile == "" {
		profile = "default"
	}

	f, err := os.Open(r.ConfigPath) //nolint:gosec // ConfigPath is operator-supplied, not request input
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: reading profile config %q: %v", ErrMissingCredentials, r.ConfigPath, err)
	}
	defer f.Close()

	section := ""
	values := map[string]string{}
	found := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if found {
				break
			}
			section = strings.Trim(line, "[]")
			if section == profile {
				found = true
			}
			continue
		}
		if section != profile {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		values[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	if !found {
		return Credentials{}, fmt.Errorf("%w: profile %q not found in %s", ErrMissingCredentials, profile, r.ConfigPath)
	}

	accessKey, secretKey := values["aws_access_key_id"], values["aws_secret_access_key"]
	if accessKey == "" || secretKey == "" {
		return Credentials{}, fmt.Errorf("%w: profile %q in %s is missing access key or secret key", ErrMissingCredentials, profile, r.ConfigPath)
	}

	return Credentials{
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		Region:          values["region"],
	}, nil
}
