// Package credentials resolves the workspace endpoint and access token used
// to authenticate against the platform API.
//
// Resolution order: explicit values, then GOSTRATUS_HOST/GOSTRATUS_TOKEN
// environment variables, then a netrc-format credential file. Nothing is
// cached between calls: each Resolve re-reads its sources, so a rotated
// token is picked up by the next invocation without process restart.
package credentials

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables consulted during resolution.
const (
	// EnvHost is the workspace URL, e.g. https://acme.cloud.example.com.
	EnvHost = "GOSTRATUS_HOST"

	// EnvToken is the personal access token.
	EnvToken = "GOSTRATUS_TOKEN"

	// EnvNetrc overrides the credential file location.
	EnvNetrc = "NETRC"
)

// netrcFileName is the credential file looked up under the home directory
// when no override is given.
const netrcFileName = ".netrc"

// ErrNoCredential indicates no usable endpoint/token pair could be resolved.
var ErrNoCredential = errors.New("no credential resolved")

// redactedToken replaces the token in every rendered form of a Credential.
const redactedToken = "[REDACTED]"

// Credential is an immutable endpoint + bearer token pair.
//
// The token is held in an unexported field so it stays out of JSON
// marshaling, and String/GoString redact it from fmt verbs. Callers that
// genuinely need the raw value (the HTTP transport) use Token.
type Credential struct {
	// Host is the normalized workspace URL, scheme included, no trailing slash.
	Host string

	token string
}

// New builds a Credential from a workspace host and token.
//
// The host is normalized: surrounding whitespace and trailing slashes are
// stripped, and a missing scheme defaults to https. An unusable host or an
// empty token resolves nothing, so both report ErrNoCredential.
func New(host, token string) (*Credential, error) {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		return nil, fmt.Errorf("empty workspace host: %w", ErrNoCredential)
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}

	u, err := url.Parse(host)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid workspace host %q: %w", host, ErrNoCredential)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q for workspace host: %w", u.Scheme, ErrNoCredential)
	}

	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("empty token for %s: %w", u.Host, ErrNoCredential)
	}

	return &Credential{Host: host, token: strings.TrimSpace(token)}, nil
}

// Token returns the raw access token.
func (c *Credential) Token() string {
	return c.token
}

// Hostname returns the host portion of the endpoint URL, without port.
func (c *Credential) Hostname() string {
	u, err := url.Parse(c.Host)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// String implements fmt.Stringer with the token redacted.
func (c Credential) String() string {
	return fmt.Sprintf("Credential{host: %s, token: %s}", c.Host, redactedToken)
}

// GoString redacts the token from %#v output.
func (c Credential) GoString() string {
	return c.String()
}

// ResolveOptions carries explicit overrides for Resolve. Zero values fall
// through to the next source in the resolution order.
type ResolveOptions struct {
	// Host is the workspace URL. Overrides GOSTRATUS_HOST.
	Host string

	// Token is the access token. Overrides GOSTRATUS_TOKEN.
	Token string

	// NetrcPath overrides the credential file location. When empty the
	// NETRC environment variable is consulted, then ~/.netrc.
	NetrcPath string
}

// Resolve produces a Credential from explicit options, environment
// variables, or a netrc-format credential file, in that order.
//
// The credential file is keyed by hostname, so an endpoint must already be
// known (explicitly or via environment) before the file is consulted. A
// missing file or missing machine entry resolves nothing and reports
// ErrNoCredential; a malformed file is a distinct *ParseError so corrupt
// files fail loudly instead of looking like absent credentials.
func Resolve(opts ResolveOptions) (*Credential, error) {
	host := firstNonEmpty(opts.Host, os.Getenv(EnvHost))
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("no workspace host configured (set --host or %s): %w", EnvHost, ErrNoCredential)
	}

	token := firstNonEmpty(opts.Token, os.Getenv(EnvToken))
	if strings.TrimSpace(token) != "" {
		return New(host, token)
	}

	hostname, err := hostnameOf(host)
	if err != nil {
		return nil, err
	}

	path := netrcPath(opts.NetrcPath)
	entry, err := lookupMachine(path, hostname)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no token configured and no credential file at %s: %w", path, ErrNoCredential)
		}
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("no entry for %s in %s: %w", hostname, path, ErrNoCredential)
	}
	if entry.Password == "" {
		return nil, fmt.Errorf("entry for %s in %s has no password: %w", hostname, path, ErrNoCredential)
	}

	return New(host, entry.Password)
}

// netrcPath picks the credential file location: explicit override, NETRC
// environment variable, then ~/.netrc.
func netrcPath(override string) string {
	if override != "" {
		return override
	}
	if p := os.Getenv(EnvNetrc); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return netrcFileName
	}
	return filepath.Join(home, netrcFileName)
}

// hostnameOf extracts the port-free hostname used to key machine entries.
func hostnameOf(host string) (string, error) {
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	u, err := url.Parse(host)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("invalid workspace host %q: %w", host, ErrNoCredential)
	}
	return u.Hostname(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
