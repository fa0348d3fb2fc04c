package foxbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PasswordFunc supplies the password for username, typically by prompting
// interactively. It is called again each time the box rejects a login.
type PasswordFunc func(username string) (string, error)

// Credentials describe how a session can be established: an optional cached
// token, an optional password, and a prompt fallback used whenever a
// password is needed and none is available. Logf, when set, receives a
// progress message for every rejected login or token.
type Credentials struct {
	Username string
	Password string
	Token    string
	Prompt   PasswordFunc
	Logf     func(string, ...interface{})
}

// Session is an established session: a verified token and the service
// listing returned by the verifying call. Changed reports whether the token
// was freshly obtained, in which case the caller should persist it.
type Session struct {
	Token    string
	Changed  bool
	Services []Service
}

// EnsureSession obtains a verified session token for the box and leaves it
// set on the client.
//
// A cached token is tried first unless an explicit password was supplied.
// After that, login attempts alternate with prompts for as long as the box
// keeps rejecting the credentials; only success, an unreachable box, or a
// failing prompt end the loop. EnsureSession never touches the token cache
// file itself.
func (c *Client) EnsureSession(ctx context.Context, creds Credentials) (*Session, error) {
	logf := creds.Logf
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	password := creds.Password
	// verify the cached token with a real listing call
	if password == "" && creds.Token != "" {
		c.SetToken(creds.Token)
		services, err := c.Services(ctx)
		switch {
		case err == nil:
			return &Session{Token: creds.Token, Services: services}, nil
		case !errors.Is(err, ErrTokenRejected):
			return nil, err
		}
		logf("Login failed")
	}
	for {
		if password == "" {
			if creds.Prompt == nil {
				return nil, ErrPasswordRequired
			}
			p, err := creds.Prompt(creds.Username)
			if err != nil {
				return nil, fmt.Errorf("unable to read password: %w", err)
			}
			password = p
		}
		token, err := c.Login(ctx, creds.Username, password)
		switch {
		case errors.Is(err, ErrAuthRejected):
			logf("Authentication failed")
			password = ""
			continue
		case err != nil:
			return nil, err
		}
		// a box restart between login and first use invalidates the token
		c.SetToken(token)
		services, err := c.Services(ctx)
		switch {
		case err == nil:
			return &Session{Token: token, Changed: true, Services: services}, nil
		case errors.Is(err, ErrTokenRejected):
			logf("Login failed")
			password = ""
			c.SetToken("")
		default:
			return nil, err
		}
	}
}

// TokenCache loads and stores a session token at a fixed path.
type TokenCache struct {
	Path string
}

// DefaultTokenPath returns the conventional token cache path for the named
// tool, ~/.<tool>_auth_token.
func DefaultTokenPath(tool string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + tool + "_auth_token"
	}
	return filepath.Join(home, "."+tool+"_auth_token")
}

// Load reads the cached token. A missing or unreadable cache yields an
// empty token, never an error.
func (tc TokenCache) Load() string {
	buf, err := os.ReadFile(tc.Path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(buf))
}

// Save overwrites the cache with token. The file is user only, it holds a
// live credential.
func (tc TokenCache) Save(token string) error {
	return os.WriteFile(tc.Path, []byte(token+"\n"), 0600)
}
