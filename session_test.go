package foxbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
)

const serviceListing = `[{"id": "service:clock@link.mozilla.org", "adapter": "clock@link.mozilla.org"}]`

func containsMsg(msgs []string, msg string) bool {
	for _, m := range msgs {
		if m == msg {
			return true
		}
	}
	return false
}

func TestEnsureSessionCachedToken(t *testing.T) {
	cl := testClient(t, func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/users/login":
			t.Error("unexpected login for a valid cached token")
			w.WriteHeader(http.StatusUnauthorized)
		case "/api/v1/services":
			if auth := req.Header.Get("Authorization"); auth != "Bearer cached" {
				t.Errorf("unexpected authorization: %q", auth)
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, serviceListing)
		default:
			t.Errorf("unexpected path: %s", req.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	sess, err := cl.EnsureSession(context.Background(), Credentials{
		Username: "admin",
		Token:    "cached",
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if sess.Changed {
		t.Error("expected an unchanged token")
	}
	if sess.Token != "cached" {
		t.Errorf("expected cached token, got: %q", sess.Token)
	}
	if len(sess.Services) != 1 {
		t.Errorf("expected 1 service, got: %d", len(sess.Services))
	}
}

func TestEnsureSessionStaleToken(t *testing.T) {
	logins, prompts := 0, 0
	var msgs []string
	cl := testClient(t, func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/users/login":
			logins++
			if user, pass, ok := req.BasicAuth(); !ok || user != "admin" || pass != "hunter2" {
				t.Errorf("unexpected credentials: %q %q", user, pass)
			}
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"session_token": "fresh"}`)
		case "/api/v1/services":
			if req.Header.Get("Authorization") != "Bearer fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, serviceListing)
		default:
			t.Errorf("unexpected path: %s", req.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	sess, err := cl.EnsureSession(context.Background(), Credentials{
		Username: "admin",
		Token:    "stale",
		Prompt: func(username string) (string, error) {
			prompts++
			return "hunter2", nil
		},
		Logf: func(s string, v ...interface{}) {
			msgs = append(msgs, fmt.Sprintf(s, v...))
		},
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !sess.Changed || sess.Token != "fresh" {
		t.Errorf("expected a fresh token, got: %q (changed %t)", sess.Token, sess.Changed)
	}
	if logins != 1 {
		t.Errorf("expected 1 login, got: %d", logins)
	}
	if prompts != 1 {
		t.Errorf("expected 1 prompt, got: %d", prompts)
	}
	if !containsMsg(msgs, "Login failed") {
		t.Errorf("expected a login failure message, got: %v", msgs)
	}
	if cl.Token() != "fresh" {
		t.Errorf("expected the client to keep the fresh token, got: %q", cl.Token())
	}
}

func TestEnsureSessionRejectedPassword(t *testing.T) {
	logins, prompts := 0, 0
	var msgs []string
	passwords := []string{"wrong", "right"}
	cl := testClient(t, func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/users/login":
			logins++
			if _, pass, _ := req.BasicAuth(); pass != "right" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"session_token": "tok"}`)
		case "/api/v1/services":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, serviceListing)
		}
	})
	sess, err := cl.EnsureSession(context.Background(), Credentials{
		Username: "admin",
		Prompt: func(username string) (string, error) {
			p := passwords[prompts]
			prompts++
			return p, nil
		},
		Logf: func(s string, v ...interface{}) {
			msgs = append(msgs, fmt.Sprintf(s, v...))
		},
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !sess.Changed || sess.Token != "tok" {
		t.Errorf("expected a fresh token, got: %q (changed %t)", sess.Token, sess.Changed)
	}
	if logins != 2 || prompts != 2 {
		t.Errorf("expected 2 logins and 2 prompts, got: %d, %d", logins, prompts)
	}
	if !containsMsg(msgs, "Authentication failed") {
		t.Errorf("expected an authentication failure message, got: %v", msgs)
	}
}

func TestEnsureSessionPasswordSkipsCachedToken(t *testing.T) {
	var first string
	cl := testClient(t, func(w http.ResponseWriter, req *http.Request) {
		if first == "" {
			first = req.URL.Path
		}
		switch req.URL.Path {
		case "/users/login":
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"session_token": "fresh"}`)
		case "/api/v1/services":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, serviceListing)
		}
	})
	sess, err := cl.EnsureSession(context.Background(), Credentials{
		Username: "admin",
		Password: "hunter2",
		Token:    "cached",
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if first != "/users/login" {
		t.Errorf("expected the password to take precedence, first request was %s", first)
	}
	if !sess.Changed || sess.Token != "fresh" {
		t.Errorf("expected a fresh token, got: %q (changed %t)", sess.Token, sess.Changed)
	}
}

func TestEnsureSessionTokenInvalidatedAfterLogin(t *testing.T) {
	logins, prompts := 0, 0
	cl := testClient(t, func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/users/login":
			logins++
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"session_token": "t%d"}`, logins)
		case "/api/v1/services":
			// only the second issued token survives the restart
			if req.Header.Get("Authorization") != "Bearer t2" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, serviceListing)
		}
	})
	sess, err := cl.EnsureSession(context.Background(), Credentials{
		Username: "admin",
		Password: "hunter2",
		Prompt: func(username string) (string, error) {
			prompts++
			return "hunter2", nil
		},
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if sess.Token != "t2" || !sess.Changed {
		t.Errorf("expected t2, got: %q (changed %t)", sess.Token, sess.Changed)
	}
	if logins != 2 || prompts != 1 {
		t.Errorf("expected 2 logins and 1 prompt, got: %d, %d", logins, prompts)
	}
}

func TestEnsureSessionNoPassword(t *testing.T) {
	cl := testClient(t, func(w http.ResponseWriter, req *http.Request) {
		t.Errorf("unexpected request: %s %s", req.Method, req.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := cl.EnsureSession(context.Background(), Credentials{Username: "admin"})
	if !errors.Is(err, ErrPasswordRequired) {
		t.Errorf("expected ErrPasswordRequired, got: %v", err)
	}
}

func TestEnsureSessionPromptError(t *testing.T) {
	promptErr := errors.New("stdin closed")
	logins := 0
	cl := testClient(t, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/users/login" {
			logins++
		}
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := cl.EnsureSession(context.Background(), Credentials{
		Username: "admin",
		Prompt: func(username string) (string, error) {
			return "", promptErr
		},
	})
	if !errors.Is(err, promptErr) {
		t.Errorf("expected the prompt error, got: %v", err)
	}
	if logins != 0 {
		t.Errorf("expected no logins, got: %d", logins)
	}
}

func TestEnsureSessionUnreachable(t *testing.T) {
	cl := NewClient(WithURL("http://127.0.0.1:1/"))
	_, err := cl.EnsureSession(context.Background(), Credentials{
		Username: "admin",
		Password: "hunter2",
	})
	if err == nil || errors.Is(err, ErrAuthRejected) || errors.Is(err, ErrTokenRejected) {
		t.Errorf("expected a connection error, got: %v", err)
	}
}

func TestTokenCache(t *testing.T) {
	cache := TokenCache{Path: filepath.Join(t.TempDir(), "auth_token")}
	if tok := cache.Load(); tok != "" {
		t.Errorf("expected an empty token, got: %q", tok)
	}
	if err := cache.Save("abc123"); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if tok := cache.Load(); tok != "abc123" {
		t.Errorf("expected abc123, got: %q", tok)
	}
}

func TestDefaultTokenPath(t *testing.T) {
	if p := DefaultTokenPath("svc"); filepath.Base(p) != ".svc_auth_token" {
		t.Errorf("unexpected path: %q", p)
	}
}
