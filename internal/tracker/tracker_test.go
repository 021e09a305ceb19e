package tracker

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/inovacc/labelr/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRepo = model.Repo{Owner: "octo", Name: "hello"}

func setupTestClient(t *testing.T, mux *http.ServeMux, cfg Config) *Client {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg.APIURL = srv.URL
	cfg.WebURL = srv.URL

	c, err := New(cfg)
	require.NoError(t, err)

	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func issuesHandler(t *testing.T, pages int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all", r.URL.Query().Get("state"))

		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			_, _ = fmt.Sscanf(p, "%d", &page)
		}

		if page < pages {
			next := *r.URL
			q := next.Query()
			q.Set("page", fmt.Sprint(page+1))
			next.RawQuery = q.Encode()
			w.Header().Set("Link", fmt.Sprintf(`<http://%s%s>; rel="next"`, r.Host, next.String()))
		}

		writeJSON(t, w, []map[string]any{
			{
				"number": page*10 + 1,
				"body":   fmt.Sprintf("issue on page %d", page),
				"labels": []map[string]any{{"id": 7, "name": "bug", "color": "d73a4a"}},
			},
			{
				"number":       page*10 + 2,
				"body":         "a pull request",
				"pull_request": map[string]any{"url": "https://example.com/pr"},
			},
		})
	}
}

func TestIssuesOf(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/hello/issues", issuesHandler(t, 3))

	c := setupTestClient(t, mux, Config{})

	issues, err := c.IssuesOf(context.Background(), testRepo, "")
	require.NoError(t, err)
	require.Len(t, issues, 6)

	assert.Equal(t, 11, issues[0].Number)
	assert.Equal(t, "issue on page 1", issues[0].Body)
	assert.False(t, issues[0].PullRequest)
	require.Len(t, issues[0].Labels, 1)
	assert.Equal(t, model.Label{ID: 7, Name: "bug", Color: "d73a4a"}, issues[0].Labels[0])

	assert.True(t, issues[1].PullRequest)
	assert.Equal(t, 31, issues[4].Number)
}

func TestIssuesOf_MaxPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/hello/issues", issuesHandler(t, 5))

	c := setupTestClient(t, mux, Config{MaxPages: 2})

	issues, err := c.IssuesOf(context.Background(), testRepo, "")
	require.NoError(t, err)
	assert.Len(t, issues, 4)
}

func TestIssuesOf_Token(t *testing.T) {
	tests := []struct {
		name  string
		pat   string
		token string
		want  string
	}{
		{name: "anonymous", want: ""},
		{name: "personal access token", pat: "ghp_pat", want: "Bearer ghp_pat"},
		{name: "explicit token wins", pat: "ghp_pat", token: "ghs_inst", want: "Bearer ghs_inst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string

			mux := http.NewServeMux()
			mux.HandleFunc("GET /repos/octo/hello/issues", func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get("Authorization")
				writeJSON(t, w, []any{})
			})

			c := setupTestClient(t, mux, Config{PersonalAccessToken: tt.pat})

			_, err := c.IssuesOf(context.Background(), testRepo, tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIssuesOf_NotFound(t *testing.T) {
	c := setupTestClient(t, http.NewServeMux(), Config{})

	_, err := c.IssuesOf(context.Background(), testRepo, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.False(t, model.IsRemote(err))
}

func TestExists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/hello", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"full_name": "octo/hello"})
	})
	mux.HandleFunc("GET /repos/octo/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	c := setupTestClient(t, mux, Config{})
	ctx := context.Background()

	ok, err := c.Exists(ctx, testRepo, "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Exists(ctx, model.Repo{Owner: "octo", Name: "missing"}, "")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Exists(ctx, model.Repo{Owner: "octo", Name: "broken"}, "")
	require.Error(t, err)
	assert.True(t, model.IsRemote(err))
}

func TestLabels(t *testing.T) {
	var (
		created model.Label
		deleted string
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/hello/labels", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, []map[string]any{
			{"id": 1, "name": "bug", "color": "d73a4a", "description": "Something is broken"},
			{"id": 2, "name": "feature", "color": "a2eeef"},
		})
	})
	mux.HandleFunc("POST /repos/octo/hello/labels", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		w.WriteHeader(http.StatusCreated)
		writeJSON(t, w, created)
	})
	mux.HandleFunc("DELETE /repos/octo/hello/labels/{name}", func(w http.ResponseWriter, r *http.Request) {
		deleted = r.PathValue("name")
		w.WriteHeader(http.StatusNoContent)
	})

	c := setupTestClient(t, mux, Config{})
	ctx := context.Background()

	labels, err := c.LabelsOf(ctx, testRepo, "tok")
	require.NoError(t, err)
	require.Len(t, labels, 2)
	assert.Equal(t, "Something is broken", labels[0].Description)

	require.NoError(t, c.AddLabel(ctx, testRepo, model.Label{Name: "question", Color: "d876e3"}, "tok"))
	assert.Equal(t, "question", created.Name)
	assert.Equal(t, "d876e3", created.Color)

	require.NoError(t, c.RemoveLabel(ctx, testRepo, "bug", "tok"))
	assert.Equal(t, "bug", deleted)
}

func TestReplaceIssueLabels(t *testing.T) {
	var got []string

	mux := http.NewServeMux()
	mux.HandleFunc("PUT /repos/octo/hello/issues/5/labels", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		writeJSON(t, w, []any{})
	})

	c := setupTestClient(t, mux, Config{})
	ctx := context.Background()

	require.NoError(t, c.ReplaceIssueLabels(ctx, testRepo, 5, []string{"bug"}, "tok"))
	assert.Equal(t, []string{"bug"}, got)

	err := c.ReplaceIssueLabels(ctx, testRepo, 6, []string{"bug"}, "tok")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func generateKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	return key, pemBytes
}

func TestInstallationToken(t *testing.T) {
	key, pemBytes := generateKey(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	checkJWT := func(r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return &key.PublicKey, nil
		}, jwt.WithTimeFunc(func() time.Time { return now }))
		require.NoError(t, err)
		assert.Equal(t, "123", claims.Issuer)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/hello/installation", func(w http.ResponseWriter, r *http.Request) {
		checkJWT(r)
		writeJSON(t, w, map[string]any{"id": 42})
	})
	mux.HandleFunc("POST /app/installations/42/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		checkJWT(r)
		w.WriteHeader(http.StatusCreated)
		writeJSON(t, w, map[string]any{"token": "ghs_installation"})
	})
	mux.HandleFunc("GET /app", func(w http.ResponseWriter, r *http.Request) {
		checkJWT(r)
		writeJSON(t, w, map[string]any{"html_url": "https://github.com/apps/labelr"})
	})

	c := setupTestClient(t, mux, Config{AppID: 123, PrivateKeyPEM: pemBytes})
	c.WithClock(func() time.Time { return now })

	ctx := context.Background()

	tok, err := c.InstallationToken(ctx, testRepo)
	require.NoError(t, err)
	assert.Equal(t, "ghs_installation", tok)

	ok, err := c.IsInstalled(ctx, testRepo)
	require.NoError(t, err)
	assert.True(t, ok)

	missing := model.Repo{Owner: "octo", Name: "other"}

	_, err = c.InstallationToken(ctx, missing)
	assert.ErrorIs(t, err, model.ErrNotInstalled)

	ok, err = c.IsInstalled(ctx, missing)
	require.NoError(t, err)
	assert.False(t, ok)

	page, err := c.AppPageURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/apps/labelr", page)
}

func TestInstallationToken_NoApp(t *testing.T) {
	c := setupTestClient(t, http.NewServeMux(), Config{})

	_, err := c.InstallationToken(context.Background(), testRepo)
	assert.ErrorIs(t, err, model.ErrNotInstalled)
}

func TestNew_InvalidKey(t *testing.T) {
	_, err := New(Config{AppID: 1, PrivateKeyPEM: []byte("not a key")})
	assert.Error(t, err)
}

func TestUserAndPermission(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_user" {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(t, w, map[string]any{"message": "Bad credentials"})

			return
		}

		writeJSON(t, w, map[string]any{"login": "alice"})
	})
	mux.HandleFunc("GET /repos/octo/hello/collaborators/alice/permission", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"permission": "write"})
	})

	c := setupTestClient(t, mux, Config{})
	ctx := context.Background()

	login, err := c.User(ctx, "gho_user")
	require.NoError(t, err)
	assert.Equal(t, "alice", login)

	_, err = c.User(ctx, "gho_revoked")
	require.Error(t, err)
	assert.True(t, model.IsRemote(err))

	perm, err := c.Permission(ctx, testRepo, "alice", "gho_user")
	require.NoError(t, err)
	assert.Equal(t, "write", perm)
}

func TestOAuth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.PostForm.Get("code"))

		writeJSON(t, w, map[string]any{"access_token": "gho_user", "token_type": "bearer"})
	})

	c := setupTestClient(t, mux, Config{ClientID: "client-id", ClientSecret: "secret"})

	raw := c.AuthorizeURL("state-123", "http://localhost:5000/auth")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/login/oauth/authorize", u.Path)
	assert.Equal(t, "client-id", u.Query().Get("client_id"))
	assert.Equal(t, "state-123", u.Query().Get("state"))
	assert.Equal(t, "http://localhost:5000/auth", u.Query().Get("redirect_uri"))

	tok, err := c.Exchange(context.Background(), "the-code", "http://localhost:5000/auth")
	require.NoError(t, err)
	assert.Equal(t, "gho_user", tok)

	assert.True(t, strings.HasSuffix(c.ManageURL(), "/settings/connections/applications/client-id"))
}
