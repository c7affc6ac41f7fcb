package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// resolveAuthToken returns the bearer token to attach to outbound requests
// for cfg, running the OAuth authorization-code loopback flow when
// cfg.AuthMode is AuthOAuth. AuthNone returns an empty token.
func resolveAuthToken(ctx context.Context, cfg *ServerConfig) (string, error) {
	switch cfg.AuthMode {
	case "", AuthNone:
		return "", nil
	case AuthBearer:
		return cfg.BearerToken, nil
	case AuthOAuth:
		if cfg.OAuth == nil {
			return "", fmt.Errorf("oauth: server %s has auth_mode oauth but no oauth config", cfg.ID)
		}
		tok, err := runOAuthLoopback(ctx, cfg.OAuth)
		if err != nil {
			return "", fmt.Errorf("oauth: server %s: %w", cfg.ID, err)
		}
		return tok.AccessToken, nil
	default:
		return "", fmt.Errorf("oauth: unknown auth_mode %q", cfg.AuthMode)
	}
}

// runOAuthLoopback performs the standard OAuth 2.0 authorization-code
// flow against a local redirect listener, the approach browser-based MCP
// servers expect from a CLI/daemon client that cannot host a public
// callback URL. Binds to 127.0.0.1 on a port in [1024,65535]; 0 lets the
// kernel choose an ephemeral one.
func runOAuthLoopback(ctx context.Context, cfg *OAuthConfig) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.RedirectPort))
	if err != nil {
		return nil, fmt.Errorf("bind redirect listener: %w", err)
	}
	defer listener.Close()

	redirectURL := fmt.Sprintf("http://%s/callback", listener.Addr().String())
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}

	state := fmt.Sprintf("mcp-%d", time.Now().UnixNano())
	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline)

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("state"); got != state {
			errCh <- fmt.Errorf("oauth callback: state mismatch")
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		if errParam := r.URL.Query().Get("error"); errParam != "" {
			errCh <- fmt.Errorf("oauth callback: authorization server returned %q", errParam)
			http.Error(w, errParam, http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			errCh <- fmt.Errorf("oauth callback: missing code")
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, "authorization complete, you may close this window")
		codeCh <- code
	})

	srv := &http.Server{Handler: mux}
	go srv.Serve(listener)
	defer srv.Close()

	slog.Default().Info("open this URL to authorize MCP server access", "auth_url", authURL)

	select {
	case code := <-codeCh:
		return conf.Exchange(ctx, code)
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Minute):
		return nil, fmt.Errorf("oauth: timed out waiting for authorization callback")
	}
}
