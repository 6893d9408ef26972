package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/unihub/unihub/client"
)

const (
	LoginPath  = "/auth/login"
	LogoutPath = "/auth/logout"
)

var ErrMissingCredentials = errors.New("either a username and password or host init data is required")

// Credentials is what the login endpoint accepts: a password pair, or the
// signed payload handed over by the host chat app.
type Credentials struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	InitData string `json:"init_data,omitempty"`
}

func (c Credentials) validate() error {
	if c.InitData != "" {
		return nil
	}
	if c.Username == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}

// Login exchanges creds for an access token and saves it. The backend also
// sets the session cookie used later by the refresh endpoint; it lands in
// the client's cookie jar.
func (s *Service) Login(ctx context.Context, c *client.Client, creds Credentials) error {
	if err := creds.validate(); err != nil {
		return err
	}
	body, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode login request: %w", err)
	}

	resp, err := c.Do(ctx, &client.Request{
		Method: http.MethodPost,
		Path:   LoginPath,
		Body:   body,
		NoAuth: true,
	})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	token, err := client.ParseAccessToken(resp.Body)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	s.Save(ctx, token)
	method := "password"
	if creds.InitData != "" {
		method = "init_data"
	}
	log.Info().Str("method", method).Msg("Logged in")
	return nil
}

// Logout tells the backend to end the session and always forgets the local
// token, even when the backend cannot be reached.
func (s *Service) Logout(ctx context.Context, c *client.Client) error {
	token := s.Token(ctx)
	var err error
	if c != nil && token != "" {
		req := &client.Request{Method: http.MethodPost, Path: LogoutPath, NoAuth: true,
			Header: http.Header{"Authorization": []string{"Bearer " + token}}}
		if _, err = c.Do(ctx, req); err != nil {
			log.Warn().Err(err).Msg("Logout request failed, clearing local session anyway")
		}
	}
	s.Clear(ctx)
	return err
}
