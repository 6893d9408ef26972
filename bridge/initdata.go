package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

var (
	ErrEmptyInitData = errors.New("init data is empty")
	ErrUnsigned      = errors.New("init data carries no hash")
)

// User is the host account that launched the mini-app.
type User struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
}

// DisplayName prefers the full name and falls back to the username.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	if name == "" {
		name = u.Username
	}
	return name
}

// InitData is the decoded launch payload. Raw is what the backend verifies.
type InitData struct {
	Raw        string
	QueryID    string
	User       *User
	AuthDate   time.Time
	StartParam string
	Hash       string
}

// ParseInitData decodes the URL-encoded payload the host passes to the mini-app.
// The signature is not checked here; that is the backend's job.
func ParseInitData(raw string) (*InitData, error) {
	if raw == "" {
		return nil, ErrEmptyInitData
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse init data: %w", err)
	}

	data := &InitData{
		Raw:        raw,
		QueryID:    values.Get("query_id"),
		StartParam: values.Get("start_param"),
		Hash:       values.Get("hash"),
	}
	if data.Hash == "" {
		return nil, ErrUnsigned
	}

	if u := values.Get("user"); u != "" {
		var user User
		if err := json.Unmarshal([]byte(u), &user); err != nil {
			return nil, fmt.Errorf("failed to parse init data user: %w", err)
		}
		data.User = &user
	}

	if ts := values.Get("auth_date"); ts != "" {
		sec, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid auth_date %q: %w", ts, err)
		}
		data.AuthDate = time.Unix(sec, 0).UTC()
	}
	return data, nil
}
