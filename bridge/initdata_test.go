package bridge_test

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unihub/unihub/bridge"
)

func TestParseInitData(t *testing.T) {
	v := url.Values{}
	v.Set("query_id", "AAE1")
	v.Set("user", `{"id":42,"first_name":"Ada","last_name":"Lovelace","username":"ada","language_code":"en"}`)
	v.Set("auth_date", "1700000000")
	v.Set("start_param", "schedule")
	v.Set("hash", "c0ffee")
	raw := v.Encode()

	data, err := bridge.ParseInitData(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, data.Raw)
	assert.Equal(t, "AAE1", data.QueryID)
	assert.Equal(t, "schedule", data.StartParam)
	assert.Equal(t, "c0ffee", data.Hash)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), data.AuthDate)
	require.NotNil(t, data.User)
	assert.Equal(t, int64(42), data.User.ID)
	assert.Equal(t, "Ada Lovelace", data.User.DisplayName())
}

func TestParseInitData_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"empty", "", bridge.ErrEmptyInitData},
		{"unsigned", "query_id=1", bridge.ErrUnsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bridge.ParseInitData(tt.raw)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := bridge.ParseInitData("hash=x&user=%7Bnot-json")
	assert.Error(t, err)

	_, err = bridge.ParseInitData("hash=x&auth_date=yesterday")
	assert.Error(t, err)
}

func TestUser_DisplayName(t *testing.T) {
	var nilUser *bridge.User
	assert.Empty(t, nilUser.DisplayName())
	assert.Equal(t, "ada", (&bridge.User{Username: "ada"}).DisplayName())
	assert.Equal(t, "Ada", (&bridge.User{FirstName: "Ada", Username: "ada"}).DisplayName())
}
