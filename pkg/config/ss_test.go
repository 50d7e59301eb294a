package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const proxyURL = "ss://Y2hhY2hhMjAtaWV0Zi1wb2x5MTMwNTpzM2NyM3Q=@proxy.example.net:8443?prefix=GET%2520%252F"

func TestBuildURL(t *testing.T) {
	testCases := []struct {
		name     string
		config   SSConfig
		expected string
		wantErr  bool
	}{
		{
			name: "with prefix",
			config: SSConfig{
				Server:     "proxy.example.net",
				ServerPort: 8443,
				Method:     "chacha20-ietf-poly1305",
				Password:   "s3cr3t",
				Prefix:     "GET%20%2F",
			},
			expected: proxyURL,
		},
		{
			name: "without prefix",
			config: SSConfig{
				Server:     "10.1.2.3",
				ServerPort: 443,
				Method:     "aes-256-gcm",
				Password:   "pw",
			},
			expected: "ss://YWVzLTI1Ni1nY206cHc=@10.1.2.3:443",
		},
		{
			name:    "missing port",
			config:  SSConfig{Server: "proxy.example.net", Method: "aes-256-gcm"},
			wantErr: true,
		},
		{
			name:    "missing method",
			config:  SSConfig{Server: "proxy.example.net", ServerPort: 1},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.config.BuildURL()
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestParseSSConfig(t *testing.T) {
	jsonConfig := `{
		"server": "proxy.example.net",
		"server_port": 8443,
		"method": "chacha20-ietf-poly1305",
		"password": "s3cr3t",
		"prefix": "GET%20%2F"
	}`

	got, err := ParseSSConfig(jsonConfig)
	require.NoError(t, err)
	assert.Equal(t, proxyURL, got)

	_, err = ParseSSConfig("{")
	assert.Error(t, err)
}

func TestFetchSSConfig(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/url", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("  ss://direct@host:1\n"))
	})
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"server":"10.1.2.3","server_port":443,"method":"aes-256-gcm","password":"pw"}`))
	})
	srv := httptest.NewTLSServer(mux)
	defer srv.Close()
	ctx := context.Background()

	got, err := fetchSSConfig(ctx, srv.Client(), srv.URL+"/url")
	require.NoError(t, err)
	assert.Equal(t, "ss://direct@host:1", got)

	got, err = fetchSSConfig(ctx, srv.Client(), srv.URL+"/json")
	require.NoError(t, err)
	assert.Equal(t, "ss://YWVzLTI1Ni1nY206cHc=@10.1.2.3:443", got)

	_, err = fetchSSConfig(ctx, srv.Client(), srv.URL+"/missing")
	assert.Error(t, err)

	_, err = FetchSSConfig(ctx, "https://proxy.example.net/cfg")
	assert.Error(t, err)
}
