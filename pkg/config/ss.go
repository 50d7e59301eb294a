package config

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// SSConfig is a Shadowsocks server the upstream API is reached through
type SSConfig struct {
	Server     string `json:"server" mapstructure:"server"`
	ServerPort int    `json:"server_port" mapstructure:"server_port"`
	Method     string `json:"method" mapstructure:"method"`
	Password   string `json:"password" mapstructure:"password"`
	Prefix     string `json:"prefix" mapstructure:"prefix"`
}

// BuildURL converts the SSConfig into an outline ss:// transport URL
func (c *SSConfig) BuildURL() (string, error) {
	if c.Server == "" || c.ServerPort == 0 {
		return "", fmt.Errorf("shadowsocks config needs server and server_port")
	}
	if c.Method == "" {
		return "", fmt.Errorf("shadowsocks config needs a method")
	}

	// Userinfo is base64("method:password")
	userInfo := base64.URLEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%s", c.Method, c.Password)))

	u := &url.URL{
		Scheme: "ss",
		User:   url.User(userInfo),
		Host:   fmt.Sprintf("%s:%d", c.Server, c.ServerPort),
	}

	if c.Prefix != "" {
		q := url.Values{}
		q.Add("prefix", c.Prefix)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// ParseSSConfig parses a JSON document into an SSConfig and returns the URL
func ParseSSConfig(jsonConfig string) (string, error) {
	var config SSConfig
	if err := json.Unmarshal([]byte(jsonConfig), &config); err != nil {
		return "", fmt.Errorf("failed to parse JSON config: %w", err)
	}

	return config.BuildURL()
}

// FetchSSConfig fetches ssconfig://host/path over HTTPS. The body may be
// an ss:// URL or a JSON SSConfig.
func FetchSSConfig(ctx context.Context, configURL string) (string, error) {
	u, err := url.Parse(configURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}
	if u.Scheme != "ssconfig" {
		return "", fmt.Errorf("invalid URL scheme: must be ssconfig://")
	}
	u.Scheme = "https"

	return fetchSSConfig(ctx, http.DefaultClient, u.String())
}

func fetchSSConfig(ctx context.Context, client *http.Client, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch config: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	content := strings.TrimSpace(string(body))
	if strings.HasPrefix(content, "ss://") {
		return content, nil
	}

	return ParseSSConfig(content)
}
