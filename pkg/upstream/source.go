// Package upstream fetches server lists and loads from the VPN API, or
// from files holding the same documents, and converts them to catalog
// records.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"server-catalog/pkg/fetch"
	"server-catalog/pkg/models"
)

// ErrNotModified is returned by Source.Logicals when the list is unchanged
// since the given cursor.
var ErrNotModified = errors.New("upstream: not modified")

// Logicals is a full server list together with its cursor.
type Logicals struct {
	Servers      []models.Server
	LastModified string
}

// Source provides server lists and loads.
type Source interface {
	// Logicals returns the server list, or ErrNotModified when cursor is
	// non-empty and nothing changed since.
	Logicals(ctx context.Context, cursor string) (*Logicals, error)
	Loads(ctx context.Context) ([]models.ServerLoad, error)
}

// Getter is satisfied by *fetch.Client.
type Getter interface {
	Get(ctx context.Context, req fetch.Request) (*fetch.Result, error)
}

// HTTPSource reads /vpn/logicals and /vpn/loads below a base URL.
type HTTPSource struct {
	client  Getter
	baseURL string
}

func NewHTTPSource(client Getter, baseURL string) *HTTPSource {
	return &HTTPSource{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *HTTPSource) Logicals(ctx context.Context, cursor string) (*Logicals, error) {
	res, err := s.client.Get(ctx, fetch.Request{URL: s.baseURL + "/vpn/logicals", IfModifiedSince: cursor})
	if err != nil {
		return nil, fmt.Errorf("fetch logicals: %w", err)
	}
	if res.NotModified() {
		return nil, ErrNotModified
	}
	resp, err := DecodeLogicals(res.Body)
	if err != nil {
		return nil, err
	}
	return &Logicals{Servers: resp.Servers(), LastModified: res.LastModified}, nil
}

func (s *HTTPSource) Loads(ctx context.Context) ([]models.ServerLoad, error) {
	res, err := s.client.Get(ctx, fetch.Request{URL: s.baseURL + "/vpn/loads"})
	if err != nil {
		return nil, fmt.Errorf("fetch loads: %w", err)
	}
	resp, err := DecodeLoads(res.Body)
	if err != nil {
		return nil, err
	}
	return resp.Loads(), nil
}

// FileSource reads the same documents from disk. The logicals cursor is
// the file's modification time. An empty LoadsPath yields no loads.
type FileSource struct {
	LogicalsPath string
	LoadsPath    string
}

func (s FileSource) Logicals(_ context.Context, cursor string) (*Logicals, error) {
	info, err := os.Stat(s.LogicalsPath)
	if err != nil {
		return nil, fmt.Errorf("read logicals: %w", err)
	}
	stamp := info.ModTime().UTC().Format(http.TimeFormat)
	if cursor != "" && cursor == stamp {
		return nil, ErrNotModified
	}
	body, err := os.ReadFile(s.LogicalsPath)
	if err != nil {
		return nil, fmt.Errorf("read logicals: %w", err)
	}
	resp, err := DecodeLogicals(body)
	if err != nil {
		return nil, err
	}
	return &Logicals{Servers: resp.Servers(), LastModified: stamp}, nil
}

func (s FileSource) Loads(context.Context) ([]models.ServerLoad, error) {
	if s.LoadsPath == "" {
		return nil, nil
	}
	body, err := os.ReadFile(s.LoadsPath)
	if err != nil {
		return nil, fmt.Errorf("read loads: %w", err)
	}
	resp, err := DecodeLoads(body)
	if err != nil {
		return nil, err
	}
	return resp.Loads(), nil
}
