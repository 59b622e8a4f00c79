package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"foodietrack/backend/go/internal/config"
	httpclient "foodietrack/backend/go/pkg/http"
)

// apiClient 为所有子命令拼接地址和鉴权头。
type apiClient struct {
	base  string
	token string
	http  *httpclient.Client
}

func newAPIClient(flags *globalFlags) (*apiClient, error) {
	if flags.token == "" {
		return nil, fmt.Errorf("missing token: pass --token or set FOODIETRACK_TOKEN")
	}
	return &apiClient{
		base:  strings.TrimSuffix(flags.server, "/"),
		token: flags.token,
		http:  httpclient.NewClient("foodietrack", config.CircuitBreakerConfig{}),
	}, nil
}

func (c *apiClient) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.token)
	return h
}

func (c *apiClient) call(ctx context.Context, method, path string, body, out interface{}) error {
	return c.http.DoJSON(ctx, method, c.base+path, c.header(), body, out)
}

// upload 发送一个已经构造好的 multipart 请求体。
func (c *apiClient) upload(ctx context.Context, path, contentType string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header = c.header()
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	return c.http.DoRequest(req, out)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
