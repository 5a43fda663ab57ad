package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RemoteProvider creates sandboxes on a code-interpreter service speaking
// JSON over HTTP:
//
//	POST   /sandboxes                    {"timeout_seconds": n} -> {"id": "..."}
//	POST   /sandboxes/{id}/execute       {"code": "..."}        -> executeResponse
//	PUT    /sandboxes/{id}/files/{name}  raw bytes
//	DELETE /sandboxes/{id}
//
// Requests carry the API key in the X-API-Key header.
type RemoteProvider struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewRemoteProvider creates a provider for the service at baseURL.
func NewRemoteProvider(baseURL, apiKey string) *RemoteProvider {
	return &RemoteProvider{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

type createRequest struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

type createResponse struct {
	ID string `json:"id"`
}

type executeRequest struct {
	Code string `json:"code"`
}

type executeResponse struct {
	Logs    Logs            `json:"logs"`
	Error   *ExecutionError `json:"error"`
	Results []struct {
		PNG  string `json:"png"`
		JPEG string `json:"jpeg"`
	} `json:"results"`
}

// Create starts a sandbox. timeout bounds the creation request.
func (p *RemoteProvider) Create(ctx context.Context, timeout time.Duration) (Executor, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var resp createResponse
	req := createRequest{TimeoutSeconds: int(timeout / time.Second)}
	if err := p.doJSON(ctx, http.MethodPost, "/sandboxes", req, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("sandbox service returned no sandbox id")
	}
	return &remoteExecutor{provider: p, id: resp.ID}, nil
}

func (p *RemoteProvider) client() *http.Client {
	if p.HTTPClient == nil {
		return http.DefaultClient
	}
	return p.HTTPClient
}

func (p *RemoteProvider) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if p.APIKey != "" {
		req.Header.Set("X-API-Key", p.APIKey)
	}

	resp, err := p.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("sandbox request %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("sandbox was not found: %s %s: %s", method, path, strings.TrimSpace(string(msg)))
		}
		return nil, fmt.Errorf("sandbox request %s %s: status %d: %s",
			method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

func (p *RemoteProvider) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := p.do(ctx, method, path, body, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode sandbox response: %w", err)
	}
	return nil
}

type remoteExecutor struct {
	provider *RemoteProvider
	id       string
}

func (e *remoteExecutor) ID() string { return e.id }

func (e *remoteExecutor) Run(ctx context.Context, code string) (*Execution, error) {
	var resp executeResponse
	path := "/sandboxes/" + url.PathEscape(e.id) + "/execute"
	if err := e.provider.doJSON(ctx, http.MethodPost, path, executeRequest{Code: code}, &resp); err != nil {
		return nil, err
	}

	exec := &Execution{Logs: resp.Logs, Error: resp.Error}
	for _, r := range resp.Results {
		switch {
		case r.PNG != "":
			exec.Artifacts = append(exec.Artifacts, Artifact{Format: FormatPNG, Data: r.PNG})
		case r.JPEG != "":
			exec.Artifacts = append(exec.Artifacts, Artifact{Format: FormatJPEG, Data: r.JPEG})
		default:
			exec.Artifacts = append(exec.Artifacts, Artifact{Format: FormatOther})
		}
	}
	return exec, nil
}

func (e *remoteExecutor) Upload(ctx context.Context, name string, data []byte) error {
	path := "/sandboxes/" + url.PathEscape(e.id) + "/files/" + url.PathEscape(name)
	resp, err := e.provider.do(ctx, http.MethodPut, path, bytes.NewReader(data), "application/octet-stream")
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (e *remoteExecutor) Close(ctx context.Context) error {
	resp, err := e.provider.do(ctx, http.MethodDelete, "/sandboxes/"+url.PathEscape(e.id), nil, "")
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
