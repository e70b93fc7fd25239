// Package loractl implements the command-line client for a running lorad
// daemon. Commands are wired through Cobra; all traffic is plain HTTP with
// NDJSON streaming for generation and training.
package loractl

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"lorad/pkg/types"
)

// Client talks to one lorad instance.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		// Generation and training are long-running; rely on context
		// cancellation instead of a client timeout.
		HTTP: &http.Client{Timeout: 0},
	}
}

func (c *Client) url(path string) string { return c.BaseURL + path }

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.HTTP.Do(req)
}

// doJSON performs a request and decodes a JSON response body into out.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// doStream performs a request and feeds each NDJSON line to onLine.
func (c *Client) doStream(ctx context.Context, path string, body any, onLine func([]byte) error) error {
	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if err := onLine(line); err != nil {
			return err
		}
	}
	return sc.Err()
}

func decodeError(resp *http.Response) error {
	var er types.ErrorResponse
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(b, &er); err == nil && er.Error != "" {
		return fmt.Errorf("%s (HTTP %d)", er.Error, resp.StatusCode)
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(b))
}

func (c *Client) Status(ctx context.Context) (types.StatusResponse, error) {
	var st types.StatusResponse
	err := c.doJSON(ctx, http.MethodGet, "/status", nil, &st)
	return st, err
}

func (c *Client) Models(ctx context.Context) ([]types.ModelInfo, error) {
	var mr types.ModelsResponse
	err := c.doJSON(ctx, http.MethodGet, "/models", nil, &mr)
	return mr.Models, err
}

func (c *Client) LoadModel(ctx context.Context, req types.LoadModelRequest) (types.StatusResponse, error) {
	var st types.StatusResponse
	err := c.doJSON(ctx, http.MethodPost, "/model/load", req, &st)
	return st, err
}

func (c *Client) UnloadModel(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/model", nil, nil)
}

func (c *Client) ApplyAdapter(ctx context.Context, req types.AdapterRequest) (types.StatusResponse, error) {
	var st types.StatusResponse
	err := c.doJSON(ctx, http.MethodPost, "/adapter", req, &st)
	return st, err
}

func (c *Client) SaveAdapter(ctx context.Context, path string) error {
	return c.doJSON(ctx, http.MethodPost, "/adapter/save", types.SaveAdapterRequest{Path: path}, nil)
}

func (c *Client) RemoveAdapter(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/adapter", nil, nil)
}

// Generate runs one bulk generation call.
func (c *Client) Generate(ctx context.Context, req types.GenerateRequest) (types.GenerateResponse, error) {
	req.Stream = false
	var out types.GenerateResponse
	err := c.doJSON(ctx, http.MethodPost, "/generate", req, &out)
	return out, err
}

// GenerateStream streams chunks to onChunk and returns the terminal response.
func (c *Client) GenerateStream(ctx context.Context, req types.GenerateRequest, onChunk func(string)) (types.GenerateResponse, error) {
	req.Stream = true
	var final types.GenerateResponse
	err := c.doStream(ctx, "/generate", req, func(line []byte) error {
		var probe struct {
			Done  bool   `json:"done"`
			Error string `json:"error"`
			Code  int    `json:"code"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			return err
		}
		if probe.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", probe.Error, probe.Code)
		}
		if probe.Done {
			return json.Unmarshal(line, &final)
		}
		var chunk types.GenerateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return err
		}
		if onChunk != nil {
			onChunk(chunk.Content)
		}
		return nil
	})
	return final, err
}

// Train streams progress lines to the callbacks and returns the terminal
// response.
func (c *Client) Train(ctx context.Context, req types.TrainRequest, onBatch func(types.TrainBatchLine), onEpoch func(types.TrainEpochLine)) (types.TrainResponse, error) {
	var final types.TrainResponse
	err := c.doStream(ctx, "/train", req, func(line []byte) error {
		var probe struct {
			Done  bool   `json:"done"`
			Phase string `json:"phase"`
			Epoch int    `json:"epoch"`
			Error string `json:"error"`
			Code  int    `json:"code"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			return err
		}
		switch {
		case probe.Error != "":
			return fmt.Errorf("%s (HTTP %d)", probe.Error, probe.Code)
		case probe.Done:
			return json.Unmarshal(line, &final)
		case probe.Phase != "":
			var b types.TrainBatchLine
			if err := json.Unmarshal(line, &b); err != nil {
				return err
			}
			if onBatch != nil {
				onBatch(b)
			}
		default:
			var e types.TrainEpochLine
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			if onEpoch != nil {
				onEpoch(e)
			}
		}
		return nil
	})
	return final, err
}

// WaitReady polls /readyz until the daemon answers or the deadline passes.
func (c *Client) WaitReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/readyz"), nil)
		if err != nil {
			return err
		}
		resp, err := c.HTTP.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("daemon not ready after %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}
