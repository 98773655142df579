package quorum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"

	"github.com/chainapsis/oko-tss/pkg/types"
)

const (
	pathGet             = "/keyshare/v2/"
	pathRegister        = "/keyshare/v2/register"
	pathReshare         = "/keyshare/v2/reshare"
	pathReshareRegister = "/keyshare/v2/reshare/register"
)

// HTTPNodeAPI talks to key-share nodes over their HTTP protocol surface.
// Transport failures and 5xx answers are retried a small fixed number of
// times per node; application-level errors are returned typed and never
// retried here (the quorum layer decides what they mean).
type HTTPNodeAPI struct {
	client    *http.Client
	authToken string
	attempts  uint
}

func NewHTTPNodeAPI(timeout time.Duration, attempts int, authToken string) *HTTPNodeAPI {
	if attempts < 1 {
		attempts = 1
	}
	return &HTTPNodeAPI{
		client:    &http.Client{Timeout: timeout},
		authToken: authToken,
		attempts:  uint(attempts),
	}
}

func (a *HTTPNodeAPI) GetKeyShares(ctx context.Context, node Node, req types.KeyShareGetRequest) (types.CurveShares, error) {
	var out types.CurveShares
	err := a.post(ctx, node, pathGet, req, &out)
	return out, err
}

func (a *HTTPNodeAPI) RegisterKeyShares(ctx context.Context, node Node, req types.KeyShareRegisterRequest) (types.CurveRegistrations, error) {
	var out types.CurveRegistrations
	err := a.post(ctx, node, pathRegister, req, &out)
	return out, err
}

func (a *HTTPNodeAPI) ReshareKeyShares(ctx context.Context, node Node, req types.KeyShareRegisterRequest) error {
	return a.post(ctx, node, pathReshare, req, nil)
}

func (a *HTTPNodeAPI) ReshareRegister(ctx context.Context, node Node, req types.KeyShareRegisterRequest) error {
	return a.post(ctx, node, pathReshareRegister, req, nil)
}

func (a *HTTPNodeAPI) post(ctx context.Context, node Node, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(node.Endpoint, "/") + path

	var appErr error
	var data json.RawMessage
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("build request: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")
			if a.authToken != "" {
				req.Header.Set("Authorization", "Bearer "+a.authToken)
			}

			resp, err := a.client.Do(req)
			if err != nil {
				return fmt.Errorf("call node %s: %w", node.Name, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode >= http.StatusInternalServerError {
				return fmt.Errorf("node %s returned status %d", node.Name, resp.StatusCode)
			}

			var envelope struct {
				Success bool            `json:"success"`
				Data    json.RawMessage `json:"data"`
				Code    types.ErrorCode `json:"code"`
				Msg     string          `json:"msg"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
				return fmt.Errorf("decode response from node %s: %w", node.Name, err)
			}

			if !envelope.Success {
				// Typed failure: stop retrying, surface the code.
				appErr = types.E(envelope.Code, envelope.Msg)
				return nil
			}
			data = envelope.Data
			return nil
		},
		retry.Attempts(a.attempts),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return err
	}
	if appErr != nil {
		return appErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("unmarshal response data: %w", err)
		}
	}
	return nil
}
