package boardclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"github.com/pkg/errors"
	"github.com/tickboard/board/entities"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const authHeader = "auth"

var ErrUnauthorized = errors.New("request not authorized")

type Signer interface {
	Sign(payload entities.Mutation, sequence uint64) (string, error)
}

type Client struct {
	baseURL     string
	httpClient  *http.Client
	signer      Signer // nil for read only clients
	maxAttempts int
}

func NewClient(baseURL string, signer Signer, timeout time.Duration, maxAttempts int) *Client {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		signer:      signer,
		maxAttempts: maxAttempts,
	}
}

func (c *Client) Healthy(ctx context.Context) error {
	_, err := c.get(ctx, "/")
	return err
}

func (c *Client) GetSequence(ctx context.Context) (uint64, error) {
	body, err := c.get(ctx, "/sequence")
	if err != nil {
		return 0, err
	}
	sequence, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing sequence [%s]", body)
	}
	return sequence, nil
}

func (c *Client) GetMessage(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "/message")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) GetActive(ctx context.Context) (bool, error) {
	body, err := c.get(ctx, "/active")
	if err != nil {
		return false, err
	}
	active, err := strconv.ParseBool(strings.TrimSpace(string(body)))
	if err != nil {
		return false, errors.Wrapf(err, "parsing active [%s]", body)
	}
	return active, nil
}

func (c *Client) GetTickTypes(ctx context.Context) ([]entities.TickType, error) {
	body, err := c.get(ctx, "/ticks")
	if err != nil {
		return nil, err
	}
	var tickTypes []entities.TickType
	err = json.Unmarshal(body, &tickTypes)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshalling tick types")
	}
	return tickTypes, nil
}

func (c *Client) GetTickHistory(ctx context.Context) ([]entities.TickHistoryEntry, error) {
	body, err := c.get(ctx, "/tick_history")
	if err != nil {
		return nil, err
	}
	var history []entities.TickHistoryEntry
	err = json.Unmarshal(body, &history)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshalling tick history")
	}
	return history, nil
}

// GetCompactTickHistory returns the raw compact history bytes.
func (c *Client) GetCompactTickHistory(ctx context.Context) ([]byte, error) {
	return c.get(ctx, "/compressed_tick_history")
}

func (c *Client) SetMessage(ctx context.Context, message string) error {
	return c.mutate(ctx, "/message", entities.Message{Message: message})
}

func (c *Client) SetActive(ctx context.Context, active bool) error {
	return c.mutate(ctx, "/active", entities.Active{Active: active})
}

func (c *Client) TriggerTick(ctx context.Context, tickType uint8) error {
	return c.mutate(ctx, "/tick", entities.TriggerTick{Type: tickType})
}

// mutate fetches the current sequence, signs the payload for it and submits it. A 401
// means another mutation committed in between, so it re-fetches and retries up to
// maxAttempts times.
func (c *Client) mutate(ctx context.Context, path string, payload entities.Mutation) error {
	if c.signer == nil {
		return errors.New("client has no signing key")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshalling payload")
	}

	for attempt := 1; ; attempt++ {
		sequence, err := c.GetSequence(ctx)
		if err != nil {
			return errors.Wrap(err, "getting sequence")
		}
		signature, err := c.signer.Sign(payload, sequence)
		if err != nil {
			return errors.Wrap(err, "signing payload")
		}

		err = c.post(ctx, path, signature, body)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrUnauthorized) || attempt >= c.maxAttempts {
			return errors.Wrapf(err, "attempt [%d]", attempt)
		}
	}
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path, signature string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(authHeader, signature)
	_, err = c.do(req)
	return err
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "calling [%s %s]", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response body")
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("unexpected status [%d] from [%s %s]: %s", resp.StatusCode, req.Method, req.URL.Path, strings.TrimSpace(string(body)))
	}
	return body, nil
}
