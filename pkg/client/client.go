// Package client talks to an ouroboros-blocks server and signs writes with a
// local secp256k1 key.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/i5heu/ouroboros-blocks/pkg/apiServer"
	"github.com/i5heu/ouroboros-blocks/pkg/ownership"
	"github.com/i5heu/ouroboros-blocks/pkg/proof"
	"github.com/i5heu/ouroboros-blocks/pkg/secret"
)

var (
	// ErrNoSigner is returned by writes on a client built without a key.
	ErrNoSigner = errors.New("client has no signing key")
	// ErrBlockNotUTF8 is returned for blocks that cannot travel as a JSON
	// string without being altered.
	ErrBlockNotUTF8 = errors.New("block is not valid UTF-8")
)

// StatusError is a non-200 answer from the server. It unwraps to the
// matching ownership sentinel where one exists.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusBadRequest:
		return ownership.ErrMalformedInput
	case http.StatusForbidden:
		return ownership.ErrForbidden
	case http.StatusNotFound:
		return ownership.ErrNotFound
	case http.StatusServiceUnavailable:
		return ownership.ErrStorageUnavailable
	default:
		return nil
	}
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	signer     *proof.Signer
}

type Option func(*Client)

// WithHTTPClient replaces the default client with a 30 second timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New returns a client for baseURL. signer may be nil for read-only use.
func New(baseURL string, signer *proof.Signer, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		signer:     signer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PublicKey returns the hex public key of the signer, or "" without one.
func (c *Client) PublicKey() string {
	if c.signer == nil {
		return ""
	}
	return c.signer.PublicKey().Hex()
}

func (c *Client) Check(ctx context.Context, publicKey string) (bool, error) {
	var resp apiServer.CheckResponse
	err := c.post(ctx, "/api/check", apiServer.Request{PublicKey: publicKey}, &resp)
	return resp.Exists, err
}

func (c *Client) Groups(ctx context.Context, publicKey string) ([]string, error) {
	var resp apiServer.GroupsResponse
	err := c.post(ctx, "/api/groups", apiServer.Request{PublicKey: publicKey}, &resp)
	return resp.Groups, err
}

func (c *Client) Keys(ctx context.Context, publicKey, group string) ([]string, error) {
	var resp apiServer.KeysResponse
	err := c.post(ctx, "/api/keys", apiServer.Request{
		PublicKey: publicKey,
		Group:     group,
	}, &resp)
	return resp.Keys, err
}

func (c *Client) List(ctx context.Context, publicKey, group string) ([]apiServer.Record, error) {
	var resp []apiServer.Record
	err := c.post(ctx, "/api/list", apiServer.Request{
		PublicKey: publicKey,
		Group:     group,
	}, &resp)
	return resp, err
}

func (c *Client) Get(ctx context.Context, publicKey, group, key string) (apiServer.Record, error) {
	var resp apiServer.Record
	err := c.post(ctx, "/api/get", apiServer.Request{
		PublicKey: publicKey,
		Group:     group,
		Key:       key,
	}, &resp)
	return resp, err
}

// Save writes a record under the signer's key. current is the secret from the
// previous save; pass the zero Secret when creating. The returned record
// carries the secret needed for the next write.
func (c *Client) Save(
	ctx context.Context,
	group, key string,
	block []byte,
	version string,
	current secret.Secret,
) (apiServer.Record, error) {
	if c.signer == nil {
		return apiServer.Record{}, ErrNoSigner
	}
	if !utf8.Valid(block) {
		return apiServer.Record{}, ErrBlockNotUTF8
	}
	sig, err := c.signer.SignContent(group, key, block, version)
	if err != nil {
		return apiServer.Record{}, fmt.Errorf("sign content: %w", err)
	}
	req := apiServer.Request{
		PublicKey: c.signer.PublicKey().Hex(),
		Group:     group,
		Key:       key,
		Block:     string(block),
		Version:   version,
		Signature: sig.Hex(),
	}
	if req.SecretSignature, err = c.secretSignature(current); err != nil {
		return apiServer.Record{}, err
	}

	var resp apiServer.Record
	err = c.post(ctx, "/api/save", req, &resp)
	return resp, err
}

// Delete removes a record of the signer's key using its current secret.
func (c *Client) Delete(ctx context.Context, group, key string, current secret.Secret) error {
	if c.signer == nil {
		return ErrNoSigner
	}
	req := apiServer.Request{
		PublicKey: c.signer.PublicKey().Hex(),
		Group:     group,
		Key:       key,
	}
	var err error
	if req.SecretSignature, err = c.secretSignature(current); err != nil {
		return err
	}
	var resp apiServer.DeleteResponse
	return c.post(ctx, "/api/delete", req, &resp)
}

func (c *Client) secretSignature(current secret.Secret) (string, error) {
	if current.IsZero() {
		return "", nil
	}
	sig, err := c.signer.SignSecret(current)
	if err != nil {
		return "", fmt.Errorf("sign secret: %w", err)
	}
	return sig.Hex(), nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr apiServer.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
