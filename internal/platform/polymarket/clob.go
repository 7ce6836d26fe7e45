package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/updownarb/internal/crypto"
	"github.com/alanyoungcy/updownarb/internal/domain"
)

// DefaultClobURL is the production CLOB API root.
const DefaultClobURL = "https://clob.polymarket.com"

// ClobClient talks to the Polymarket central limit order book.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer

	mu    sync.RWMutex
	creds *crypto.APICreds
}

// NewClobClient creates a CLOB client. signer may be nil for read-only use.
func NewClobClient(baseURL string, signer *crypto.Signer) *ClobClient {
	if baseURL == "" {
		baseURL = DefaultClobURL
	}
	return &ClobClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		signer:     signer,
	}
}

// SetCreds installs L2 API credentials.
func (c *ClobClient) SetCreds(creds crypto.APICreds) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = &creds
}

func (c *ClobClient) apiCreds() *crypto.APICreds {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

// GetBook returns the order book of one outcome token.
func (c *ClobClient) GetBook(ctx context.Context, tokenID string) (Book, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	body, err := c.do(ctx, http.MethodGet, "/book?"+params.Encode(), nil, false)
	if err != nil {
		return Book{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}
	var book Book
	if err := json.Unmarshal(body, &book); err != nil {
		return Book{}, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}
	return book, nil
}

// PostOrder submits a signed order.
func (c *ClobClient) PostOrder(ctx context.Context, req PostOrderRequest) (PostOrderResponse, error) {
	body, err := c.do(ctx, http.MethodPost, "/order", req, true)
	if err != nil {
		return PostOrderResponse{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}
	var resp PostOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return PostOrderResponse{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	return resp, nil
}

// DeriveAPIKey runs the L1 auth flow: it signs a ClobAuth attestation and
// exchanges it for L2 credentials, which are installed on the client.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) (crypto.APICreds, error) {
	if c.signer == nil {
		return crypto.APICreds{}, fmt.Errorf("polymarket/clob: derive api key: %w", domain.ErrUnauthorized)
	}
	ts := time.Now().Unix()
	sig, err := c.signer.SignAuth(ts, 0)
	if err != nil {
		return crypto.APICreds{}, fmt.Errorf("polymarket/clob: %w: %v", domain.ErrSigningFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return crypto.APICreds{}, fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", c.signer.Address().Hex())
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", strconv.FormatInt(ts, 10))
	req.Header.Set("POLY_NONCE", "0")

	body, err := c.send(req)
	if err != nil {
		return crypto.APICreds{}, fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(body, &authResp); err != nil {
		return crypto.APICreds{}, fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}

	creds := crypto.APICreds{Key: authResp.APIKey, Secret: authResp.Secret, Passphrase: authResp.Passphrase}
	c.SetCreds(creds)
	return creds, nil
}

// do sends a request, attaching L2 headers when auth is set.
func (c *ClobClient) do(ctx context.Context, method, path string, payload any, auth bool) ([]byte, error) {
	var (
		bodyReader io.Reader
		bodyStr    string
	)
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(b)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if auth {
		creds := c.apiCreds()
		if creds == nil || c.signer == nil {
			return nil, fmt.Errorf("no api credentials: %w", domain.ErrUnauthorized)
		}
		signPath := path
		if i := strings.IndexByte(signPath, '?'); i >= 0 {
			signPath = signPath[:i]
		}
		for k, v := range creds.L2Headers(c.signer.Address().Hex(), method, signPath, bodyStr) {
			req.Header.Set(k, v)
		}
	}
	return c.send(req)
}

func (c *ClobClient) send(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrInvalidOrder, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
