package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rileytg/puglies/internal/crypto"
)

// ClobClient is the REST client for the Polymarket CLOB API. Here it serves
// one purpose: running the L1 credential flow so the order-book feed can
// subscribe authenticated. It implements feed.AuthProvider.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer

	mu   sync.Mutex
	auth *crypto.HMACAuth
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
// signer is the EIP-712 signer whose wallet the credentials are derived for.
func NewClobClient(baseURL string, signer *crypto.Signer) *ClobClient {
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		signer: signer,
	}
}

// SubscriptionAuth returns the session token for authenticated feed
// subscriptions, deriving API credentials on first use. The feed manager
// calls this on every (re)connect; cached credentials make the common case a
// map read.
func (c *ClobClient) SubscriptionAuth(ctx context.Context) (string, error) {
	auth, err := c.credentials(ctx)
	if err != nil {
		return "", err
	}
	return auth.Key, nil
}

// Credentials returns the derived HMAC credentials, running the L1 flow if
// none are cached yet.
func (c *ClobClient) Credentials(ctx context.Context) (*crypto.HMACAuth, error) {
	return c.credentials(ctx)
}

func (c *ClobClient) credentials(ctx context.Context) (*crypto.HMACAuth, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.auth != nil {
		return c.auth, nil
	}

	auth, err := c.deriveAPIKey(ctx)
	if err != nil {
		return nil, err
	}
	c.auth = auth
	return auth, nil
}

// deriveAPIKey performs the CLOB auth flow to obtain HMAC API credentials.
// It signs a ClobAuth EIP-712 message and sends it with L1 headers to the
// derive-api-key endpoint. Per Polymarket docs, L1 requires POLY_ADDRESS,
// POLY_SIGNATURE, POLY_TIMESTAMP, POLY_NONCE.
func (c *ClobClient) deriveAPIKey(ctx context.Context) (*crypto.HMACAuth, error) {
	address := c.signer.Address().Hex()
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	nonce := int64(0)

	sig, err := c.signer.SignAuthMessage(timestamp, nonce)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_NONCE", strconv.FormatInt(nonce, 10))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: read auth response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, fmt.Errorf("polymarket/clob: auth failed: %w", err)
	}

	var creds apiCredentials
	if err := json.Unmarshal(respBody, &creds); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}

	return &crypto.HMACAuth{
		Key:        creds.APIKey,
		Secret:     creds.Secret,
		Passphrase: creds.Passphrase,
	}, nil
}
