package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Balance is the SOL balance of the connected account.
type Balance struct {
	Lamports uint64 `json:"lamports"`
	SOL      string `json:"sol"`
}

// TokenBalance is the balance of an SPL token account in base units.
type TokenBalance struct {
	Account  string `json:"account"`
	Amount   uint64 `json:"amount"`
	Decimals uint8  `json:"decimals"`
}

// Transaction is one row of the history table.
type Transaction struct {
	Signature      string `json:"signature"`
	ShortSignature string `json:"short_signature"`
	Time           string `json:"time"`
	Fee            string `json:"fee"`
	Status         string `json:"status"`
	ExplorerURL    string `json:"explorer_url"`
}

// Notification is a user-facing message emitted by the dashboard.
type Notification struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Account   string    `json:"account,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// State is the dashboard's view state.
type State struct {
	Connected           bool           `json:"connected"`
	Account             string         `json:"account,omitempty"`
	ShortAccount        string         `json:"short_account,omitempty"`
	Cluster             string         `json:"cluster"`
	RPCURL              string         `json:"rpc_url"`
	Balance             *Balance       `json:"balance,omitempty"`
	BalanceLoading      bool           `json:"balance_loading"`
	BalanceUnavailable  bool           `json:"balance_unavailable"`
	TokenBalance        *TokenBalance  `json:"token_balance,omitempty"`
	Transactions        []Transaction  `json:"transactions"`
	TransactionsLoading bool           `json:"transactions_loading"`
	Creating            bool           `json:"creating"`
	Copied              bool           `json:"copied"`
	Notifications       []Notification `json:"notifications"`
}

// Adapter describes a wallet adapter known to the server.
type Adapter struct {
	Name            string `json:"name"`
	Ready           bool   `json:"ready"`
	AutoConnectable bool   `json:"auto_connectable"`
	Active          bool   `json:"active"`
}

// Token is the result of a token creation.
type Token struct {
	Mint        string `json:"mint"`
	Signature   string `json:"signature"`
	Owner       string `json:"owner"`
	ExplorerURL string `json:"explorer_url"`
}

// Endpoint is a cluster name and its RPC URL.
type Endpoint struct {
	Cluster string `json:"cluster"`
	RPCURL  string `json:"rpc_url"`
}

// Client is the HTTP client for the wallet dashboard service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new dashboard service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// State retrieves the dashboard state.
func (c *Client) State(ctx context.Context) (*State, error) {
	var state State
	if err := c.do(ctx, "GET", "/api/v1/state", nil, http.StatusOK, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Adapters lists the wallet adapters.
func (c *Client) Adapters(ctx context.Context) ([]Adapter, error) {
	var resp struct {
		Adapters []Adapter `json:"adapters"`
	}
	if err := c.do(ctx, "GET", "/api/v1/adapters", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Adapters, nil
}

// Connect connects the named wallet adapter and returns the account address.
func (c *Client) Connect(ctx context.Context, adapter string) (string, error) {
	var resp struct {
		Identity string `json:"identity"`
	}
	if err := c.do(ctx, "POST", "/api/v1/connect", map[string]string{"adapter": adapter}, http.StatusOK, &resp); err != nil {
		return "", err
	}
	c.logger.Debug("wallet connected", "adapter", adapter, "identity", resp.Identity)
	return resp.Identity, nil
}

// Disconnect ends the wallet session.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.do(ctx, "POST", "/api/v1/disconnect", nil, http.StatusNoContent, nil)
}

// CopyAddress returns the full address of the connected account.
func (c *Client) CopyAddress(ctx context.Context) (string, error) {
	var resp struct {
		Address string `json:"address"`
	}
	if err := c.do(ctx, "POST", "/api/v1/copy-address", nil, http.StatusOK, &resp); err != nil {
		return "", err
	}
	return resp.Address, nil
}

// CreateToken creates an SPL token mint account for the connected wallet.
func (c *Client) CreateToken(ctx context.Context) (*Token, error) {
	var token Token
	if err := c.do(ctx, "POST", "/api/v1/tokens", nil, http.StatusCreated, &token); err != nil {
		return nil, err
	}
	c.logger.Debug("token created", "mint", token.Mint, "signature", token.Signature)
	return &token, nil
}

// Refresh asks the server to re-fetch balance and history.
func (c *Client) Refresh(ctx context.Context) error {
	return c.do(ctx, "POST", "/api/v1/refresh", nil, http.StatusAccepted, nil)
}

// SwitchEndpoint changes the network endpoint.
func (c *Client) SwitchEndpoint(ctx context.Context, endpoint Endpoint) error {
	return c.do(ctx, "PUT", "/api/v1/endpoint", endpoint, http.StatusOK, nil)
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Watch streams notifications until ctx is done or handler returns false.
// An empty account watches every account.
func (c *Client) Watch(ctx context.Context, account string, handler func(*Notification) bool) error {
	u := c.baseURL + "/api/v1/stream/notifications"
	if account != "" {
		u += "?account=" + url.QueryEscape(account)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// Streams are long-lived; the context bounds them instead of the client timeout.
	streamClient := *c.httpClient
	streamClient.Timeout = 0

	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && event == "notification":
			var n Notification
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &n); err != nil {
				c.logger.Warn("failed to decode notification", "error", err)
				continue
			}
			if !handler(&n) {
				return nil
			}
		case line == "":
			event = ""
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream error: %w", err)
	}
	return nil
}

// do sends a JSON request and decodes the JSON response into out when out is not nil.
func (c *Client) do(ctx context.Context, method, path string, in interface{}, wantStatus int, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return c.parseErrorResponse(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &StatusError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	return &StatusError{StatusCode: resp.StatusCode, Message: errResp.Error}
}

// StatusError is returned when the server answers with an unexpected status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}
