package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/brojonat/solwallet/service/dashboard"
	"github.com/brojonat/solwallet/service/mint"
	"github.com/brojonat/solwallet/service/solana"
	"github.com/brojonat/solwallet/service/wallet"
)

const (
	maxRequestBodySize = 1 << 16 // requests carry an adapter name or an endpoint
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer
	maxAdapterNameLen  = 64
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)

	validClusters = map[string]bool{
		"devnet":   true,
		"testnet":  true,
		"mainnet":  true,
		"localnet": true,
	}
)

// handleGetState returns a handler that renders the dashboard state.
// GET /api/v1/state
func handleGetState(dash Dashboard) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, dash.State(), http.StatusOK)
	})
}

// handleListAdapters returns a handler that lists the wallet adapters.
// GET /api/v1/adapters
func handleListAdapters(dash Dashboard) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		adapters := dash.Adapters()
		writeJSON(w, map[string]interface{}{
			"adapters": adapters,
			"count":    len(adapters),
		}, http.StatusOK)
	})
}

type connectRequest struct {
	Adapter string `json:"adapter"`
}

// handleConnect returns a handler that connects a wallet adapter.
// POST /api/v1/connect {"adapter": "keygen-file"}
func handleConnect(dash Dashboard, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req connectRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateAdapterName(req.Adapter); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		identity, err := dash.Connect(r.Context(), req.Adapter)
		if err != nil {
			logger.WarnContext(r.Context(), "failed to connect wallet", "adapter", req.Adapter, "error", err)
			writeError(w, err.Error(), errorStatus(err))
			return
		}

		logger.InfoContext(r.Context(), "wallet connected", "adapter", req.Adapter, "identity", identity.String())
		writeJSON(w, map[string]string{
			"adapter":  req.Adapter,
			"identity": identity.String(),
		}, http.StatusOK)
	})
}

// handleDisconnect returns a handler that ends the wallet session.
// POST /api/v1/disconnect
func handleDisconnect(dash Dashboard, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := dash.Disconnect(r.Context()); err != nil {
			logger.ErrorContext(r.Context(), "failed to disconnect wallet", "error", err)
			writeError(w, err.Error(), errorStatus(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleCopyAddress returns a handler that returns the full account address.
// POST /api/v1/copy-address
func handleCopyAddress(dash Dashboard, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address, err := dash.CopyAddress(r.Context())
		if err != nil {
			writeError(w, err.Error(), errorStatus(err))
			return
		}
		writeJSON(w, map[string]string{"address": address}, http.StatusOK)
	})
}

// createTokenResponse is the JSON response format for a created mint.
type createTokenResponse struct {
	Mint        string `json:"mint"`
	Signature   string `json:"signature"`
	Owner       string `json:"owner"`
	ExplorerURL string `json:"explorer_url"`
}

// handleCreateToken returns a handler that creates an SPL token mint account.
// POST /api/v1/tokens
func handleCreateToken(dash Dashboard, explorerURL string, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := dash.CreateToken(r.Context())
		if err != nil {
			logger.WarnContext(r.Context(), "token creation failed", "error", err)
			writeError(w, err.Error(), errorStatus(err))
			return
		}

		sig := res.Signature.String()
		writeJSON(w, createTokenResponse{
			Mint:        res.Mint.String(),
			Signature:   sig,
			Owner:       res.Owner.String(),
			ExplorerURL: solana.ExplorerTxURL(explorerURL, sig, dash.State().Cluster),
		}, http.StatusCreated)
	})
}

// handleRefresh returns a handler that re-fetches balance and history.
// POST /api/v1/refresh
func handleRefresh(dash Dashboard, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := dash.Refresh(r.Context()); err != nil {
			writeError(w, err.Error(), errorStatus(err))
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
}

// handleSwitchEndpoint returns a handler that changes the network endpoint.
// PUT /api/v1/endpoint {"cluster": "devnet", "rpc_url": "https://api.devnet.solana.com"}
func handleSwitchEndpoint(dash Dashboard, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var endpoint wallet.Endpoint
		if err := decodeJSON(w, r, &endpoint); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateEndpoint(endpoint); err != nil {
			logger.DebugContext(r.Context(), "invalid endpoint", "cluster", endpoint.Cluster, "rpc_url", endpoint.RPCURL, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := dash.SwitchEndpoint(r.Context(), endpoint); err != nil {
			logger.ErrorContext(r.Context(), "failed to switch endpoint", "error", err)
			writeError(w, err.Error(), errorStatus(err))
			return
		}

		logger.InfoContext(r.Context(), "endpoint switched", "cluster", endpoint.Cluster, "rpc_url", endpoint.RPCURL)
		writeJSON(w, endpoint, http.StatusOK)
	})
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	var verr *validationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, wallet.ErrWalletNotFound):
		return http.StatusNotFound
	case errors.Is(err, wallet.ErrRejected):
		return http.StatusForbidden
	case errors.Is(err, wallet.ErrWalletNotReady),
		errors.Is(err, wallet.ErrNotConnected),
		errors.Is(err, mint.ErrWalletNotConnected),
		errors.Is(err, dashboard.ErrCreateInFlight):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// decodeJSON decodes a size-limited JSON request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errorf("invalid request body: %v", err)
	}
	return nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a wallet address for format.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}

	return nil
}

// validateAdapterName validates a wallet adapter name.
func validateAdapterName(name string) error {
	if name == "" {
		return errorf("adapter is required")
	}
	if len(name) > maxAdapterNameLen {
		return errorf("adapter name too long: maximum length is %d characters", maxAdapterNameLen)
	}
	for _, r := range name {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in adapter name")
		}
	}
	return nil
}

// validateEndpoint validates a cluster name and RPC URL.
func validateEndpoint(endpoint wallet.Endpoint) error {
	if !validClusters[endpoint.Cluster] {
		return errorf("invalid cluster: must be one of devnet, testnet, mainnet, localnet")
	}
	if endpoint.RPCURL == "" {
		return errorf("rpc_url is required")
	}
	u, err := url.Parse(endpoint.RPCURL)
	if err != nil {
		return errorf("invalid rpc_url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errorf("invalid rpc_url: scheme must be http or https")
	}
	if u.Host == "" {
		return errorf("invalid rpc_url: host is required")
	}
	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
