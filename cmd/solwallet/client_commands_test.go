package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/state", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"connected": true,
			"account":   "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
			"cluster":   "devnet",
			"rpc_url":   rpc.DevNet_RPC,
			"balance":   map[string]interface{}{"lamports": 2500000000, "sol": "2.5"},
			"transactions": []map[string]interface{}{
				{"short_signature": "5VERv8...Wg1d2M", "time": "2023-11-14 22:13:20", "fee": "0.000005", "status": "Success"},
			},
		})
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "client", "state")
	require.NoError(t, err)
	assert.Contains(t, out, "Account:  9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	assert.Contains(t, out, "Balance:  2.5 SOL")
	assert.Contains(t, out, "5VERv8...Wg1d2M")
}

func TestStateCommand_Disconnected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"connected": false, "cluster": "devnet"})
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "client", "state")
	require.NoError(t, err)
	assert.Contains(t, out, "Wallet:   not connected")
}

func TestAdaptersCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"adapters": []map[string]interface{}{
				{"name": "keygen-file", "ready": true, "active": true},
				{"name": "mnemonic", "ready": false},
			},
		})
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "client", "adapters")
	require.NoError(t, err)
	assert.Contains(t, out, "keygen-file    connected")
	assert.Contains(t, out, "mnemonic       not installed")
}

func TestConnectCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["adapter"] != "keygen-file" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "wallet adapter not found"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"adapter": "keygen-file", "identity": "abc"})
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "client", "connect", "keygen-file")
	require.NoError(t, err)
	assert.Contains(t, out, "Connected abc")

	_, err = runApp(t, "--server-url", server.URL, "client", "connect", "ledger")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet adapter not found")

	_, err = runApp(t, "--server-url", server.URL, "client", "connect")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adapter name is required")
}

func TestClientCreateTokenCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/tokens", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"mint":         "mint",
			"signature":    "sig",
			"owner":        "owner",
			"explorer_url": "https://explorer.solana.com/tx/sig?cluster=devnet",
		})
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "client", "create-token")
	require.NoError(t, err)
	assert.Contains(t, out, "Token created")
	assert.Contains(t, out, "https://explorer.solana.com/tx/sig?cluster=devnet")
}

func TestEndpointCommand(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PUT", r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(got)
	}))
	defer server.Close()

	t.Run("known cluster", func(t *testing.T) {
		_, err := runApp(t, "--server-url", server.URL, "client", "endpoint", "testnet")
		require.NoError(t, err)
		assert.Equal(t, "testnet", got["cluster"])
		assert.Equal(t, rpc.TestNet_RPC, got["rpc_url"])
	})

	t.Run("custom url", func(t *testing.T) {
		_, err := runApp(t, "--server-url", server.URL, "client", "endpoint", "localnet", "http://127.0.0.1:8899")
		require.NoError(t, err)
		assert.Equal(t, "http://127.0.0.1:8899", got["rpc_url"])
	})

	t.Run("unknown cluster needs url", func(t *testing.T) {
		_, err := runApp(t, "--server-url", server.URL, "client", "endpoint", "custom")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "RPC_URL is required")
	})
}

func TestWatchCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
		fmt.Fprintf(w, "event: notification\ndata: {\"level\":\"success\",\"message\":\"Wallet address copied!\",\"created_at\":\"2024-01-01T12:00:00Z\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	out, err := runApp(t, "--server-url", server.URL, "client", "watch", "--count", "1")
	require.NoError(t, err)
	assert.Equal(t, "[SUCCESS] 12:00:00 Wallet address copied!\n", out)
}
