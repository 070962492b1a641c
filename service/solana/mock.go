package solana

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// MockRPCClient is an in-memory RPCClient for testing.
// It's behavior-focused: tests set what it should return, then assert on outcomes.
type MockRPCClient struct {
	mu sync.Mutex

	balances      map[string]uint64
	signatures    map[string][]*rpc.TransactionSignature
	transactions  map[string]*rpc.GetTransactionResult
	tokenBalances map[string]*rpc.UiTokenAmount
	statuses      map[string]*rpc.SignatureStatusesResult
	keyErrors     map[string]error
	methodErrors  map[string]error
	hooks         map[string]func(ctx context.Context, key string)

	rentExemption uint64
	blockhash     solana.Hash

	calls map[string]int
	sent  []*solana.Transaction
}

// NewMockRPCClient creates an empty mock. Unknown accounts have zero balance and no history.
func NewMockRPCClient() *MockRPCClient {
	return &MockRPCClient{
		balances:      make(map[string]uint64),
		signatures:    make(map[string][]*rpc.TransactionSignature),
		transactions:  make(map[string]*rpc.GetTransactionResult),
		tokenBalances: make(map[string]*rpc.UiTokenAmount),
		statuses:      make(map[string]*rpc.SignatureStatusesResult),
		keyErrors:     make(map[string]error),
		methodErrors:  make(map[string]error),
		hooks:         make(map[string]func(ctx context.Context, key string)),
		rentExemption: 1_461_600,
		blockhash:     solana.MustHashFromBase58("EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N"),
		calls:         make(map[string]int),
	}
}

// SetBalance sets the lamport balance returned for account.
func (m *MockRPCClient) SetBalance(account solana.PublicKey, lamports uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account.String()] = lamports
}

// SetSignatures sets the signature listing returned for address.
func (m *MockRPCClient) SetSignatures(address solana.PublicKey, sigs []*rpc.TransactionSignature) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signatures[address.String()] = sigs
}

// SetTransaction sets the full transaction returned for sig.
func (m *MockRPCClient) SetTransaction(sig solana.Signature, result *rpc.GetTransactionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[sig.String()] = result
}

// SetTokenBalance sets the token balance returned for a token account.
func (m *MockRPCClient) SetTokenBalance(account solana.PublicKey, amount string, decimals uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenBalances[account.String()] = &rpc.UiTokenAmount{Amount: amount, Decimals: decimals}
}

// SetSignatureStatus overrides the status reported for sig. By default every signature is confirmed.
func (m *MockRPCClient) SetSignatureStatus(sig solana.Signature, status *rpc.SignatureStatusesResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[sig.String()] = status
}

// SetRentExemption sets the value returned by GetMinimumBalanceForRentExemption.
func (m *MockRPCClient) SetRentExemption(lamports uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rentExemption = lamports
}

// SetKeyError makes any call keyed by key (an account or signature) fail with err.
func (m *MockRPCClient) SetKeyError(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keyErrors[key] = err
}

// SetMethodError makes every call to method fail with err.
func (m *MockRPCClient) SetMethodError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.methodErrors[method] = err
}

// SetHook registers fn to run at the start of every call to method, outside the lock.
// Tests use it to block a call until they release it.
func (m *MockRPCClient) SetHook(method string, fn func(ctx context.Context, key string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[method] = fn
}

// Calls returns how many times method was invoked.
func (m *MockRPCClient) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// TotalCalls returns the number of calls across all methods.
func (m *MockRPCClient) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// SentTransactions returns a copy of every transaction passed to SendTransaction.
func (m *MockRPCClient) SentTransactions() []*solana.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*solana.Transaction, len(m.sent))
	copy(out, m.sent)
	return out
}

// enter records the call, runs any hook, and returns the configured error for method/key.
func (m *MockRPCClient) enter(ctx context.Context, method, key string) error {
	m.mu.Lock()
	m.calls[method]++
	hook := m.hooks[method]
	m.mu.Unlock()

	if hook != nil {
		hook(ctx, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.methodErrors[method]; err != nil {
		return err
	}
	if err := m.keyErrors[key]; err != nil {
		return err
	}
	return nil
}

func (m *MockRPCClient) GetBalance(ctx context.Context, account solana.PublicKey, _ rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	if err := m.enter(ctx, "GetBalance", account.String()); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return &rpc.GetBalanceResult{Value: m.balances[account.String()]}, nil
}

func (m *MockRPCClient) GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
	if err := m.enter(ctx, "GetSignaturesForAddress", address.String()); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sigs := m.signatures[address.String()]
	if opts != nil && opts.Limit != nil && len(sigs) > *opts.Limit {
		sigs = sigs[:*opts.Limit]
	}
	out := make([]*rpc.TransactionSignature, len(sigs))
	copy(out, sigs)
	return out, nil
}

func (m *MockRPCClient) GetTransaction(ctx context.Context, signature solana.Signature, _ *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	if err := m.enter(ctx, "GetTransaction", signature.String()); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result, ok := m.transactions[signature.String()]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return result, nil
}

func (m *MockRPCClient) GetMinimumBalanceForRentExemption(ctx context.Context, _ uint64, _ rpc.CommitmentType) (uint64, error) {
	if err := m.enter(ctx, "GetMinimumBalanceForRentExemption", ""); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rentExemption, nil
}

func (m *MockRPCClient) GetLatestBlockhash(ctx context.Context, _ rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	if err := m.enter(ctx, "GetLatestBlockhash", ""); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: m.blockhash, LastValidBlockHeight: 1000},
	}, nil
}

func (m *MockRPCClient) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, _ rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error) {
	if err := m.enter(ctx, "GetTokenAccountBalance", account.String()); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	amount, ok := m.tokenBalances[account.String()]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetTokenAccountBalanceResult{Value: amount}, nil
}

func (m *MockRPCClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if err := m.enter(ctx, "SendTransaction", ""); err != nil {
		return solana.Signature{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, tx)
	if len(tx.Signatures) == 0 {
		return solana.Signature{}, nil
	}
	return tx.Signatures[0], nil
}

func (m *MockRPCClient) GetSignatureStatuses(ctx context.Context, _ bool, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	key := ""
	if len(signatures) > 0 {
		key = signatures[0].String()
	}
	if err := m.enter(ctx, "GetSignatureStatuses", key); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &rpc.GetSignatureStatusesResult{}
	for _, sig := range signatures {
		status, ok := m.statuses[sig.String()]
		if !ok {
			status = &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusConfirmed}
		}
		out.Value = append(out.Value, status)
	}
	return out, nil
}
