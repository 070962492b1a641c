package temporal

import (
	"errors"
	"testing"

	"github.com/brojonat/solwallet/service/solana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

const (
	testOwner = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	testMint  = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	testSig   = "5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7"
)

func newWorkflowEnv() *testsuite.TestWorkflowEnvironment {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.SubmitMintAccount)
	env.RegisterActivity(activities.FetchTokenBalance)
	return env
}

func TestCreateTokenWorkflow(t *testing.T) {
	submitted := &SubmitMintAccountResult{Mint: testMint, Signature: testSig, Owner: testOwner}

	tests := []struct {
		name           string
		submitErr      error
		balance        *solana.TokenBalance
		balanceErr     error
		expectedError  bool
		expectBalance  int
		validateResult func(*testing.T, *CreateTokenResult)
	}{
		{
			name:          "mint created and balance fetched",
			balance:       &solana.TokenBalance{Account: "ata", Amount: 0, Decimals: 9},
			expectBalance: 1,
			validateResult: func(t *testing.T, result *CreateTokenResult) {
				assert.Equal(t, testMint, result.Mint)
				assert.Equal(t, testSig, result.Signature)
				assert.Equal(t, testOwner, result.Owner)
				require.NotNil(t, result.TokenBalance)
				assert.Equal(t, uint8(9), result.TokenBalance.Decimals)
				assert.Empty(t, result.TokenBalanceError)
			},
		},
		{
			name:          "balance failure is recorded, not propagated",
			balanceErr:    errors.New("could not find account"),
			expectBalance: 1,
			validateResult: func(t *testing.T, result *CreateTokenResult) {
				assert.Equal(t, testMint, result.Mint)
				assert.Nil(t, result.TokenBalance)
				assert.Contains(t, result.TokenBalanceError, "could not find account")
			},
		},
		{
			name:          "submit failure fails the workflow",
			submitErr:     temporalsdk.NewNonRetryableApplicationError("simulation failed", "SubmitFailed", nil),
			expectedError: true,
			expectBalance: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newWorkflowEnv()

			submitCalls, balanceCalls := 0, 0
			if tt.submitErr != nil {
				env.OnActivity(a.SubmitMintAccount, mock.Anything, mock.Anything).
					Run(func(args mock.Arguments) { submitCalls++ }).
					Return(nil, tt.submitErr)
			} else {
				env.OnActivity(a.SubmitMintAccount, mock.Anything, CreateTokenInput{Owner: testOwner}).
					Run(func(args mock.Arguments) { submitCalls++ }).
					Return(submitted, nil)
			}
			env.OnActivity(a.FetchTokenBalance, mock.Anything, FetchTokenBalanceInput{Owner: testOwner, Mint: testMint}).
				Run(func(args mock.Arguments) { balanceCalls++ }).
				Return(tt.balance, tt.balanceErr)

			env.ExecuteWorkflow(CreateTokenWorkflow, CreateTokenInput{Owner: testOwner})

			require.True(t, env.IsWorkflowCompleted())
			assert.Equal(t, 1, submitCalls)
			assert.Equal(t, tt.expectBalance, balanceCalls)

			if tt.expectedError {
				assert.Error(t, env.GetWorkflowError())
				return
			}
			require.NoError(t, env.GetWorkflowError())

			var result CreateTokenResult
			require.NoError(t, env.GetWorkflowResult(&result))
			tt.validateResult(t, &result)
		})
	}
}

func TestCreateTokenWorkflow_SubmitIsNotRetried(t *testing.T) {
	env := newWorkflowEnv()

	calls := 0
	env.OnActivity(a.SubmitMintAccount, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { calls++ }).
		Return(nil, errors.New("blockhash not found"))

	env.ExecuteWorkflow(CreateTokenWorkflow, CreateTokenInput{Owner: testOwner})

	require.Error(t, env.GetWorkflowError())
	assert.Equal(t, 1, calls, "a transaction is never resubmitted")
}

func TestCreateTokenWorkflow_WalletNotConnected(t *testing.T) {
	env := newWorkflowEnv()

	env.OnActivity(a.SubmitMintAccount, mock.Anything, mock.Anything).
		Return(nil, temporalsdk.NewNonRetryableApplicationError("wallet not connected", ErrTypeWalletNotConnected, nil))

	env.ExecuteWorkflow(CreateTokenWorkflow, CreateTokenInput{})

	err := env.GetWorkflowError()
	require.Error(t, err)
	var appErr *temporalsdk.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrTypeWalletNotConnected, appErr.Type())
}
