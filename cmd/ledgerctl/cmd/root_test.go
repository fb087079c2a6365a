package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/buildwithgrove/ledgerclient/multicall"
	"github.com/buildwithgrove/ledgerclient/testutil/ledgertest"
	"github.com/buildwithgrove/ledgerclient/testutil/ledgertest/chaintest"
)

const testChainID = 1

var (
	alice       = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	recordStore = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
)

const configTemplate = `
chain:
  chain_id: 1
  endpoints: [%q, %q]
retry:
  base_delay: 1ms
transactions:
  default_timeout: 5s
  poll_initial_interval: 5ms
  poll_max_interval: 20ms
pagination:
  record_contract: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
  abi: '[{"name":"count","type":"function","inputs":[],"outputs":[{"name":"","type":"uint256"}]},{"name":"records","type":"function","inputs":[{"name":"id","type":"uint256"}],"outputs":[{"name":"owner","type":"address"},{"name":"amount","type":"uint256"},{"name":"status","type":"uint8"}]}]'
  status_field: "status"
  terminal_statuses: [2]
`

// startLedger serves chain on one endpoint, and a node on the wrong chain on another.
// It returns the path of a config file listing both.
func startLedger(t *testing.T, chain *chaintest.Chain) string {
	t.Helper()

	wrongChain := ledgertest.NewServer(ledgertest.Node(5, 100, nil))
	t.Cleanup(wrongChain.Close)
	server := ledgertest.NewServer(chain.Handler())
	t.Cleanup(server.Close)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(configTemplate, wrongChain.URL, server.URL)), 0644))
	return path
}

func newTestChain() *chaintest.Chain {
	chain := chaintest.NewChain(testChainID, 100)
	chain.DeployMulticall()
	chain.Deploy(multicall.DefaultAddress, chaintest.EthBalances(map[common.Address]*big.Int{
		alice: big.NewInt(1_000),
	}))
	chain.Deploy(recordStore, chaintest.NewRecordStore(
		chaintest.Record{Owner: alice, Amount: big.NewInt(10), Status: 2},
		chaintest.Record{Owner: alice, Amount: big.NewInt(20), Status: 1},
	).Contract())
	return chain
}

// run executes ledgerctl with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout bytes.Buffer
	rootCmd := NewRootCmd()
	rootCmd.SetArgs(append(args, "--env-file", ""))
	rootCmd.SetOut(&stdout)
	// Logs are written concurrently, so they are not captured.
	rootCmd.SetErr(io.Discard)

	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestEndpoints(t *testing.T) {
	configPath := startLedger(t, newTestChain())

	stdout, err := run(t, "endpoints", "--config", configPath)
	require.NoError(t, err)

	var endpoints []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &endpoints))
	require.Len(t, endpoints, 1)
	require.EqualValues(t, testChainID, endpoints[0]["last_chain_id"])
	require.Equal(t, true, endpoints[0]["current"])
}

func TestEndpoints_MissingConfig(t *testing.T) {
	_, err := run(t, "endpoints", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestBalance(t *testing.T) {
	configPath := startLedger(t, newTestChain())
	bob := common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	stdout, err := run(t, "balance", alice.Hex(), bob.Hex(), "--config", configPath)
	require.NoError(t, err)

	var balances []balanceOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &balances))
	require.Equal(t, []balanceOutput{
		{Address: alice, Wei: "1000"},
		{Address: bob, Wei: "0"},
	}, balances)
}

func TestBalance_InvalidAddress(t *testing.T) {
	_, err := run(t, "balance", "not-an-address")
	require.ErrorContains(t, err, `invalid address "not-an-address"`)
}

func TestRecords(t *testing.T) {
	configPath := startLedger(t, newTestChain())

	tests := []struct {
		name        string
		args        []string
		expectedIDs []uint64
	}{
		{
			name:        "first page",
			args:        []string{"--page", "0", "--page-size", "10"},
			expectedIDs: []uint64{1, 0},
		},
		{
			name:        "window clamped to existing records",
			args:        []string{"--window", "1..50"},
			expectedIDs: []uint64{1},
		},
		{
			name:        "page past the oldest record",
			args:        []string{"--page", "5", "--page-size", "10"},
			expectedIDs: []uint64{},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			stdout, err := run(t, append([]string{"records", "--config", configPath}, test.args...)...)
			require.NoError(t, err)

			var records []struct {
				ID     uint64         `json:"id"`
				Record map[string]any `json:"record"`
			}
			require.NoError(t, json.Unmarshal([]byte(stdout), &records))

			ids := make([]uint64, len(records))
			for i, record := range records {
				ids[i] = record.ID
				require.Contains(t, record.Record, "owner")
			}
			require.Equal(t, test.expectedIDs, ids)
		})
	}
}

func TestRecords_WindowAndPageAreExclusive(t *testing.T) {
	_, err := run(t, "records", "--window", "0..1", "--page", "1")
	require.ErrorContains(t, err, "mutually exclusive")
}

func TestSend(t *testing.T) {
	rawTx, handle := signedTransfer(t)

	chain := newTestChain()
	chain.HandleMethod("eth_sendRawTransaction", func(context.Context, string, json.RawMessage) (any, error) {
		return handle, nil
	})
	chain.HandleMethod("eth_getTransactionReceipt", func(context.Context, string, json.RawMessage) (any, error) {
		return map[string]any{
			"transactionHash":   handle,
			"blockNumber":       "0x65",
			"gasUsed":           "0x5208",
			"effectiveGasPrice": "0x3b9aca00",
			"status":            "0x1",
		}, nil
	})
	configPath := startLedger(t, chain)

	stdout, err := run(t, "send", "--raw-tx", rawTx, "--name", "transfer", "--config", configPath)
	require.NoError(t, err)

	var output receiptOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &output))
	require.Equal(t, "confirmed", output.Outcome)
	require.Equal(t, "transfer", output.Name)
	require.Equal(t, handle, output.Handle)
	require.EqualValues(t, 0x65, output.BlockNumber)
}

func TestSend_MalformedTransaction(t *testing.T) {
	configPath := startLedger(t, newTestChain())

	stdout, err := run(t, "send", "--raw-tx", "0x0102", "--config", configPath)
	require.Error(t, err)

	var output receiptOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &output))
	require.Equal(t, "submission_failed", output.Outcome)
}

func TestSend_InvalidHex(t *testing.T) {
	_, err := run(t, "send", "--raw-tx", "xyz")
	require.ErrorContains(t, err, "invalid --raw-tx")
}

func TestResume_EmptyJournal(t *testing.T) {
	configPath := startLedger(t, newTestChain())

	stdout, err := run(t, "resume", "--config", configPath)
	require.NoError(t, err)
	require.JSONEq(t, "[]", stdout)
}

func TestEnvFile(t *testing.T) {
	configPath := startLedger(t, newTestChain())
	config, err := os.ReadFile(configPath)
	require.NoError(t, err)

	// The config reads its chain ID from the env file.
	templated := bytes.Replace(config, []byte("chain_id: 1"), []byte("chain_id: ${TEST_LEDGERCTL_CHAIN_ID}"), 1)
	require.NoError(t, os.WriteFile(configPath, templated, 0644))

	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("TEST_LEDGERCTL_CHAIN_ID=1\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("TEST_LEDGERCTL_CHAIN_ID") })

	var stdout bytes.Buffer
	rootCmd := NewRootCmd()
	rootCmd.SetArgs([]string{"endpoints", "--config", configPath, "--env-file", envFile})
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(io.Discard)
	require.NoError(t, rootCmd.Execute())

	var endpoints []map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &endpoints))
	require.Len(t, endpoints, 1)
}

func TestEnvFile_ExplicitMissingFile(t *testing.T) {
	rootCmd := NewRootCmd()
	rootCmd.SetArgs([]string{"endpoints", "--env-file", filepath.Join(t.TempDir(), "missing.env")})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(io.Discard)
	require.ErrorContains(t, rootCmd.Execute(), "loading env file")
}

// signedTransfer returns a hex-encoded signed transaction and its hash.
func signedTransfer(t *testing.T) (string, common.Hash) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	tx, err := types.SignNewTx(key, types.LatestSignerForChainID(big.NewInt(testChainID)), &types.DynamicFeeTx{
		ChainID:   big.NewInt(testChainID),
		Nonce:     0,
		GasTipCap: big.NewInt(1_000_000_000),
		GasFeeCap: big.NewInt(2_000_000_000),
		Gas:       21_000,
		To:        &alice,
		Value:     big.NewInt(1),
	})
	require.NoError(t, err)

	rawTx, err := tx.MarshalBinary()
	require.NoError(t, err)
	return hexutil.Encode(rawTx), tx.Hash()
}

func TestLogLevelOverride_Invalid(t *testing.T) {
	configPath := startLedger(t, newTestChain())

	_, err := run(t, "endpoints", "--config", configPath, "--log-level", "verbose")
	require.ErrorContains(t, err, `invalid log level "verbose"`)
}
