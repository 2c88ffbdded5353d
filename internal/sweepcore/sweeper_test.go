package sweepcore_test

import (
	"bytes"
	"context"
	"math"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayuwidayadi321/op-sweeper/internal/sweepcore"
)

// Well-known hardhat test keys.
const (
	holderKeyHex = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	funderKeyHex = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

var (
	testToken   = common.HexToAddress("0xef4461891dfb3ac8572ccf7c794664a8dd927945")
	testChainID = big.NewInt(10)
	gwei        = big.NewInt(1_000_000_000)
)

type fakeBackend struct {
	mu            sync.Mutex
	ethBalances   map[common.Address]*big.Int
	tokenBalances map[common.Address]*big.Int
	symbol        string
	decimals      uint8
	gasPrice      *big.Int
	nonces        map[common.Address]uint64
	sent          []*types.Transaction
	sendErr       error
	callErr       error
	rawReturns    map[string][]byte // by selector hex, overrides the default answer
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		ethBalances:   map[common.Address]*big.Int{},
		tokenBalances: map[common.Address]*big.Int{},
		symbol:        "SWEEP",
		decimals:      18,
		gasPrice:      new(big.Int).Mul(big.NewInt(2), gwei),
		nonces:        map[common.Address]uint64{},
	}
}

func (f *fakeBackend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.ethBalances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeBackend) NonceAt(_ context.Context, account common.Address, _ *big.Int) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonces[account], nil
}

func (f *fakeBackend) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}
	data := msg.Data
	if len(data) >= 4 {
		if ret, ok := f.rawReturns[common.Bytes2Hex(data[:4])]; ok {
			return ret, nil
		}
	}
	switch {
	case bytes.HasPrefix(data, common.FromHex("0x70a08231")): // balanceOf
		owner := common.BytesToAddress(data[4:])
		b := f.tokenBalances[owner]
		if b == nil {
			b = big.NewInt(0)
		}
		return common.LeftPadBytes(b.Bytes(), 32), nil
	case bytes.HasPrefix(data, common.FromHex("0x95d89b41")): // symbol
		return encodeABIString(f.symbol), nil
	case bytes.HasPrefix(data, common.FromHex("0x313ce567")): // decimals
		return common.LeftPadBytes([]byte{f.decimals}, 32), nil
	}
	return nil, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) sentTxs() []*types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.Transaction(nil), f.sent...)
}

func encodeABIString(s string) []byte {
	out := make([]byte, 0, 96)
	out = append(out, common.LeftPadBytes(big.NewInt(32).Bytes(), 32)...)
	out = append(out, common.LeftPadBytes(big.NewInt(int64(len(s))).Bytes(), 32)...)
	padded := make([]byte, (len(s)+31)/32*32)
	copy(padded, s)
	return append(out, padded...)
}

func newTestSweeper(t *testing.T, eth *fakeBackend) (*sweepcore.Sweeper, *bytes.Buffer) {
	t.Helper()
	funder, err := sweepcore.AccountFromHex(funderKeyHex)
	require.NoError(t, err)
	holder, err := sweepcore.AccountFromHex(holderKeyHex)
	require.NoError(t, err)
	out := &bytes.Buffer{}
	s, err := sweepcore.New(eth, sweepcore.Params{
		ChainID:       testChainID,
		Funder:        funder,
		Holder:        holder,
		Token:         testToken,
		CycleInterval: time.Millisecond,
		ConfirmWait:   time.Millisecond,
		Out:           out,
		Log:           zerolog.Nop(),
	})
	require.NoError(t, err)
	return s, out
}

func mustAddr(t *testing.T, keyHex string) common.Address {
	t.Helper()
	acc, err := sweepcore.AccountFromHex(keyHex)
	require.NoError(t, err)
	return acc.Address()
}

func TestSendGasFeeInsufficientBalance(t *testing.T) {
	eth := newFakeBackend()
	s, _ := newTestSweeper(t, eth)

	// required = 150000 * 2 gwei = 0.0003 ETH; funder has 0.0001 ETH.
	eth.ethBalances[mustAddr(t, funderKeyHex)] = big.NewInt(100_000_000_000_000)

	_, _, err := s.SendGasFee(context.Background())
	require.Error(t, err)

	var insufficient *sweepcore.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, big.NewInt(200_000_000_000_000), insufficient.Shortfall)
	assert.Equal(t, big.NewInt(300_000_000_000_000), insufficient.Required)
	assert.Contains(t, err.Error(), "0.00020000")
	assert.Contains(t, err.Error(), "0.00030000")
	assert.Empty(t, eth.sentTxs(), "nothing may be broadcast on insufficient balance")
}

func TestSendGasFeeBroadcasts(t *testing.T) {
	eth := newFakeBackend()
	s, _ := newTestSweeper(t, eth)

	funderAddr := mustAddr(t, funderKeyHex)
	holderAddr := mustAddr(t, holderKeyHex)
	eth.ethBalances[funderAddr] = big.NewInt(1_000_000_000_000_000_000) // 1 ETH
	eth.nonces[funderAddr] = 7

	hash, ethSent, err := s.SendGasFee(context.Background())
	require.NoError(t, err)

	required := new(big.Int).Mul(big.NewInt(150_000), eth.gasPrice)
	assert.Equal(t, required, ethSent)

	sent := eth.sentTxs()
	require.Len(t, sent, 1)
	tx := sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, holderAddr, *tx.To())
	assert.Equal(t, required, tx.Value())
	assert.Equal(t, uint64(21_000), tx.Gas())
	assert.Equal(t, eth.gasPrice, tx.GasPrice())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Empty(t, tx.Data())

	sender, err := types.Sender(types.LatestSignerForChainID(testChainID), tx)
	require.NoError(t, err)
	assert.Equal(t, funderAddr, sender, "funding tx must be signed by the funder")
}

func TestTransferAllTokensEmptyBalance(t *testing.T) {
	eth := newFakeBackend()
	s, _ := newTestSweeper(t, eth)

	_, err := s.TransferAllTokens(context.Background())
	require.ErrorIs(t, err, sweepcore.ErrEmptyBalance)
	assert.Empty(t, eth.sentTxs())
}

func TestTransferAllTokensSweepsFullBalance(t *testing.T) {
	eth := newFakeBackend()
	s, _ := newTestSweeper(t, eth)

	funderAddr := mustAddr(t, funderKeyHex)
	holderAddr := mustAddr(t, holderKeyHex)
	eth.tokenBalances[holderAddr] = big.NewInt(500)
	eth.nonces[holderAddr] = 3

	hash, err := s.TransferAllTokens(context.Background())
	require.NoError(t, err)

	sent := eth.sentTxs()
	require.Len(t, sent, 1)
	tx := sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, testToken, *tx.To())
	assert.Zero(t, tx.Value().Sign())
	assert.Equal(t, uint64(150_000), tx.Gas())
	assert.Equal(t, uint64(3), tx.Nonce())
	assert.Equal(t, sweepcore.EncodeERC20Transfer(funderAddr, big.NewInt(500)), tx.Data())

	sender, err := types.Sender(types.LatestSignerForChainID(testChainID), tx)
	require.NoError(t, err)
	assert.Equal(t, holderAddr, sender, "sweep tx must be signed by the holder")
}

func TestTokenSymbolSurvivesMalformedReturns(t *testing.T) {
	hugeWord := func(v uint64) []byte {
		return common.LeftPadBytes(new(big.Int).SetUint64(v).Bytes(), 32)
	}
	tests := []struct {
		name string
		ret  []byte
	}{
		{"offset word near max uint64", append(hugeWord(math.MaxUint64-31), hugeWord(5)...)},
		{"offset past end of payload", append(hugeWord(96), hugeWord(5)...)},
		{"length word near max uint64", append(hugeWord(32), hugeWord(math.MaxUint64)...)},
		{"length past end of payload", append(hugeWord(32), hugeWord(33)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eth := newFakeBackend()
			eth.rawReturns = map[string][]byte{"95d89b41": tt.ret}
			s, _ := newTestSweeper(t, eth)

			assert.NotPanics(t, func() {
				_, err := s.TokenSymbol(context.Background())
				assert.NoError(t, err)
			})
		})
	}
}

func TestTokenDecimalsEmptyReturnIsError(t *testing.T) {
	eth := newFakeBackend()
	eth.rawReturns = map[string][]byte{"313ce567": {}}
	s, _ := newTestSweeper(t, eth)

	_, err := s.TokenDecimals(context.Background())
	assert.Error(t, err)
}

func TestCallRetryBackoffHonoursCancellation(t *testing.T) {
	eth := newFakeBackend()
	eth.callErr = errors.New("Too Many Requests")
	s, _ := newTestSweeper(t, eth)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := s.TokenSymbol(ctx)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 150*time.Millisecond,
		"cancelled context must cut the retry backoff short")
}

func TestCycleIdleWhenNoTokens(t *testing.T) {
	eth := newFakeBackend()
	s, out := newTestSweeper(t, eth)

	s.ExecuteCycle(context.Background())

	assert.Empty(t, eth.sentTxs(), "idle cycle must not broadcast")
	assert.Contains(t, out.String(), "No tokens to transfer (balance = 0)")
	assert.NotContains(t, out.String(), "ERROR")
}

func TestCycleSendsGasThenSweep(t *testing.T) {
	eth := newFakeBackend()
	s, out := newTestSweeper(t, eth)

	funderAddr := mustAddr(t, funderKeyHex)
	holderAddr := mustAddr(t, holderKeyHex)
	eth.ethBalances[funderAddr] = big.NewInt(1_000_000_000_000_000_000)
	eth.tokenBalances[holderAddr] = big.NewInt(500)

	s.ExecuteCycle(context.Background())

	sent := eth.sentTxs()
	require.Len(t, sent, 2)
	assert.Equal(t, holderAddr, *sent[0].To(), "gas funding goes out first")
	assert.Empty(t, sent[0].Data())
	assert.Equal(t, testToken, *sent[1].To(), "token sweep follows")
	assert.Equal(t, sweepcore.EncodeERC20Transfer(funderAddr, big.NewInt(500)), sent[1].Data())

	report := out.String()
	assert.Contains(t, report, "[1/3]")
	assert.Contains(t, report, "[2/3]")
	assert.Contains(t, report, "[3/3]")
	assert.Contains(t, report, "FINAL RESULT")
	assert.NotContains(t, report, "ERROR")
}

func TestCycleReportsInsufficientFunds(t *testing.T) {
	eth := newFakeBackend()
	s, out := newTestSweeper(t, eth)

	eth.tokenBalances[mustAddr(t, holderKeyHex)] = big.NewInt(500)
	// funder has nothing.

	s.ExecuteCycle(context.Background())

	assert.Empty(t, eth.sentTxs())
	assert.Contains(t, out.String(), "ERROR [insufficient_funds]")
	assert.Contains(t, out.String(), "0.00030000") // exact required amount
}

func TestCycleSwallowsSendErrors(t *testing.T) {
	eth := newFakeBackend()
	s, out := newTestSweeper(t, eth)

	eth.ethBalances[mustAddr(t, funderKeyHex)] = big.NewInt(1_000_000_000_000_000_000)
	eth.tokenBalances[mustAddr(t, holderKeyHex)] = big.NewInt(500)
	eth.sendErr = errors.New("connection reset")

	s.ExecuteCycle(context.Background())
	assert.Contains(t, out.String(), "ERROR [transport]")

	// The failure stays inside the cycle; the next one runs normally.
	eth.mu.Lock()
	eth.sendErr = nil
	eth.mu.Unlock()
	s.ExecuteCycle(context.Background())
	assert.Len(t, eth.sentTxs(), 2)
}

func TestRunContinuesAfterFailedCycles(t *testing.T) {
	eth := newFakeBackend()
	s, out := newTestSweeper(t, eth)

	eth.tokenBalances[mustAddr(t, holderKeyHex)] = big.NewInt(500)
	eth.sendErr = errors.New("boom")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	report := out.String()
	assert.Contains(t, report, "Starting cycle #1")
	assert.Contains(t, report, "Starting cycle #2")
	assert.Contains(t, report, "Goodbye")
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	eth := newFakeBackend()
	s, out := newTestSweeper(t, eth)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Run(ctx)

	assert.NotContains(t, out.String(), "Starting cycle")
	assert.Contains(t, out.String(), "Goodbye")
	assert.Empty(t, eth.sentTxs())
}
