package sweepcore

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dayuwidayadi321/op-sweeper/internal/metrics"
)

const (
	// transferGasEstimate sizes the funding amount and caps the sweep tx.
	transferGasEstimate uint64 = 150_000
	// fundingGasLimit is the limit actually placed on the funding tx.
	fundingGasLimit uint64 = 21_000

	displayPrecision = 8
	bannerWidth      = 50
)

// Backend is the slice of the node API the sweeper needs.
// *ethclient.Client satisfies it.
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Params configures a Sweeper.
type Params struct {
	ChainID *big.Int
	Funder  Account // pays gas, receives the swept tokens
	Holder  Account // holds and sends the token
	Token   common.Address

	CycleInterval time.Duration
	ConfirmWait   time.Duration

	Out     io.Writer
	Log     zerolog.Logger
	Metrics *metrics.Metrics
}

// Sweeper runs the fund-gas / sweep-tokens cycle against a single node.
type Sweeper struct {
	eth     Backend
	chainID *big.Int
	funder  Account
	holder  Account
	token   common.Address

	cycleInterval time.Duration
	confirmWait   time.Duration

	out     io.Writer
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// New builds a Sweeper, applying defaults for unset knobs.
func New(eth Backend, p Params) (*Sweeper, error) {
	if eth == nil {
		return nil, errors.New("nil backend")
	}
	if p.ChainID == nil || p.ChainID.Sign() <= 0 {
		return nil, errors.New("chain ID must be set")
	}
	if p.Funder.key == nil || p.Holder.key == nil {
		return nil, errors.New("both funder and holder accounts must be set")
	}
	if p.CycleInterval <= 0 {
		p.CycleInterval = time.Second
	}
	if p.ConfirmWait <= 0 {
		p.ConfirmWait = time.Second
	}
	if p.Out == nil {
		p.Out = os.Stdout
	}
	return &Sweeper{
		eth:           eth,
		chainID:       new(big.Int).Set(p.ChainID),
		funder:        p.Funder,
		holder:        p.Holder,
		token:         p.Token,
		cycleInterval: p.CycleInterval,
		confirmWait:   p.ConfirmWait,
		out:           p.Out,
		log:           p.Log,
		metrics:       p.Metrics,
	}, nil
}

// TokenBalance returns the raw token balance of owner (no decimal scaling).
func (s *Sweeper) TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	data := append(append([]byte{}, balanceOfSelector...), common.LeftPadBytes(owner.Bytes(), 32)...)
	ret, err := callWithRetry(ctx, s.eth, ethereum.CallMsg{To: &s.token, Data: data})
	if err != nil {
		return nil, wrapRPC("balanceOf", err)
	}
	if len(ret) == 0 {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(ret), nil
}

// TokenSymbol returns the token's display symbol.
func (s *Sweeper) TokenSymbol(ctx context.Context) (string, error) {
	ret, err := callWithRetry(ctx, s.eth, ethereum.CallMsg{To: &s.token, Data: symbolSelector})
	if err != nil {
		return "", wrapRPC("symbol", err)
	}
	return strings.TrimSpace(decodeABIString(ret)), nil
}

// TokenDecimals returns the token's decimals() value. It is reported at
// startup only; formatting always divides by 10^18.
func (s *Sweeper) TokenDecimals(ctx context.Context) (uint8, error) {
	ret, err := callWithRetry(ctx, s.eth, ethereum.CallMsg{To: &s.token, Data: decimalsSelector})
	if err != nil {
		return 0, wrapRPC("decimals", err)
	}
	if len(ret) == 0 {
		return 0, errors.New("decimals() returned no data")
	}
	return ret[len(ret)-1], nil
}

// EthBalance returns the native balance of addr in wei.
func (s *Sweeper) EthBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	bal, err := s.eth.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, wrapRPC("eth balance", err)
	}
	return bal, nil
}

func (s *Sweeper) gasPrice(ctx context.Context) (*big.Int, error) {
	gp, err := s.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, wrapRPC("gas price", err)
	}
	return gp, nil
}

// SendGasFee moves exactly transferGasEstimate * gasPrice of ETH from the
// funder to the holder so the holder can pay for the sweep. It fails without
// broadcasting when the funder cannot cover that amount.
func (s *Sweeper) SendGasFee(ctx context.Context) (common.Hash, *big.Int, error) {
	gasPrice, err := s.gasPrice(ctx)
	if err != nil {
		return common.Hash{}, nil, err
	}
	required := new(big.Int).Mul(new(big.Int).SetUint64(transferGasEstimate), gasPrice)

	balance, err := s.EthBalance(ctx, s.funder.Address())
	if err != nil {
		return common.Hash{}, nil, err
	}
	if balance.Cmp(required) < 0 {
		return common.Hash{}, nil, &InsufficientFundsError{
			Address:   s.funder.Address(),
			Required:  required,
			Balance:   balance,
			Shortfall: new(big.Int).Sub(required, balance),
		}
	}

	nonce, err := s.eth.NonceAt(ctx, s.funder.Address(), nil)
	if err != nil {
		return common.Hash{}, nil, wrapRPC("funder nonce", err)
	}
	tx := buildLegacyTx(nonce, s.holder.Address(), required, fundingGasLimit, gasPrice, nil)
	signed, err := signTx(tx, s.chainID, s.funder.key)
	if err != nil {
		return common.Hash{}, nil, errors.Wrap(err, "sign gas fee tx")
	}
	if err := s.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, nil, wrapRPC("send gas fee tx", err)
	}
	if s.metrics != nil {
		s.metrics.GasFeeTxTotal.Inc()
	}
	s.log.Info().
		Str("tx", signed.Hash().Hex()).
		Str("eth", FormatEthAmount(required, displayPrecision)).
		Msg("gas fee sent")
	return signed.Hash(), required, nil
}

// TransferAllTokens sweeps the holder's entire token balance to the funder.
// It fails without broadcasting when the balance is zero.
func (s *Sweeper) TransferAllTokens(ctx context.Context) (common.Hash, error) {
	balance, err := s.TokenBalance(ctx, s.holder.Address())
	if err != nil {
		return common.Hash{}, err
	}
	if balance.Sign() == 0 {
		return common.Hash{}, ErrEmptyBalance
	}

	gasPrice, err := s.gasPrice(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	nonce, err := s.eth.NonceAt(ctx, s.holder.Address(), nil)
	if err != nil {
		return common.Hash{}, wrapRPC("holder nonce", err)
	}

	calldata := EncodeERC20Transfer(s.funder.Address(), balance)
	tx := buildLegacyTx(nonce, s.token, big.NewInt(0), transferGasEstimate, gasPrice, calldata)
	signed, err := signTx(tx, s.chainID, s.holder.key)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "sign sweep tx")
	}
	if err := s.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, wrapRPC("send sweep tx", err)
	}
	if s.metrics != nil {
		s.metrics.SweepTxTotal.Inc()
	}
	s.log.Info().
		Str("tx", signed.Hash().Hex()).
		Str("amount", FormatTokenAmount(balance, displayPrecision)).
		Msg("token sweep sent")
	return signed.Hash(), nil
}

// PrintBalanceInfo writes the fixed-width balance report. Read-only.
func (s *Sweeper) PrintBalanceInfo(ctx context.Context) error {
	symbol, err := s.TokenSymbol(ctx)
	if err != nil {
		return err
	}
	holderToken, err := s.TokenBalance(ctx, s.holder.Address())
	if err != nil {
		return err
	}
	funderToken, err := s.TokenBalance(ctx, s.funder.Address())
	if err != nil {
		return err
	}
	holderEth, err := s.EthBalance(ctx, s.holder.Address())
	if err != nil {
		return err
	}
	funderEth, err := s.EthBalance(ctx, s.funder.Address())
	if err != nil {
		return err
	}

	s.banner("TOKEN BALANCE")
	fmt.Fprintf(s.out, "Token Symbol: %s\n", symbol)
	fmt.Fprintf(s.out, "Holder [%s]:\n", s.holder.Address().Hex())
	fmt.Fprintf(s.out, "  - Token: %s %s\n", FormatTokenAmount(holderToken, displayPrecision), symbol)
	fmt.Fprintf(s.out, "  - ETH:   %s ETH\n", FormatEthAmount(holderEth, displayPrecision))
	fmt.Fprintf(s.out, "Funder [%s]:\n", s.funder.Address().Hex())
	fmt.Fprintf(s.out, "  - Token: %s %s\n", FormatTokenAmount(funderToken, displayPrecision), symbol)
	fmt.Fprintf(s.out, "  - ETH:   %s ETH\n", FormatEthAmount(funderEth, displayPrecision))
	fmt.Fprintln(s.out, strings.Repeat("=", bannerWidth))
	return nil
}

func (s *Sweeper) banner(title string) {
	pad := (bannerWidth - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	fmt.Fprintln(s.out, "\n"+strings.Repeat("=", bannerWidth))
	fmt.Fprintln(s.out, strings.Repeat(" ", pad)+title)
	fmt.Fprintln(s.out, strings.Repeat("=", bannerWidth))
}
