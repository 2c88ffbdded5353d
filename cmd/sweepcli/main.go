package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dayuwidayadi321/op-sweeper/internal/config"
	"github.com/dayuwidayadi321/op-sweeper/internal/metrics"
	"github.com/dayuwidayadi321/op-sweeper/internal/sweepcore"
)

func main() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		log.Fatal().Err(err).Str("rpc", cfg.RPCURL).Msg("dial RPC")
	}
	defer ec.Close()

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID <= 0 {
		chainID, err = ec.ChainID(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("chain id")
		}
	}

	funder, err := sweepcore.AccountFromHex(cfg.FunderKeyHex)
	if err != nil {
		log.Fatal().Err(err).Msg("funder key")
	}
	holder, err := sweepcore.AccountFromHex(cfg.HolderKeyHex)
	if err != nil {
		log.Fatal().Err(err).Msg("holder key")
	}

	printConfig(cfg, chainID, funder.Address(), holder.Address())

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m = metrics.New(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics listener stopped")
			}
		}()
	}

	sweeper, err := sweepcore.New(ec, sweepcore.Params{
		ChainID:       chainID,
		Funder:        funder,
		Holder:        holder,
		Token:         common.HexToAddress(cfg.TokenAddress),
		CycleInterval: cfg.CycleInterval,
		ConfirmWait:   cfg.ConfirmWait,
		Out:           os.Stdout,
		Log:           log.Logger,
		Metrics:       m,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("init sweeper")
	}

	// decimals() is reported here only; display formatting always assumes 18.
	if dec, err := sweeper.TokenDecimals(ctx); err != nil {
		log.Warn().Err(err).Msg("token decimals unavailable")
	} else {
		log.Info().Uint8("decimals", dec).Msg("token decimals")
	}

	fmt.Println("\nAutomatic token transfer started")
	fmt.Println("Press CTRL+C to stop")

	sweeper.Run(ctx)
}

func printConfig(cfg config.Settings, chainID *big.Int, funderAddr, holderAddr common.Address) {
	fmt.Println("=== CONFIG (.env) ===")
	fmt.Println("RPC_URL            :", cfg.RPCURL)
	fmt.Println("CHAIN_ID           :", chainID.String())
	fmt.Println("TOKEN_ADDRESS      :", common.HexToAddress(cfg.TokenAddress).Hex())
	fmt.Println("FUNDER_PRIVATE_KEY :", config.MaskHex(cfg.FunderKeyHex))
	fmt.Println("  -> Funder address:", funderAddr.Hex())
	fmt.Println("HOLDER_PRIVATE_KEY :", config.MaskHex(cfg.HolderKeyHex))
	fmt.Println("  -> Holder address:", holderAddr.Hex())
	fmt.Println("Cycle interval     :", cfg.CycleInterval)
	fmt.Println("Confirm wait       :", cfg.ConfirmWait)
	if cfg.MetricsAddr != "" {
		fmt.Println("Metrics            :", cfg.MetricsAddr)
	}
	fmt.Println("=====================")
}
