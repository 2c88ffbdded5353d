package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Settings keeps all configuration options.
// Everything comes from the environment (optionally via .env); there are no
// CLI flags.
type Settings struct {
	RPCURL       string
	ChainID      int64 // 0 means "ask the node"
	FunderKeyHex string
	HolderKeyHex string
	TokenAddress string

	CycleInterval time.Duration
	ConfirmWait   time.Duration
	MetricsAddr   string
}

// Load reads settings from environment supporting both UPPER_CASE and lower_case keys.
func Load() Settings {
	get := func(keys []string, def string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				return v
			}
		}
		return def
	}
	getInt64 := func(keys []string, def int64) int64 {
		s := get(keys, "")
		if s == "" {
			return def
		}
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return n
		}
		return def
	}
	getDuration := func(keys []string, def time.Duration) time.Duration {
		s := get(keys, "")
		if s == "" {
			return def
		}
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			return d
		}
		return def
	}

	st := Settings{}
	st.RPCURL = get([]string{"rpc_url", "RPC_URL"}, "https://mainnet.optimism.io")
	st.ChainID = getInt64([]string{"chain_id", "CHAIN_ID"}, 10)
	st.FunderKeyHex = get([]string{"funder_private_key", "FUNDER_PRIVATE_KEY"}, "")
	st.HolderKeyHex = get([]string{"holder_private_key", "HOLDER_PRIVATE_KEY"}, "")
	st.TokenAddress = get([]string{"token_address", "TOKEN_ADDRESS"}, "")

	st.CycleInterval = getDuration([]string{"cycle_interval", "CYCLE_INTERVAL"}, time.Second)
	st.ConfirmWait = getDuration([]string{"confirm_wait", "CONFIRM_WAIT"}, time.Second)
	st.MetricsAddr = get([]string{"metrics_addr", "METRICS_ADDR"}, "")

	return st
}

// Validate checks that everything needed to sign and broadcast is present.
func (st Settings) Validate() error {
	if st.RPCURL == "" {
		return errors.New("RPC_URL is empty")
	}
	if strings.TrimSpace(st.FunderKeyHex) == "" {
		return errors.New("FUNDER_PRIVATE_KEY is empty")
	}
	if strings.TrimSpace(st.HolderKeyHex) == "" {
		return errors.New("HOLDER_PRIVATE_KEY is empty")
	}
	if !common.IsHexAddress(st.TokenAddress) {
		return errors.Errorf("TOKEN_ADDRESS %q is not a valid address", st.TokenAddress)
	}
	return nil
}

// MaskHex shortens a hex secret for display.
func MaskHex(h string) string {
	h = strings.TrimSpace(h)
	if len(h) <= 10 {
		return "***"
	}
	return h[:6] + "…" + h[len(h)-4:]
}
