package sweepcore

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Account is a private key with its derived checksum address.
type Account struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// AccountFromHex parses a hex private key (with / without 0x) and derives its address.
func AccountFromHex(pkHex string) (Account, error) {
	h := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(pkHex), "0x"))
	if len(h) == 0 {
		return Account{}, errors.New("empty private key")
	}
	prv, err := gethcrypto.HexToECDSA(h)
	if err != nil {
		return Account{}, errors.Wrap(err, "bad private key")
	}
	return Account{key: prv, addr: gethcrypto.PubkeyToAddress(prv.PublicKey)}, nil
}

func (a Account) Address() common.Address { return a.addr }
