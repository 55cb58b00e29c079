package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

const wordSize = 32

// DefaultLiquidateSelector is liquidate(address,uint256) on the mock protocol.
var DefaultLiquidateSelector = [4]byte{0x26, 0xcd, 0xbe, 0x1a}

var getPositionSelector = selectorOf("getPosition(address)")

func selectorOf(signature string) [4]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	var s [4]byte
	copy(s[:], h.Sum(nil))
	return s
}

// AddressWord left-pads an address to one ABI word.
func AddressWord(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

// UintWord encodes v as a big-endian uint256 word. Negative or oversized values are truncated to the low 256 bits.
func UintWord(v *big.Int) common.Hash {
	if v == nil {
		return common.Hash{}
	}
	b := new(big.Int).Abs(v).Bytes()
	if len(b) > wordSize {
		b = b[len(b)-wordSize:]
	}
	return common.BytesToHash(b)
}

// EncodeCall concatenates a selector and ABI words.
func EncodeCall(selector [4]byte, words ...common.Hash) []byte {
	out := make([]byte, 0, len(selector)+len(words)*wordSize)
	out = append(out, selector[:]...)
	for _, w := range words {
		out = append(out, w.Bytes()...)
	}
	return out
}

// EncodeGetPosition builds getPosition(account) call data.
func EncodeGetPosition(account common.Address) []byte {
	return EncodeCall(getPositionSelector, AddressWord(account))
}

// DecodePosition decodes (uint256 collateral, uint256 debt, uint256 healthFactor).
func DecodePosition(ret []byte) (collateral, debt, healthFactor *big.Int, err error) {
	if len(ret) < 3*wordSize {
		return nil, nil, nil, fmt.Errorf("getPosition: %w: %d bytes", ErrShortReturn, len(ret))
	}
	collateral = new(big.Int).SetBytes(ret[0:wordSize])
	debt = new(big.Int).SetBytes(ret[wordSize : 2*wordSize])
	healthFactor = new(big.Int).SetBytes(ret[2*wordSize : 3*wordSize])
	return collateral, debt, healthFactor, nil
}
