package chain

import (
	"bytes"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestEncodeGetPosition(t *testing.T) {
	account := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	data := EncodeGetPosition(account)

	if len(data) != 4+32 {
		t.Fatalf("expected 36 bytes, got %d", len(data))
	}
	if !bytes.Equal(data[:4], getPositionSelector[:]) {
		t.Errorf("selector mismatch: %x", data[:4])
	}
	if !bytes.Equal(data[4:16], make([]byte, 12)) {
		t.Errorf("address not left-padded: %x", data[4:16])
	}
	if common.BytesToAddress(data[16:]) != account {
		t.Errorf("address mismatch: %x", data[16:])
	}
}

func TestEncodeCall_Liquidate(t *testing.T) {
	account := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	amount := new(big.Int).Mul(big.NewInt(8000), big.NewInt(1e18))

	data := EncodeCall(DefaultLiquidateSelector, AddressWord(account), UintWord(amount))
	if got := hex.EncodeToString(data[:4]); got != "26cdbe1a" {
		t.Errorf("expected selector 26cdbe1a, got %s", got)
	}
	if len(data) != 68 {
		t.Fatalf("expected 68 bytes, got %d", len(data))
	}
	if new(big.Int).SetBytes(data[36:]).Cmp(amount) != 0 {
		t.Errorf("amount word mismatch")
	}
}

func TestDecodePosition(t *testing.T) {
	ret := make([]byte, 96)
	big.NewInt(5).FillBytes(ret[0:32])
	big.NewInt(8000).FillBytes(ret[32:64])
	big.NewInt(80).FillBytes(ret[64:96])

	c, d, hf, err := DecodePosition(ret)
	if err != nil {
		t.Fatalf("DecodePosition: %v", err)
	}
	if c.Int64() != 5 || d.Int64() != 8000 || hf.Int64() != 80 {
		t.Errorf("unexpected values %s %s %s", c, d, hf)
	}
}

func TestDecodePosition_Short(t *testing.T) {
	_, _, _, err := DecodePosition(make([]byte, 64))
	if !errors.Is(err, ErrShortReturn) {
		t.Fatalf("expected ErrShortReturn, got %v", err)
	}
}

func TestUintWord_Nil(t *testing.T) {
	if UintWord(nil) != (common.Hash{}) {
		t.Error("nil should encode as zero word")
	}
}
