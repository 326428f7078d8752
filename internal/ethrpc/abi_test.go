package ethrpc

import (
	"fmt"
	"math/big"
	"testing"
)

func TestSelector_KnownSignatures(t *testing.T) {
	tests := []struct {
		signature string
		want      string
	}{
		{"decimals()", "313ce567"},
		{"balanceOf(address)", "70a08231"},
		{"coins(uint256)", "c6610657"},
	}

	for _, tt := range tests {
		got := Selector(tt.signature)
		if got != tt.want {
			t.Errorf("Selector(%q) = %s, want %s", tt.signature, got, tt.want)
		}
	}
}

func TestEventTopic_KnownSignature(t *testing.T) {
	got := EventTopic("Transfer(address,address,uint256)")
	want := "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
	if got != want {
		t.Errorf("EventTopic = %s, want %s", got, want)
	}
}

func TestEncodeCall(t *testing.T) {
	got := EncodeCall("coins(uint256)", 2)
	want := "0xc6610657" +
		"0000000000000000000000000000000000000000000000000000000000000002"
	if got != want {
		t.Errorf("EncodeCall = %s, want %s", got, want)
	}

	if EncodeCall("decimals()") != "0x313ce567" {
		t.Errorf("EncodeCall without args should be the bare selector")
	}
}

func TestDecodeAddress(t *testing.T) {
	ret := "0x000000000000000000000000C02AAA39B223FE8D0A0E5C4F27EAD9083C756CC2"
	addr, err := DecodeAddress(ret)
	if err != nil {
		t.Fatalf("DecodeAddress: %v", err)
	}
	if addr != "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2" {
		t.Errorf("unexpected address: %s", addr)
	}

	if _, err := DecodeAddress("0x1234"); err == nil {
		t.Error("expected error for short return data")
	}
}

func TestDecodeUint64(t *testing.T) {
	ret := "0x" + fmt.Sprintf("%064x", 18)
	n, err := DecodeUint64(ret)
	if err != nil {
		t.Fatalf("DecodeUint64: %v", err)
	}
	if n != 18 {
		t.Errorf("expected 18, got %d", n)
	}
}

func TestDecodeScaledRate(t *testing.T) {
	// 1082940000000000000 raw is 1.08294 after the 10^18 scale.
	n := new(big.Int)
	n.SetString("1082940000000000000", 10)
	ret := "0x" + fmt.Sprintf("%064x", n)

	rate, err := DecodeScaledRate(ret)
	if err != nil {
		t.Fatalf("DecodeScaledRate: %v", err)
	}
	if rate.String() != "1.08294" {
		t.Errorf("expected 1.08294, got %s", rate.String())
	}
}

func TestDecodeScaledRate_Malformed(t *testing.T) {
	if _, err := DecodeScaledRate("0xzz"); err == nil {
		t.Error("expected error for malformed return data")
	}
}
