package idhash

import (
	"testing"
)

func TestComputeFlowID(t *testing.T) {
	tests := []struct {
		name       string
		txHash     string
		logIndex   int
		tokenIndex int
		want       string
	}{
		{
			name:       "basic flow",
			txHash:     "0xabcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789",
			logIndex:   7,
			tokenIndex: 1,
			want:       "abcdef012345-7-1",
		},
		{
			name:       "uppercase hash is lowercased",
			txHash:     "0xABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789",
			logIndex:   0,
			tokenIndex: 0,
			want:       "abcdef012345-0-0",
		},
		{
			name:       "hash without 0x prefix",
			txHash:     "deadbeefcafebabe0000000000000000000000000000000000000000000000ff",
			logIndex:   12,
			tokenIndex: 2,
			want:       "deadbeefcafe-12-2",
		},
		{
			name:       "short hash kept whole",
			txHash:     "0xabc",
			logIndex:   3,
			tokenIndex: 0,
			want:       "abc-3-0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeFlowID(tt.txHash, tt.logIndex, tt.tokenIndex)
			if got != tt.want {
				t.Errorf("ComputeFlowID() = %s, want %s", got, tt.want)
			}

			// Verify determinism: same inputs should produce same output
			got2 := ComputeFlowID(tt.txHash, tt.logIndex, tt.tokenIndex)
			if got != got2 {
				t.Errorf("ComputeFlowID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeFlowID_DifferentInputs(t *testing.T) {
	base := ComputeFlowID("0xabcdef0123456789", 1, 0)

	if base == ComputeFlowID("0xfedcba9876543210", 1, 0) {
		t.Error("Different tx hash should produce different id")
	}
	if base == ComputeFlowID("0xabcdef0123456789", 2, 0) {
		t.Error("Different log index should produce different id")
	}
	if base == ComputeFlowID("0xabcdef0123456789", 1, 1) {
		t.Error("Different token index should produce different id")
	}
}

func TestComputeRateID(t *testing.T) {
	got := ComputeRateID("0xE95A203B1a91a908F9B9CE46459d101078c2c3cb", 13325310)
	want := "0xe95a203b1a91a908f9b9ce46459d101078c2c3cb-13325310"
	if got != want {
		t.Errorf("ComputeRateID() = %s, want %s", got, want)
	}
}
