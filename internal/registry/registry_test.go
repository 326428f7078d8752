package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pool-ledger-lab/internal/domain"
	"pool-ledger-lab/internal/metadata/stub"
	"pool-ledger-lab/internal/storage/memory"
)

const (
	poolID = "0xa96a65c051bf88b4095ee1f2451c2a9d43f53ae2"
	coin0  = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	coin1  = "0xe95a203b1a91a908f9b9ce46459d101078c2c3cb"
	coin2  = "0x9559aaa82d9649c7a7b220e7c461d2e74c9a3593"
)

func TestDiscover_StopsAtFirstFailure(t *testing.T) {
	provider := stub.NewProvider()
	provider.CoinsByPool[poolID] = []string{coin0, coin1}

	reg := New(provider, memory.NewPoolStore(), Config{}, nil)
	coins, err := reg.Discover(context.Background(), poolID)
	require.NoError(t, err)
	assert.Equal(t, []string{coin0, coin1}, coins)
}

func TestDiscover_StopsAtZeroSentinel(t *testing.T) {
	provider := stub.NewProvider()
	provider.CoinsByPool[poolID] = []string{coin0, domain.ZeroAddress, coin2}

	reg := New(provider, memory.NewPoolStore(), Config{}, nil)
	coins, err := reg.Discover(context.Background(), poolID)
	require.NoError(t, err)
	assert.Equal(t, []string{coin0}, coins, "zero address terminates the probe")
}

func TestDiscover_SkipsMalformedEntries(t *testing.T) {
	provider := stub.NewProvider()
	provider.CoinsByPool[poolID] = []string{coin0, "0xnot-an-address", coin2}

	reg := New(provider, memory.NewPoolStore(), Config{}, nil)
	coins, err := reg.Discover(context.Background(), poolID)
	require.NoError(t, err)
	assert.Equal(t, []string{coin0, coin2}, coins, "malformed entry skipped, probe continues")
}

func TestDiscover_BoundedProbe(t *testing.T) {
	provider := stub.NewProvider()
	many := make([]string, 12)
	for i := range many {
		many[i] = coin0
	}
	provider.CoinsByPool[poolID] = many

	reg := New(provider, memory.NewPoolStore(), Config{MaxProbeIndex: 3}, nil)
	coins, err := reg.Discover(context.Background(), poolID)
	require.NoError(t, err)
	assert.Len(t, coins, 3)
}

func TestEnsure_MaterializesAbsentPool(t *testing.T) {
	provider := stub.NewProvider()
	provider.CoinsByPool[poolID] = []string{coin0, coin1}
	store := memory.NewPoolStore()

	reg := New(provider, store, Config{LPTokens: map[string]string{poolID: coin2}}, nil)
	pool, err := reg.Ensure(context.Background(), poolID, 13000000)
	require.NoError(t, err)
	assert.Equal(t, poolID, pool.ID)
	assert.Equal(t, []string{coin0, coin1}, pool.Coins)
	assert.Equal(t, coin2, pool.LPToken)
	assert.Equal(t, int64(13000000), pool.CreatedAtBlock)

	persisted, err := store.Get(context.Background(), poolID)
	require.NoError(t, err)
	assert.Equal(t, pool.Coins, persisted.Coins)
}

func TestEnsure_KeepsValidPoolWithoutOverwrite(t *testing.T) {
	provider := stub.NewProvider()
	provider.CoinsByPool[poolID] = []string{coin0, coin1, coin2}
	store := memory.NewPoolStore()

	// Pre-existing valid 2-token record stays untouched when overwrite is off,
	// even though a fresh probe would now find 3 coins.
	existing := &domain.Pool{ID: poolID, Coins: []string{coin0, coin1}, CreatedAtBlock: 1}
	require.NoError(t, store.Replace(context.Background(), existing))

	reg := New(provider, store, Config{}, nil)
	pool, err := reg.Ensure(context.Background(), poolID, 2)
	require.NoError(t, err)
	assert.Len(t, pool.Coins, 2)
}

func TestEnsure_OverwritePolicyReplacesWholesale(t *testing.T) {
	// Scenario: probing found 2 valid coins and a failure at index 2, then a
	// later run under an active overwrite policy finds 3 valid indices.
	provider := stub.NewProvider()
	provider.CoinsByPool[poolID] = []string{coin0, coin1}
	store := memory.NewPoolStore()

	reg := New(provider, store, Config{}, nil)
	pool, err := reg.Ensure(context.Background(), poolID, 100)
	require.NoError(t, err)
	require.Len(t, pool.Coins, 2)

	provider.CoinsByPool[poolID] = []string{coin0, coin1, coin2}

	regOverwrite := New(provider, store, Config{Overwrite: true}, nil)
	pool, err = regOverwrite.Ensure(context.Background(), poolID, 200)
	require.NoError(t, err)
	assert.Equal(t, []string{coin0, coin1, coin2}, pool.Coins)
	assert.Equal(t, int64(100), pool.CreatedAtBlock, "creation block survives replacement")
}

func TestEnsure_ReplacesInvalidRecord(t *testing.T) {
	provider := stub.NewProvider()
	provider.CoinsByPool[poolID] = []string{coin0, coin1}
	store := memory.NewPoolStore()

	// Structurally invalid record: zero identity inside the coin list.
	bad := &domain.Pool{ID: poolID, Coins: []string{coin0, domain.ZeroAddress}}
	require.NoError(t, store.Replace(context.Background(), bad))

	reg := New(provider, store, Config{}, nil)
	pool, err := reg.Ensure(context.Background(), poolID, 300)
	require.NoError(t, err)
	assert.Equal(t, []string{coin0, coin1}, pool.Coins)
}

func TestVerify_ReplacesOnCountMismatch(t *testing.T) {
	// A partial probe persisted a valid 2-token record; the pool actually has
	// 3 coins. Ensure keeps the stale record, Verify replaces it.
	provider := stub.NewProvider()
	provider.CoinsByPool[poolID] = []string{coin0, coin1, coin2}
	store := memory.NewPoolStore()

	stale := &domain.Pool{ID: poolID, Coins: []string{coin0, coin1}, CreatedAtBlock: 100}
	require.NoError(t, store.Replace(context.Background(), stale))

	reg := New(provider, store, Config{}, nil)

	pool, err := reg.Ensure(context.Background(), poolID, 200)
	require.NoError(t, err)
	require.Len(t, pool.Coins, 2, "valid record short-circuits without probing")

	pool, replaced, err := reg.Verify(context.Background(), poolID)
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, []string{coin0, coin1, coin2}, pool.Coins)
	assert.Equal(t, int64(100), pool.CreatedAtBlock, "creation block survives replacement")
}

func TestVerify_KeepsMatchingRecord(t *testing.T) {
	provider := stub.NewProvider()
	provider.CoinsByPool[poolID] = []string{coin0, coin1}
	store := memory.NewPoolStore()

	existing := &domain.Pool{ID: poolID, Coins: []string{coin0, coin1}, CreatedAtBlock: 100}
	require.NoError(t, store.Replace(context.Background(), existing))

	reg := New(provider, store, Config{}, nil)
	pool, replaced, err := reg.Verify(context.Background(), poolID)
	require.NoError(t, err)
	assert.False(t, replaced)
	assert.Equal(t, []string{coin0, coin1}, pool.Coins)
}

func TestVerify_KeepsRecordWhenProbeFindsNothing(t *testing.T) {
	provider := stub.NewProvider() // every probe reverts
	store := memory.NewPoolStore()

	existing := &domain.Pool{ID: poolID, Coins: []string{coin0, coin1}, CreatedAtBlock: 100}
	require.NoError(t, store.Replace(context.Background(), existing))

	reg := New(provider, store, Config{}, nil)
	pool, replaced, err := reg.Verify(context.Background(), poolID)
	require.NoError(t, err)
	assert.False(t, replaced)
	assert.Equal(t, []string{coin0, coin1}, pool.Coins)
}

func TestEnsure_NoCoins(t *testing.T) {
	provider := stub.NewProvider() // no pool configured: every probe reverts

	reg := New(provider, memory.NewPoolStore(), Config{}, nil)
	_, err := reg.Ensure(context.Background(), poolID, 1)
	assert.True(t, errors.Is(err, ErrNoCoins))
}
