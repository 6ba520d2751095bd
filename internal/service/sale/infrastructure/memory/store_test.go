package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/domain/port"
)

func seedOffering(t *testing.T, s *Store, offeringID string, count int) []string {
	t.Helper()
	itemIDs := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		itemIDs = append(itemIDs, fmt.Sprintf("%s#%d", offeringID, i))
	}
	require.NoError(t, s.Prepare(context.Background(), offeringID, itemIDs))
	return itemIDs
}

func TestClaimOutcomeOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedOffering(t, s, "off-1", 1)
	s.SeedLucky("off-1", "alice")

	// 未中签的买家：即使有库存也被资格检查挡住
	outcome, _, err := s.Claim(ctx, "off-1", "mallory", 1)
	require.NoError(t, err)
	assert.Equal(t, port.ClaimNotQualified, outcome)

	// 中签买家抢到唯一一件
	outcome, itemID, err := s.Claim(ctx, "off-1", "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, port.ClaimSuccess, outcome)
	assert.Equal(t, "off-1#1", itemID)

	// 库存已为 0，但 alice 的再次抢购先触发限购检查
	outcome, _, err = s.Claim(ctx, "off-1", "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, port.ClaimLimitReached, outcome, "限购检查先于库存检查")
}

func TestClaimNoStock(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedOffering(t, s, "off-1", 1)
	s.SeedLucky("off-1", "alice", "bob")

	_, _, err := s.Claim(ctx, "off-1", "alice", 1)
	require.NoError(t, err)

	outcome, _, err := s.Claim(ctx, "off-1", "bob", 1)
	require.NoError(t, err)
	assert.Equal(t, port.ClaimNoStock, outcome)
}

func TestClaimInventoryCorrupted(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedOffering(t, s, "off-1", 2)
	s.SeedLucky("off-1", "alice")
	s.CorruptPool("off-1")

	_, _, err := s.Claim(ctx, "off-1", "alice", 1)
	assert.ErrorIs(t, err, port.ErrInventoryCorrupted)
}

func TestReleaseRestoresClaim(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedOffering(t, s, "off-1", 1)
	s.SeedLucky("off-1", "alice")

	_, itemID, err := s.Claim(ctx, "off-1", "alice", 1)
	require.NoError(t, err)

	outcome, err := s.Release(ctx, "off-1", "alice", itemID)
	require.NoError(t, err)
	assert.Equal(t, port.ReleaseSuccess, outcome)

	stock, err := s.Stock(ctx, "off-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stock)

	// 补偿后同一买家可以再次抢购，且拿回的是归还的那件
	outcome2, itemID2, err := s.Claim(ctx, "off-1", "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, port.ClaimSuccess, outcome2)
	assert.Equal(t, itemID, itemID2)
}

func TestReleaseWithoutClaim(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedOffering(t, s, "off-1", 1)

	outcome, err := s.Release(ctx, "off-1", "alice", "off-1#1")
	require.NoError(t, err)
	assert.Equal(t, port.ReleaseNothingToRelease, outcome)

	// 重复/伪造的补偿不能让库存超过发行量
	stock, err := s.Stock(ctx, "off-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stock)
}

func TestSelectOutcomes(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	// 无人登记
	outcome, selected, err := s.Select(ctx, "off-1", 10)
	require.NoError(t, err)
	assert.Equal(t, port.DrawNoParticipants, outcome)
	assert.Zero(t, selected)

	for i := 0; i < 5; i++ {
		added, err := s.Register(ctx, "off-2", fmt.Sprintf("buyer-%d", i))
		require.NoError(t, err)
		assert.True(t, added)
	}
	// 重复登记幂等
	added, err := s.Register(ctx, "off-2", "buyer-0")
	require.NoError(t, err)
	assert.False(t, added)

	// 目标数超过池大小时全员中签
	outcome, selected, err = s.Select(ctx, "off-2", 10)
	require.NoError(t, err)
	assert.Equal(t, port.DrawSelected, outcome)
	assert.Equal(t, 5, selected)

	eligible, err := s.EligibleCount(ctx, "off-2")
	require.NoError(t, err)
	assert.Equal(t, 5, eligible)

	// 开奖不可重入
	outcome, _, err = s.Select(ctx, "off-2", 10)
	require.NoError(t, err)
	assert.Equal(t, port.DrawAlreadyDone, outcome)
}

// 并发抢购下的守恒检查：
// 成功数 == 发行量，库存为 0，且每件藏品只被分配一次。
func TestConcurrentClaimConservation(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	const publishCount = 20
	const buyers = 100
	seedOffering(t, s, "off-1", publishCount)

	buyerIDs := make([]string, buyers)
	for i := range buyerIDs {
		buyerIDs[i] = fmt.Sprintf("buyer-%d", i)
	}
	s.SeedLucky("off-1", buyerIDs...)

	var wg sync.WaitGroup
	results := make([]port.ClaimOutcome, buyers)
	items := make([]string, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, itemID, err := s.Claim(ctx, "off-1", buyerIDs[i], 1)
			assert.NoError(t, err)
			results[i] = outcome
			items[i] = itemID
		}(i)
	}
	wg.Wait()

	successes := 0
	seen := make(map[string]struct{})
	for i, outcome := range results {
		switch outcome {
		case port.ClaimSuccess:
			successes++
			_, dup := seen[items[i]]
			assert.False(t, dup, "同一件藏品被分配了两次: %s", items[i])
			seen[items[i]] = struct{}{}
		case port.ClaimNoStock:
		default:
			t.Fatalf("unexpected outcome %s", outcome)
		}
	}
	assert.Equal(t, publishCount, successes)

	stock, err := s.Stock(ctx, "off-1")
	require.NoError(t, err)
	assert.Zero(t, stock)
}
