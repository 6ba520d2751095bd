package adapter

import (
	"context"
	"fmt"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/pkg/redis"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/domain/port"
)

const selectScriptName = "sale_draw_select"

// LotteryRedisAdapter 是 port.LotteryService 接口的 Redis 实现。
// 登记用 SADD 的幂等性，开奖用 Lua 脚本保证抽样与写入原子完成。
type LotteryRedisAdapter struct {
	redisClient *redis.Client
}

// NewLotteryRedisAdapter 创建一个新的抽签适配器实例。
func NewLotteryRedisAdapter(redisClient *redis.Client) (*LotteryRedisAdapter, error) {
	if err := redisClient.LoadScriptFromContent(selectScriptName, selectScript); err != nil {
		return nil, fmt.Errorf("failed to load critical draw script: %w", err)
	}
	return &LotteryRedisAdapter{redisClient: redisClient}, nil
}

// Register 将候选人加入抽签池。SADD 返回 1 表示新增，0 表示已在池中。
func (a *LotteryRedisAdapter) Register(ctx context.Context, offeringID, candidateID string) (bool, error) {
	added, err := a.redisClient.GetClient().SAdd(ctx, drawPoolKey(offeringID), candidateID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to register candidate %s: %w", candidateID, err)
	}
	return added == 1, nil
}

// DrawCount 返回抽签池大小，键不存在时 SCARD 返回 0，不是错误。
func (a *LotteryRedisAdapter) DrawCount(ctx context.Context, offeringID string) (int, error) {
	n, err := a.redisClient.GetClient().SCard(ctx, drawPoolKey(offeringID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read draw pool size: %w", err)
	}
	return int(n), nil
}

// Select 执行开奖脚本。
func (a *LotteryRedisAdapter) Select(ctx context.Context, offeringID string, targetSize int) (port.DrawOutcome, int, error) {
	keys := []string{drawPoolKey(offeringID), luckySetKey(offeringID)}
	result, err := a.redisClient.RunScript(ctx, selectScriptName, keys, targetSize)
	if err != nil {
		return 0, 0, fmt.Errorf("lottery adapter failed to run draw script: %w", err)
	}

	code, ok := result.(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected result type from draw script: %T", result)
	}
	switch {
	case code >= 0:
		return port.DrawSelected, int(code), nil
	case code == -1:
		return port.DrawNoParticipants, 0, nil
	case code == -2:
		return port.DrawAlreadyDone, 0, nil
	default:
		return 0, 0, fmt.Errorf("unknown result code from draw script: %d", code)
	}
}

// EligibleCount 返回中签集合大小。
func (a *LotteryRedisAdapter) EligibleCount(ctx context.Context, offeringID string) (int, error) {
	n, err := a.redisClient.GetClient().SCard(ctx, luckySetKey(offeringID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read lucky set size: %w", err)
	}
	return int(n), nil
}

var selectScript = `
-- KEYS[1]: 抽签池, 例如 sale:draw:{offering-1}
-- KEYS[2]: 中签集合, 例如 sale:lucky:{offering-1}
-- ARGV[1]: 目标抽取数

-- 中签集合已存在说明开过奖。再抽一次会改变成员，直接拒绝
if redis.call('exists', KEYS[2]) == 1 then
    return -2
end

if redis.call('scard', KEYS[1]) == 0 then
    return -1
end

-- SRANDMEMBER 正数 count 保证不放回、成员互异
local chosen = redis.call('srandmember', KEYS[1], tonumber(ARGV[1]))
for _, member in ipairs(chosen) do
    redis.call('sadd', KEYS[2], member)
end
return #chosen
`
