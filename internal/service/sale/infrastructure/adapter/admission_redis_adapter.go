package adapter

import (
	"context"
	"fmt"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/pkg/redis"
	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/domain/port"
)

const (
	claimScriptName   = "sale_claim"
	releaseScriptName = "sale_release"
)

// AdmissionRedisAdapter 是 port.AdmissionService 接口的 Redis 实现。
// 抢购与补偿各自由一个 Lua 脚本完成，Redis 单线程执行脚本，
// 天然满足"七个步骤一个原子单元"的要求。
type AdmissionRedisAdapter struct {
	redisClient *redis.Client
}

// NewAdmissionRedisAdapter 创建一个新的准入适配器实例。
// 它在创建时会加载所有需要的 Lua 脚本。
func NewAdmissionRedisAdapter(redisClient *redis.Client) (*AdmissionRedisAdapter, error) {
	if err := redisClient.LoadScriptFromContent(claimScriptName, claimScript); err != nil {
		return nil, fmt.Errorf("failed to load critical claim script: %w", err)
	}
	if err := redisClient.LoadScriptFromContent(releaseScriptName, releaseScript); err != nil {
		return nil, fmt.Errorf("failed to load critical release script: %w", err)
	}
	return &AdmissionRedisAdapter{redisClient: redisClient}, nil
}

// Claim 实现了抢购的原子准入逻辑。
// 脚本返回被分配的藏品 ID（字符串），或一个负数哨兵。
// 哨兵绝不越过本方法：统一在这里翻译成封闭的业务结果集。
func (a *AdmissionRedisAdapter) Claim(ctx context.Context, offeringID, buyerID string, limit int) (port.ClaimOutcome, string, error) {
	keys := []string{
		stockKey(offeringID),
		luckySetKey(offeringID),
		boughtHashKey(offeringID),
		itemPoolKey(offeringID),
	}
	args := []interface{}{buyerID, limit}

	result, err := a.redisClient.RunScript(ctx, claimScriptName, keys, args...)
	if err != nil {
		return 0, "", fmt.Errorf("admission adapter failed to run claim script: %w", err)
	}

	switch v := result.(type) {
	case string:
		// 成功路径：脚本弹出了一个具体藏品 ID
		return port.ClaimSuccess, v, nil
	case int64:
		switch v {
		case -1:
			return port.ClaimNoStock, "", nil
		case -2:
			return port.ClaimNotQualified, "", nil
		case -3:
			return port.ClaimLimitReached, "", nil
		case -9:
			// 库存为正但物品池已空：两者失去同步，必须停止该活动
			return 0, "", port.ErrInventoryCorrupted
		default:
			return 0, "", fmt.Errorf("unknown sentinel from claim script: %d", v)
		}
	default:
		return 0, "", fmt.Errorf("unexpected result type from claim script: %T", result)
	}
}

// Release 实现了抢购的补偿逻辑，精确回滚 Claim 的三处改动。
func (a *AdmissionRedisAdapter) Release(ctx context.Context, offeringID, buyerID, itemID string) (port.ReleaseOutcome, error) {
	keys := []string{
		stockKey(offeringID),
		boughtHashKey(offeringID),
		itemPoolKey(offeringID),
	}
	args := []interface{}{buyerID, itemID}

	result, err := a.redisClient.RunScript(ctx, releaseScriptName, keys, args...)
	if err != nil {
		return 0, fmt.Errorf("admission adapter failed to run release script: %w", err)
	}

	code, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected result type from release script: %T", result)
	}
	switch code {
	case 1:
		return port.ReleaseSuccess, nil
	case 0:
		return port.ReleaseNothingToRelease, nil
	default:
		return 0, fmt.Errorf("unknown result code from release script: %d", code)
	}
}

// Prepare 初始化库存和物品池，供开售前的管理操作调用。
func (a *AdmissionRedisAdapter) Prepare(ctx context.Context, offeringID string, itemIDs []string) error {
	members := make([]interface{}, 0, len(itemIDs))
	for _, id := range itemIDs {
		members = append(members, id)
	}

	// 使用 pipeline 提高效率
	pipe := a.redisClient.GetClient().Pipeline()
	pipe.Set(ctx, stockKey(offeringID), len(itemIDs), 0)
	pipe.Del(ctx, itemPoolKey(offeringID), boughtHashKey(offeringID))
	if len(members) > 0 {
		pipe.SAdd(ctx, itemPoolKey(offeringID), members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to prepare offering %s: %w", offeringID, err)
	}
	return nil
}

// Stock 返回当前剩余库存。
func (a *AdmissionRedisAdapter) Stock(ctx context.Context, offeringID string) (int, error) {
	val, err := a.redisClient.GetClient().Get(ctx, stockKey(offeringID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read stock for offering %s: %w", offeringID, err)
	}
	return val, nil
}

// Cleanup 一次性删除活动的全部五个键。
func (a *AdmissionRedisAdapter) Cleanup(ctx context.Context, offeringID string) error {
	if err := a.redisClient.GetClient().Del(ctx, allKeys(offeringID)...).Err(); err != nil {
		return fmt.Errorf("failed to cleanup offering %s: %w", offeringID, err)
	}
	return nil
}

var claimScript = `
-- KEYS[1]: 库存计数, 例如 sale:stock:{offering-1}
-- KEYS[2]: 中签集合, 例如 sale:lucky:{offering-1}
-- KEYS[3]: 买家已购次数 hash, 例如 sale:bought:{offering-1}
-- KEYS[4]: 未售物品池, 例如 sale:items:{offering-1}
-- ARGV[1]: 买家 ID
-- ARGV[2]: 每人限购数

-- 1. 校验中签资格
if redis.call('sismember', KEYS[2], ARGV[1]) == 0 then
    return -2
end

-- 2. 校验限购
local bought = tonumber(redis.call('hget', KEYS[3], ARGV[1]) or '0')
if bought >= tonumber(ARGV[2]) then
    return -3
end

-- 3. 校验库存。读取与扣减在同一脚本内，不存在 check-then-act 间隙
local stock = tonumber(redis.call('get', KEYS[1]) or '0')
if stock <= 0 then
    return -1
end

-- 4. 弹出一件具体藏品。库存为正但池已空说明不变式被破坏
local item = redis.call('spop', KEYS[4])
if not item then
    return -9
end

-- 5. 扣库存、记买家次数
redis.call('decr', KEYS[1])
redis.call('hincrby', KEYS[3], ARGV[1], 1)
return item
`

var releaseScript = `
-- KEYS[1]: 库存计数
-- KEYS[2]: 买家已购次数 hash
-- KEYS[3]: 未售物品池
-- ARGV[1]: 买家 ID
-- ARGV[2]: 归还的藏品 ID

-- 买家计数为 0 说明没有可补偿的抢购，防御重复补偿，不做任何修改
local bought = tonumber(redis.call('hget', KEYS[2], ARGV[1]) or '0')
if bought <= 0 then
    return 0
end

redis.call('incr', KEYS[1])
redis.call('hincrby', KEYS[2], ARGV[1], -1)
redis.call('sadd', KEYS[3], ARGV[2])
return 1
`
