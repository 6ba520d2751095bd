package adapter

import "fmt"

// 每个活动的五个命名空间键。hash tag 让它们落在同一个
// cluster slot，Lua 脚本的原子性才成立。
func stockKey(offeringID string) string {
	return fmt.Sprintf("sale:stock:{%s}", offeringID)
}

func itemPoolKey(offeringID string) string {
	return fmt.Sprintf("sale:items:{%s}", offeringID)
}

func luckySetKey(offeringID string) string {
	return fmt.Sprintf("sale:lucky:{%s}", offeringID)
}

func drawPoolKey(offeringID string) string {
	return fmt.Sprintf("sale:draw:{%s}", offeringID)
}

func boughtHashKey(offeringID string) string {
	return fmt.Sprintf("sale:bought:{%s}", offeringID)
}

func allKeys(offeringID string) []string {
	return []string{
		stockKey(offeringID),
		itemPoolKey(offeringID),
		luckySetKey(offeringID),
		drawPoolKey(offeringID),
		boughtHashKey(offeringID),
	}
}
