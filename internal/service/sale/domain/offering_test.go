package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOfferingSaleOpen(t *testing.T) {
	saleAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	o := &Offering{SaleAt: saleAt}

	assert.False(t, o.SaleOpen(saleAt.Add(-time.Second)), "开售前不可抢购")
	assert.True(t, o.SaleOpen(saleAt), "开售时刻本身可以抢购")
	assert.True(t, o.SaleOpen(saleAt.Add(time.Hour)))
}

func TestOfferingDrawClosed(t *testing.T) {
	drawEndAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	o := &Offering{DrawEndAt: drawEndAt}

	assert.False(t, o.DrawClosed(drawEndAt.Add(-time.Second)))
	assert.True(t, o.DrawClosed(drawEndAt), "截止时刻本身已截止")
}

func TestOfferingLimit(t *testing.T) {
	assert.Equal(t, 1, (&Offering{}).Limit(), "历史数据的零值限购按 1 处理")
	assert.Equal(t, 1, (&Offering{PurchaseLimit: -1}).Limit())
	assert.Equal(t, 3, (&Offering{PurchaseLimit: 3}).Limit())
}

func TestOfferingLuckyTarget(t *testing.T) {
	o := &Offering{PublishCount: 100}
	assert.Equal(t, 200, o.LuckyTarget(2))
	assert.Equal(t, 150, o.LuckyTarget(1.5))
	// 非整数结果向上取整
	assert.Equal(t, 121, (&Offering{PublishCount: 97}).LuckyTarget(1.25))
	// 非法倍数退回默认值 2
	assert.Equal(t, 200, o.LuckyTarget(0))
	assert.Equal(t, 200, o.LuckyTarget(-1))
}

func TestOfferingHalt(t *testing.T) {
	o := &Offering{Status: OfferingStatusOnSale}
	o.Halt()
	assert.Equal(t, OfferingStatusHalted, o.Status)
}
