package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/domain/port"
)

func TestEvaluateEmptyRuleAlwaysQualifies(t *testing.T) {
	q, err := NewCELQualifier()
	require.NoError(t, err)

	ok, err := q.Evaluate(context.Background(), "", port.BuyerFact{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateRule(t *testing.T) {
	q, err := NewCELQualifier()
	require.NoError(t, err)
	ctx := context.Background()
	rule := `buyer.verified && buyer.level >= 2`

	ok, err := q.Evaluate(ctx, rule, port.BuyerFact{ID: "alice", Verified: true, Level: 3})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.Evaluate(ctx, rule, port.BuyerFact{ID: "bob", Verified: true, Level: 1})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = q.Evaluate(ctx, rule, port.BuyerFact{ID: "carol", Verified: false, Level: 5})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateInvalidRule(t *testing.T) {
	q, err := NewCELQualifier()
	require.NoError(t, err)

	_, err = q.Evaluate(context.Background(), `buyer.level >=`, port.BuyerFact{})
	assert.Error(t, err, "语法错误是配置错误，不映射为业务拒绝")
}

func TestEvaluateNonBooleanRule(t *testing.T) {
	q, err := NewCELQualifier()
	require.NoError(t, err)

	_, err = q.Evaluate(context.Background(), `buyer.level + 1`, port.BuyerFact{Level: 1})
	assert.Error(t, err)
}
