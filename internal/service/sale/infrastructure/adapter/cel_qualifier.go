package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/domain/port"
)

// CELQualifier 是 port.Qualifier 接口的 cel-go 实现。
// 活动上的资格规则是一段 CEL 表达式，例如:
//
//	buyer.verified && buyer.level >= 2
//
// 编译结果按规则源码缓存，同一活动的海量抢购只编译一次。
type CELQualifier struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCELQualifier 创建规则引擎适配器，声明规则可见的变量。
func NewCELQualifier() (*CELQualifier, error) {
	env, err := cel.NewEnv(
		cel.Variable("buyer", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &CELQualifier{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Evaluate 实现了 port.Qualifier 接口。
func (q *CELQualifier) Evaluate(ctx context.Context, ruleSrc string, fact port.BuyerFact) (bool, error) {
	if ruleSrc == "" {
		return true, nil
	}

	prg, err := q.program(ruleSrc)
	if err != nil {
		return false, err
	}

	out, _, err := prg.ContextEval(ctx, map[string]interface{}{
		"buyer": map[string]interface{}{
			"id":       fact.ID,
			"verified": fact.Verified,
			"level":    fact.Level,
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate qualification rule: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		// 规则必须产出布尔值，否则是配置错误
		return false, fmt.Errorf("qualification rule yielded %T, want bool", out.Value())
	}
	return result, nil
}

func (q *CELQualifier) program(ruleSrc string) (cel.Program, error) {
	q.mu.RLock()
	prg, ok := q.programs[ruleSrc]
	q.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := q.env.Compile(ruleSrc)
	if iss.Err() != nil {
		return nil, fmt.Errorf("invalid qualification rule: %w", iss.Err())
	}
	prg, err := q.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule program: %w", err)
	}

	q.mu.Lock()
	q.programs[ruleSrc] = prg
	q.mu.Unlock()
	return prg, nil
}
