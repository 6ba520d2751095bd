// Package timer 管理每个发售活动的一次性触发器。
// 触发器只存在于进程内，重启后由应用层根据活动时间戳重建。
package timer

import (
	"sync"
	"time"
)

// Kind 区分同一活动上的不同触发器。
type Kind string

const (
	// KindDraw 开奖触发器，到点执行抽签选择
	KindDraw Kind = "draw"
)

type key struct {
	offeringID string
	kind       Kind
}

// Scheduler 维护待触发集合：每个 (活动, 类型) 至多一个待触发定时器。
// 触发动作执行之前先把自己从集合移除，移除时校验集合里登记的
// 确实是自己：被取消、已触发或已被替换的定时器都不再执行动作。
// 这保证同一触发器不会生效两次，替换也不会误伤新定时器。
type Scheduler struct {
	mu      sync.Mutex
	pending map[key]*time.Timer
	closed  bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{pending: make(map[key]*time.Timer)}
}

// Schedule 安排一个在 at 时刻执行的触发器。
// 同一 (offeringID, kind) 已有触发器时先停掉旧的再换新的。
// at 已过期时立即异步执行。
func (s *Scheduler) Schedule(offeringID string, kind Kind, at time.Time, fn func()) {
	k := key{offeringID: offeringID, kind: kind}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if old, ok := s.pending[k]; ok {
		old.Stop()
		delete(s.pending, k)
	}

	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		// 幂等移除：只有确认集合里登记的是自己、并成功把自己拿掉的
		// 那一次才执行动作。旧定时器在被替换后触发时，集合里已是
		// 新定时器，这里的身份比对阻止旧回调把它摘掉。
		s.mu.Lock()
		if cur, ok := s.pending[k]; !ok || cur != t {
			s.mu.Unlock()
			return
		}
		delete(s.pending, k)
		s.mu.Unlock()
		fn()
	})
	s.pending[k] = t
}

// Cancel 取消一个待触发的定时器，返回是否确有取消动作。
func (s *Scheduler) Cancel(offeringID string, kind Kind) bool {
	k := key{offeringID: offeringID, kind: kind}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.pending[k]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.pending, k)
	return true
}

// CancelAll 取消某活动的全部触发器，清理活动时调用。
func (s *Scheduler) CancelAll(offeringID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, t := range s.pending {
		if k.offeringID == offeringID {
			t.Stop()
			delete(s.pending, k)
		}
	}
}

// Pending 返回当前待触发数量。
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close 停掉全部定时器，之后的 Schedule 调用被忽略。
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for k, t := range s.pending {
		t.Stop()
		delete(s.pending, k)
	}
}
