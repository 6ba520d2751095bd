package port

// DrawLocker 把开奖动作在多实例之间互斥。
// 进程内锁不够：开奖定时器可能同时在多个实例上到点。
type DrawLocker interface {
	WithLock(offeringID string, fn func() error) error
}
