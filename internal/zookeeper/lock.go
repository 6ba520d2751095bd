// internal/zookeeper/lock.go
package zookeeper

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

const (
	lockRoot = "/nftmall_draw_locks" // 开奖锁的根节点
)

// DrawLock 是围绕某个发售活动的分布式互斥锁。
// 开奖动作必须全局只执行一次，进程内的 mutex 不够，
// 多实例部署时依赖 ZooKeeper 的临时顺序节点串行化。
type DrawLock struct {
	conn     *Conn
	path     string // 锁的路径，例如 /nftmall_draw_locks/offering-123
	lockNode string // 成功获取锁后，自己创建的节点路径
}

// NewDrawLock 创建一个新的开奖锁实例
func NewDrawLock(conn *Conn, offeringID string) *DrawLock {
	// 确保根节点存在
	if _, _, err := conn.Exists(lockRoot); err != nil {
		_, createErr := conn.Create(lockRoot, []byte(""), 0, zk.WorldACL(zk.PermAll))
		if createErr != nil && createErr != zk.ErrNodeExists {
			panic(fmt.Sprintf("Failed to create lock root node: %v", createErr))
		}
	}

	lockPath := lockRoot + "/" + offeringID

	// 确保锁的父节点路径存在
	if _, _, err := conn.Exists(lockPath); err != nil {
		_, createErr := conn.Create(lockPath, []byte(""), 0, zk.WorldACL(zk.PermAll))
		if createErr != nil && createErr != zk.ErrNodeExists {
			panic(fmt.Sprintf("Failed to create lock path node %s: %v", lockPath, createErr))
		}
	}

	return &DrawLock{
		conn: conn,
		path: lockPath,
	}
}

// Lock 尝试获取锁，如果获取不到则阻塞等待
func (l *DrawLock) Lock() error {
	// 1. 在锁路径下创建一个临时顺序节点
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("failed to create sequential node: %w", err)
	}
	l.lockNode = nodePath

	for {
		// 2. 获取锁路径下的所有子节点并排序
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			return fmt.Errorf("failed to get children nodes: %w", err)
		}
		sort.Strings(children)

		// 3. 自己是最小节点则持有锁
		myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
		if myNodeName == children[0] {
			return nil
		}

		// 4. 否则监听前一个节点
		prevNodeIndex := -1
		for i, child := range children {
			if child == myNodeName {
				prevNodeIndex = i - 1
				break
			}
		}
		if prevNodeIndex < 0 {
			return errors.New("cannot find previous node, something is wrong")
		}
		prevNodePath := l.path + "/" + children[prevNodeIndex]

		_, _, eventChan, err := l.conn.ExistsW(prevNodePath)
		if err != nil {
			// 前一个节点刚好被删除，重试循环
			if err == zk.ErrNoNode {
				continue
			}
			return fmt.Errorf("failed to watch previous node: %w", err)
		}

		select {
		case event := <-eventChan:
			if event.Type == zk.EventNodeDeleted {
				continue
			}
		case <-time.After(30 * time.Second): // 防止死等
			return errors.New("timeout waiting for lock")
		}
	}
}

// Unlock 释放锁
func (l *DrawLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && err != zk.ErrNoNode {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""
	return nil
}

// Locker 按发售活动发放锁，供应用层以回调方式使用。
type Locker struct {
	conn *Conn
}

func NewLocker(conn *Conn) *Locker {
	return &Locker{conn: conn}
}

// WithLock 在持有 offeringID 对应的锁期间执行 fn。
func (f *Locker) WithLock(offeringID string, fn func() error) error {
	lock := NewDrawLock(f.conn, offeringID)
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()
	return fn()
}
