// Package memory 提供 AdmissionService 与 LotteryService 的进程内实现。
// 语义与 Redis Lua 脚本一致，单进程互斥锁扮演脚本的原子性。
// 仅用于本地开发与测试：多进程部署必须使用 Redis 实现。
package memory

import (
	"context"
	"math/rand"
	"sync"

	"github.com/AnCoSONG/nftmall-be-sub000/internal/service/sale/domain/port"
)

type offeringState struct {
	stock    int
	items    map[string]struct{}
	lucky    map[string]struct{}
	drawPool map[string]struct{}
	bought   map[string]int
	drawDone bool
}

// Store 同时实现 port.AdmissionService 和 port.LotteryService。
type Store struct {
	mu        sync.Mutex
	offerings map[string]*offeringState
}

func NewStore() *Store {
	return &Store{offerings: make(map[string]*offeringState)}
}

func (s *Store) state(offeringID string) *offeringState {
	st, ok := s.offerings[offeringID]
	if !ok {
		st = &offeringState{
			items:    make(map[string]struct{}),
			lucky:    make(map[string]struct{}),
			drawPool: make(map[string]struct{}),
			bought:   make(map[string]int),
		}
		s.offerings[offeringID] = st
	}
	return st
}

// Claim 与 Lua 脚本保持一致的判定顺序：资格、限购、库存、取物品。
func (s *Store) Claim(ctx context.Context, offeringID, buyerID string, limit int) (port.ClaimOutcome, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(offeringID)

	if _, ok := st.lucky[buyerID]; !ok {
		return port.ClaimNotQualified, "", nil
	}
	if st.bought[buyerID] >= limit {
		return port.ClaimLimitReached, "", nil
	}
	if st.stock <= 0 {
		return port.ClaimNoStock, "", nil
	}

	var itemID string
	for id := range st.items {
		itemID = id
		break
	}
	if itemID == "" {
		return 0, "", port.ErrInventoryCorrupted
	}

	delete(st.items, itemID)
	st.stock--
	st.bought[buyerID]++
	return port.ClaimSuccess, itemID, nil
}

func (s *Store) Release(ctx context.Context, offeringID, buyerID, itemID string) (port.ReleaseOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(offeringID)

	if st.bought[buyerID] <= 0 {
		return port.ReleaseNothingToRelease, nil
	}
	st.stock++
	st.bought[buyerID]--
	st.items[itemID] = struct{}{}
	return port.ReleaseSuccess, nil
}

func (s *Store) Prepare(ctx context.Context, offeringID string, itemIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(offeringID)
	st.stock = len(itemIDs)
	st.items = make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		st.items[id] = struct{}{}
	}
	st.bought = make(map[string]int)
	return nil
}

func (s *Store) Stock(ctx context.Context, offeringID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state(offeringID).stock, nil
}

func (s *Store) Cleanup(ctx context.Context, offeringID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.offerings, offeringID)
	return nil
}

func (s *Store) Register(ctx context.Context, offeringID, candidateID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(offeringID)
	if _, ok := st.drawPool[candidateID]; ok {
		return false, nil
	}
	st.drawPool[candidateID] = struct{}{}
	return true, nil
}

func (s *Store) DrawCount(ctx context.Context, offeringID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state(offeringID).drawPool), nil
}

func (s *Store) Select(ctx context.Context, offeringID string, targetSize int) (port.DrawOutcome, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(offeringID)

	if st.drawDone {
		return port.DrawAlreadyDone, 0, nil
	}
	if len(st.drawPool) == 0 {
		return port.DrawNoParticipants, 0, nil
	}

	candidates := make([]string, 0, len(st.drawPool))
	for id := range st.drawPool {
		candidates = append(candidates, id)
	}
	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if targetSize > len(candidates) {
		targetSize = len(candidates)
	}
	for _, id := range candidates[:targetSize] {
		st.lucky[id] = struct{}{}
	}
	st.drawDone = true
	return port.DrawSelected, targetSize, nil
}

func (s *Store) EligibleCount(ctx context.Context, offeringID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state(offeringID).lucky), nil
}

// SeedLucky 直接写入中签集合，测试用。
func (s *Store) SeedLucky(offeringID string, buyerIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(offeringID)
	for _, id := range buyerIDs {
		st.lucky[id] = struct{}{}
	}
	st.drawDone = true
}

// CorruptPool 清空物品池但保留库存计数，测试不变式告警用。
func (s *Store) CorruptPool(offeringID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state(offeringID).items = make(map[string]struct{})
}
