package record

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"pdssp-crawler/internal/domain"
)

// Store 是集合台账：内存中持有完整快照，每次写入整体落盘。
type Store struct {
	backend Backend
	logger  *zap.Logger

	mu      sync.RWMutex
	records []CollectionRecord
	index   map[string]int
}

// Open 从 backend 加载快照；快照不存在时创建空台账。
func Open(ctx context.Context, backend Backend, logger *zap.Logger) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("record store backend is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{backend: backend, logger: logger, index: map[string]int{}}

	data, err := backend.Load(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Info("collections snapshot not found, creating empty store")
		if err := s.persist(ctx, nil); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	records, rejected, err := DecodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	for _, r := range rejected {
		logger.Warn("dropping invalid collection record", zap.ByteString("record", r.Raw), zap.Error(r.Err))
	}
	s.setRecords(records)
	logger.Info("collections loaded", zap.Int("count", len(records)), zap.Int("dropped", len(rejected)))
	return s, nil
}

// Get 返回指定 ID 的记录。
func (s *Store) Get(id string) (CollectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return CollectionRecord{}, fmt.Errorf("collection %s: %w", id, domain.ErrNotFound)
	}
	return s.records[i].clone(), nil
}

// List 按快照顺序返回满足过滤条件的记录。
func (s *Store) List(filter Filter) []CollectionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CollectionRecord, 0, len(s.records))
	for _, r := range s.records {
		if filter.Match(r) {
			out = append(out, r.clone())
		}
	}
	return out
}

// Len 返回记录数。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Put 写入单条记录并落盘；已存在且 overwrite 为 false 时返回 ErrAlreadyExists。
func (s *Store) Put(ctx context.Context, rec CollectionRecord, overwrite bool) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]CollectionRecord, len(s.records))
	copy(next, s.records)
	if i, ok := s.index[rec.ID]; ok {
		if !overwrite {
			return fmt.Errorf("collection %s: %w", rec.ID, domain.ErrAlreadyExists)
		}
		next[i] = rec.clone()
	} else {
		next = append(next, rec.clone())
	}
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.setRecords(next)
	return nil
}

// ReplaceAll 把台账整体重置为给定记录集合。
func (s *Store) ReplaceAll(ctx context.Context, records []CollectionRecord) error {
	next := make([]CollectionRecord, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		if seen[r.ID] {
			return fmt.Errorf("collection %s: %w", r.ID, domain.ErrAlreadyExists)
		}
		seen[r.ID] = true
		next = append(next, r.clone())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.setRecords(next)
	return nil
}

func (s *Store) persist(ctx context.Context, records []CollectionRecord) error {
	data, err := EncodeSnapshot(records)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.backend.Save(ctx, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *Store) setRecords(records []CollectionRecord) {
	s.records = records
	s.index = make(map[string]int, len(records))
	for i, r := range records {
		s.index[r.ID] = i
	}
}
