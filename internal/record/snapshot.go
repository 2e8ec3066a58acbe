package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"pdssp-crawler/internal/domain"
)

// SnapshotType 是快照文档的格式标记。
const SnapshotType = "SourceCollections"

// Backend 负责整份快照的读写。没有快照时 Load 返回 domain.ErrNotFound。
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

type snapshotDoc struct {
	Type        *string           `json:"type"`
	Collections []json.RawMessage `json:"collections"`
}

// Rejected 记录加载时被丢弃的集合及原因。
type Rejected struct {
	Raw json.RawMessage
	Err error
}

// EncodeSnapshot 把记录序列化为快照文档。
func EncodeSnapshot(records []CollectionRecord) ([]byte, error) {
	doc := struct {
		Type        string             `json:"type"`
		Collections []CollectionRecord `json:"collections"`
	}{Type: SnapshotType, Collections: records}
	if doc.Collections == nil {
		doc.Collections = []CollectionRecord{}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// DecodeSnapshot 解析快照。格式标记缺失或不匹配时直接失败；
// 单条记录校验失败只会被丢弃并通过 rejected 返回。
func DecodeSnapshot(data []byte) ([]CollectionRecord, []Rejected, error) {
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode snapshot: %v: %w", err, domain.ErrCorruptSnapshot)
	}
	if doc.Type == nil {
		return nil, nil, fmt.Errorf("missing \"type\" attribute: %w", domain.ErrCorruptSnapshot)
	}
	if *doc.Type != SnapshotType {
		return nil, nil, fmt.Errorf("not a %s document (type=%q): %w", SnapshotType, *doc.Type, domain.ErrCorruptSnapshot)
	}
	if doc.Collections == nil {
		return nil, nil, fmt.Errorf("missing \"collections\" attribute: %w", domain.ErrCorruptSnapshot)
	}

	records := make([]CollectionRecord, 0, len(doc.Collections))
	var rejected []Rejected
	seen := make(map[string]bool, len(doc.Collections))
	for _, raw := range doc.Collections {
		var rec CollectionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			rejected = append(rejected, Rejected{Raw: raw, Err: err})
			continue
		}
		if err := rec.Validate(); err != nil {
			rejected = append(rejected, Rejected{Raw: raw, Err: err})
			continue
		}
		if seen[rec.ID] {
			rejected = append(rejected, Rejected{Raw: raw, Err: fmt.Errorf("duplicate collection_id %s", rec.ID)})
			continue
		}
		seen[rec.ID] = true
		records = append(records, rec)
	}
	return records, rejected, nil
}

// FileBackend 把快照保存为单个 JSON 文件。
type FileBackend struct {
	Path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{Path: path}
}

func (b *FileBackend) Load(context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", b.Path, err)
	}
	return data, nil
}

// Save 先写临时文件再 rename，避免半截快照。
func (b *FileBackend) Save(_ context.Context, data []byte) error {
	dir := filepath.Dir(b.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".collections-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, b.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot %s: %w", b.Path, err)
	}
	return nil
}
