package util

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// DocumentHash 返回 JSON 文档的稳定摘要，map 键按字典序编码。
func DocumentHash(doc map[string]any) string {
	data, err := json.Marshal(doc)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
