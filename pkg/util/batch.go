package util

// EachBatch 按 size 拆分 items 依次回调 fn，遇到错误立即返回。size<=0 时整体作为一批。
func EachBatch[T any](items []T, size int, fn func(chunk []T) error) error {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(items)
	}
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		if err := fn(items[start:end:end]); err != nil {
			return err
		}
	}
	return nil
}
