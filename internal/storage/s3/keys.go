package s3

import (
	"fmt"
	"strings"

	"synxronfiles/internal/domain"
)

func trashKey(key string) string {
	return trashPrefix + key
}

func untrashKey(key string) string {
	return strings.TrimPrefix(key, trashPrefix)
}

func directoryPrefix(prefix string) string {
	if strings.HasSuffix(prefix, "/") {
		return prefix
	}
	return prefix + "/"
}

func rangeHeader(r *domain.ByteRange) string {
	if r.End < 0 {
		return fmt.Sprintf("bytes=%d-", r.Start)
	}
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

func chunkKeys(keys []string, size int) [][]string {
	var chunks [][]string
	for len(keys) > size {
		chunks = append(chunks, keys[:size])
		keys = keys[size:]
	}
	if len(keys) > 0 {
		chunks = append(chunks, keys)
	}
	return chunks
}
