// Пакет detect определяет настоящий MIME-тип по сигнатуре начала потока.
package detect

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ReadLimit сколько байт читается для определения типа
const ReadLimit = 3072

// Типы, которые по сигнатуре надежно не определяются. Поток не читается.
var unreliableMimeTypes = map[string]struct{}{
	"text/csv":                      {},
	"image/svg+xml":                 {},
	"application/msword":            {},
	"application/vnd.ms-excel":      {},
	"application/vnd.ms-powerpoint": {},
}

// Результаты, неотличимые от произвольного контейнера. В этом случае
// доверяем заявленному типу.
var genericMimeTypes = map[string]struct{}{
	"application/octet-stream":  {},
	"application/zip":           {},
	"application/x-ole-storage": {},
	"text/plain":                {},
	"application/x-empty":       {},
}

// ResolveMimeType возвращает тип содержимого r или fallback.
// Читает не больше ReadLimit байт.
func ResolveMimeType(r io.Reader, fallback string) (string, error) {
	if _, ok := unreliableMimeTypes[normalize(fallback)]; ok {
		return fallback, nil
	}

	// лимит держим локально, глобальный mimetype.SetLimit не трогаем
	header := make([]byte, ReadLimit)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("failed to detect mime type: %w", err)
	}

	mimeType := normalize(mimetype.Detect(header[:n]).String())
	if _, ok := genericMimeTypes[mimeType]; ok || mimeType == "" {
		return fallback, nil
	}

	return mimeType, nil
}

func normalize(mimeType string) string {
	if idx := strings.Index(mimeType, ";"); idx != -1 {
		mimeType = mimeType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
