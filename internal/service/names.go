package service

import (
	"fmt"
	"path"
	"strings"

	"synxronfiles/internal/domain"
)

// uniqueFileName добавляет " (n)" перед расширением, пока имя занято.
// Проверка и последующее сохранение не атомарны: два одновременных
// запроса с одним именем могут получить одинаковый результат.
func uniqueFileName(name string, siblings []*domain.FileRecord) string {
	taken := make(map[string]struct{}, len(siblings))
	for _, s := range siblings {
		taken[s.Name] = struct{}{}
	}

	if _, ok := taken[name]; !ok {
		return name
	}

	base, ext := splitExt(name)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, i, ext)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// splitExt для ".env" расширением считается пустая строка
func splitExt(name string) (string, string) {
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		return name, ""
	}
	return base, ext
}

func validateFileName(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("%w: %q", domain.ErrInvalidName, name)
	}
	return nil
}
