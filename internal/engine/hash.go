package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HashDefinition вычисляет детерминированный content hash определения.
//
// Определение канонизируется перед хэшированием: JSON разбирается и
// сериализуется заново, что сортирует ключи объектов и нормализует
// форматирование. Байтово различные, но семантически идентичные
// определения дают один и тот же хэш — это механизм, который делает
// createVersion идемпотентным для no-op правок.
func HashDefinition(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("canonicalize definition: %w", err)
	}

	canonical, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonicalize definition: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
