package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shaiso/Maestro/internal/orchestrator"
)

// JSONLSource читает строки dataset-файлов в формате JSONL.
// Реализует orchestrator.RowSource.
type JSONLSource struct{}

// NewJSONLSource создаёт новый JSONLSource.
func NewJSONLSource() *JSONLSource {
	return &JSONLSource{}
}

// Rows открывает файл и возвращает ленивый итератор по его строкам.
func (s *JSONLSource) Rows(_ context.Context, filePath string) (orchestrator.RowIterator, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open dataset file: %w", err)
	}

	return &jsonlIterator{
		file:    f,
		scanner: bufio.NewScanner(f),
	}, nil
}

// jsonlIterator — итератор по строкам одного открытого файла.
type jsonlIterator struct {
	file    *os.File
	scanner *bufio.Scanner
	line    int
}

// Next возвращает следующую строку файла как map.
// Пустые строки пропускаются; io.EOF означает конец файла.
func (it *jsonlIterator) Next() (map[string]any, error) {
	for it.scanner.Scan() {
		it.line++

		text := strings.TrimSpace(it.scanner.Text())
		if text == "" {
			continue
		}

		var row map[string]any
		if err := json.Unmarshal([]byte(text), &row); err != nil {
			return nil, fmt.Errorf("line %d: %w", it.line, err)
		}
		return row, nil
	}

	if err := it.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dataset file: %w", err)
	}
	return nil, io.EOF
}

// Close закрывает файл.
func (it *jsonlIterator) Close() error {
	return it.file.Close()
}
