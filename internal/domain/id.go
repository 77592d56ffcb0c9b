package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind — вид сущности для публичных идентификаторов.
//
// Каждая сущность получает публичный идентификатор вида <префикс><счётчик>
// (например "S1", "SV12", "R340"). Идентификатор присваивается один раз при
// создании и никогда не меняется.
type Kind string

// Виды сущностей.
const (
	KindWorkflow        Kind = "workflow"
	KindWorkflowVersion Kind = "workflow_version"
	KindDataset         Kind = "dataset"
	KindEvalRun         Kind = "eval_run"
	KindOutputFile      Kind = "output_file"
	KindRun             Kind = "run"
	KindTask            Kind = "task"
)

// kindPrefixes — таблица префиксов по видам сущностей.
//
// Префиксы фиксированы: смена префикса сломала бы все ранее выданные
// идентификаторы.
var kindPrefixes = map[Kind]string{
	KindWorkflow:        "S",
	KindWorkflowVersion: "SV",
	KindDataset:         "DS",
	KindEvalRun:         "ER",
	KindOutputFile:      "OF",
	KindRun:             "R",
	KindTask:            "T",
}

// Prefix возвращает префикс публичного идентификатора для вида сущности.
func (k Kind) Prefix() string {
	return kindPrefixes[k]
}

// Valid проверяет, известен ли вид сущности.
func (k Kind) Valid() bool {
	_, ok := kindPrefixes[k]
	return ok
}

// FormatID форматирует публичный идентификатор из вида и счётчика.
func FormatID(kind Kind, counter int64) string {
	return kind.Prefix() + strconv.FormatInt(counter, 10)
}

// ParseID разбирает публичный идентификатор на вид и счётчик.
//
// Префиксы проверяются от длинных к коротким, чтобы "SV12" не распарсился
// как workflow ("S" + "V12").
func ParseID(id string) (Kind, int64, error) {
	for _, kind := range []Kind{
		KindWorkflowVersion, // "SV" раньше "S"
		KindDataset,
		KindEvalRun,
		KindOutputFile,
		KindWorkflow,
		KindRun,
		KindTask,
	} {
		prefix := kind.Prefix()
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		counter, err := strconv.ParseInt(id[len(prefix):], 10, 64)
		if err != nil || counter <= 0 {
			continue
		}
		return kind, counter, nil
	}
	return "", 0, fmt.Errorf("malformed public id: %q", id)
}

// IsID проверяет, что строка — публичный идентификатор указанного вида.
func IsID(id string, kind Kind) bool {
	k, _, err := ParseID(id)
	return err == nil && k == kind
}
