package domain

import (
	"encoding/json"
	"time"
)

// Workflow — именованный контейнер определения рабочего процесса.
//
// Workflow хранит "текущий черновик" definition для редактора; выполнение
// никогда не привязывается к черновику — run всегда пиннится к конкретной
// WorkflowVersion. Один workflow может иметь множество версий.
type Workflow struct {
	// ID — публичный идентификатор ("S" + счётчик).
	ID string `json:"id"`

	// Name — уникальное имя workflow.
	Name string `json:"name"`

	// Description — описание назначения workflow.
	Description string `json:"description,omitempty"`

	// Definition — текущий черновик графа (nodes + edges), непрозрачный
	// для хранилища. Для выполнения всегда используется снимок из версии.
	Definition json.RawMessage `json:"definition"`

	// CreatedAt — время создания workflow.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkflowVersion — неизменяемый снимок определения workflow.
//
// Версия создаётся один раз и никогда не мутирует: правки workflow
// порождают новую версию. DefinitionHash — детерминированный content hash
// снимка; совпадение с хэшем последней версии делает создание идемпотентным
// no-op (никакого version churn от пустых правок).
type WorkflowVersion struct {
	// ID — публичный идентификатор ("SV" + счётчик).
	ID string `json:"id"`

	// WorkflowID — ссылка на родительский workflow.
	WorkflowID string `json:"workflow_id"`

	// Version — номер версии, монотонно растущий в рамках workflow.
	Version int `json:"version"`

	// Name — имя workflow на момент снимка.
	Name string `json:"name"`

	// Description — описание на момент снимка.
	Description string `json:"description,omitempty"`

	// Definition — неизменяемый снимок графа.
	Definition json.RawMessage `json:"definition"`

	// DefinitionHash — content hash снимка (sha256 канонического JSON).
	DefinitionHash string `json:"definition_hash"`

	// CreatedAt — время создания версии.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — совпадает с CreatedAt: версии write-once.
	UpdatedAt time.Time `json:"updated_at"`
}
