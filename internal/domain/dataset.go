package domain

import "time"

// Dataset — зарегистрированный файл с sample-строками.
//
// Строки dataset'а используются для batch-запусков (одна строка — одно
// выполнение дерева задач) и для выборки в evaluations. Парсинг самого
// файла — забота внешнего коллаборатора; здесь только учёт.
type Dataset struct {
	// ID — публичный идентификатор ("DS" + счётчик).
	ID string `json:"id"`

	// Name — уникальное имя dataset.
	Name string `json:"name"`

	// Description — описание содержимого.
	Description string `json:"description,omitempty"`

	// FilePath — путь к загруженному файлу строк.
	FilePath string `json:"file_path"`

	// UploadedAt — время регистрации.
	UploadedAt time.Time `json:"uploaded_at"`
}

// OutputFile — артефакт с результатами batch-запуска.
type OutputFile struct {
	// ID — публичный идентификатор ("OF" + счётчик).
	ID string `json:"id"`

	// FileName — имя файла артефакта.
	FileName string `json:"file_name"`

	// FilePath — путь к сохранённому файлу.
	FilePath string `json:"file_path"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего обновления.
	UpdatedAt time.Time `json:"updated_at"`
}
