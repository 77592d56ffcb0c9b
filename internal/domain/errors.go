package domain

import "fmt"

// StateTransitionError — попытка недопустимого перехода статуса.
//
// Возникает, когда два конкурентных писателя пытаются применить один и тот
// же переход (compare-and-set по текущему статусу отклонил обновление) или
// когда кто-то пытается перезаписать терминальное состояние. Такая ошибка
// указывает на гонку или двойную диспетчеризацию — она логируется и
// отклоняется, терминальное состояние никогда не перезаписывается.
type StateTransitionError struct {
	// Entity — вид сущности ("run", "task", "eval_run").
	Entity string

	// ID — публичный идентификатор сущности.
	ID string

	// From — статус на момент попытки.
	From string

	// To — запрошенный статус.
	To string
}

// Error реализует интерфейс error.
func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("%s %s: illegal status transition %s -> %s", e.Entity, e.ID, e.From, e.To)
}
