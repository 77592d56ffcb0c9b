package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Maestro/internal/domain"
)

// Allocator выдаёт публичные идентификаторы вида <префикс><счётчик>.
//
// Счётчик на каждый вид сущности хранится в таблице id_counters и
// инкрементируется атомарно на стороне БД: конкурентные вызовы для одного
// вида не могут получить одинаковый номер. Уникальность дополнительно
// закреплена UNIQUE-ограничением на колонке id целевой таблицы: его
// нарушение фатально для попытки вставки и отдаётся вызывающему как
// ErrAlreadyExists, никогда не подавляется.
type Allocator struct {
	pool *pgxpool.Pool
}

// NewAllocator создаёт новый Allocator.
func NewAllocator(pool *pgxpool.Pool) *Allocator {
	return &Allocator{pool: pool}
}

// Allocate выдаёт следующий публичный идентификатор для вида сущности.
// Возвращает идентификатор и внутренний счётчик (surrogate key).
func (a *Allocator) Allocate(ctx context.Context, kind domain.Kind) (string, int64, error) {
	if !kind.Valid() {
		return "", 0, fmt.Errorf("unknown entity kind: %q", kind)
	}

	var counter int64
	err := a.pool.QueryRow(ctx, `
		INSERT INTO id_counters (kind, counter)
		VALUES ($1, 1)
		ON CONFLICT (kind) DO UPDATE SET counter = id_counters.counter + 1
		RETURNING counter
	`, string(kind)).Scan(&counter)
	if err != nil {
		return "", 0, fmt.Errorf("allocate id for %s: %w", kind, err)
	}

	return domain.FormatID(kind, counter), counter, nil
}
