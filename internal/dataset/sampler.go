package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/shaiso/Maestro/internal/domain"
)

// Resolver резолвит dataset по публичному id. Реализуется repo.DatasetRepo.
type Resolver interface {
	GetByID(ctx context.Context, id string) (*domain.Dataset, error)
}

// HeadSampler отдаёт первые n строк dataset-файла.
// Реализует evals.Sampler.
type HeadSampler struct {
	datasets Resolver
	source   *JSONLSource
}

// NewHeadSampler создаёт новый HeadSampler.
func NewHeadSampler(datasets Resolver) *HeadSampler {
	return &HeadSampler{
		datasets: datasets,
		source:   NewJSONLSource(),
	}
}

// Sample возвращает первые n строк dataset'а. Если строк меньше n,
// возвращаются все имеющиеся.
func (s *HeadSampler) Sample(ctx context.Context, datasetID string, n int) ([]map[string]any, error) {
	ds, err := s.datasets.GetByID(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("resolve dataset %s: %w", datasetID, err)
	}

	iter, err := s.source.Rows(ctx, ds.FilePath)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	samples := make([]map[string]any, 0, n)
	for len(samples) < n {
		row, err := iter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		samples = append(samples, row)
	}

	return samples, nil
}
