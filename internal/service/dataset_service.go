package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/certificate-service/internal/errors"
	"github.com/unclebandit/certificate-service/internal/logging"
	"github.com/unclebandit/certificate-service/internal/model"
	"github.com/unclebandit/certificate-service/internal/repository"
	"github.com/unclebandit/certificate-service/internal/tabular"
)

type DatasetService struct {
	Repo  repository.DatasetRepositoryInterface
	Cache *DatasetCache
}

// MigrationResult reports the shape of a dataset after MigrateLegacy.
type MigrationResult struct {
	DatasetID        uuid.UUID `json:"dataset_id"`
	RowsConverted    int       `json:"rows_converted"`
	ColumnsConverted int       `json:"columns_converted"`
	AlreadyCanonical bool      `json:"already_canonical"`
}

// CreateDataset parses raw upload text and stores it canonically encoded.
func (s *DatasetService) CreateDataset(ctx context.Context, ownerGroupID uuid.UUID, name, raw string) (*model.Dataset, error) {
	table, err := tabular.Ingest(raw)
	if err != nil {
		return nil, err
	}
	rawColumns, rawRows, err := tabular.Encode(table)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	d := &model.Dataset{
		OwnerGroupID: ownerGroupID,
		Name:         strings.TrimSpace(name),
		RawColumns:   rawColumns,
		RawRows:      rawRows,
		ProcessedAt:  &now,
	}
	if err := s.Repo.Create(ctx, d); err != nil {
		return nil, err
	}
	d.Columns, d.Rows = table.Columns, table.Rows
	s.Cache.Set(d.ID, table)

	logging.WithFields(ctx, "dataset_id", d.ID).Info("dataset created",
		"columns", len(table.Columns), "rows", len(table.Rows))
	return d, nil
}

// GetDataset returns the dataset with its decoded columns and rows.
func (s *DatasetService) GetDataset(ctx context.Context, id uuid.UUID) (*model.Dataset, error) {
	d, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.decode(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Table returns the decoded table of a dataset, served from the cache when
// possible.
func (s *DatasetService) Table(ctx context.Context, id uuid.UUID) (*tabular.Table, error) {
	if t, ok := s.Cache.Get(id); ok {
		return t, nil
	}
	d, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := tabular.Decode(d.RawColumns, d.RawRows)
	if err != nil {
		return nil, fmt.Errorf("failed to decode dataset %s: %w", id, err)
	}
	s.Cache.Set(id, t)
	return t, nil
}

func (s *DatasetService) decode(d *model.Dataset) error {
	t, ok := s.Cache.Get(d.ID)
	if !ok {
		var err error
		if t, err = tabular.Decode(d.RawColumns, d.RawRows); err != nil {
			return fmt.Errorf("failed to decode dataset %s: %w", d.ID, err)
		}
		s.Cache.Set(d.ID, t)
	}
	d.Columns, d.Rows = t.Columns, t.Rows
	return nil
}

func (s *DatasetService) ListDatasets(ctx context.Context, p Page) ([]*model.Dataset, map[string]int, error) {
	p = p.normalize()
	datasets, total, err := s.Repo.List(ctx, p.filter())
	if err != nil {
		return nil, nil, err
	}
	// An undecodable dataset is listed without columns or rows.
	for _, d := range datasets {
		if err := s.decode(d); err != nil {
			logging.WithFields(ctx, "dataset_id", d.ID).Warn("dataset listed undecoded", "error", err)
			d.Columns, d.Rows = []string{}, [][]string{}
		}
	}
	return datasets, pagination(p, total), nil
}

func (s *DatasetService) RenameDataset(ctx context.Context, id uuid.UUID, name string) (*model.Dataset, error) {
	if err := s.Repo.UpdateName(ctx, id, strings.TrimSpace(name)); err != nil {
		return nil, err
	}
	return s.GetDataset(ctx, id)
}

func (s *DatasetService) DeleteDataset(ctx context.Context, id uuid.UUID) error {
	if err := s.Repo.Delete(ctx, id); err != nil {
		return err
	}
	s.Cache.Invalidate(id)
	return nil
}

// MigrateLegacy rewrites a legacy-encoded dataset into the canonical JSON
// encoding. Canonical datasets are left untouched, so repeated calls
// report the same counts.
func (s *DatasetService) MigrateLegacy(ctx context.Context, id uuid.UUID) (*MigrationResult, error) {
	d, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	log := logging.WithFields(ctx, "dataset_id", id)

	if tabular.IsCanonical(d.RawColumns, d.RawRows) {
		t, err := tabular.Decode(d.RawColumns, d.RawRows)
		if err != nil {
			return nil, err
		}
		log.Debug("dataset already canonical")
		return &MigrationResult{
			DatasetID:        id,
			RowsConverted:    len(t.Rows),
			ColumnsConverted: len(t.Columns),
			AlreadyCanonical: true,
		}, nil
	}

	t, err := tabular.ConvertLegacy(d.RawColumns, d.RawRows)
	if err != nil {
		return nil, err
	}
	rawColumns, rawRows, err := tabular.Encode(t)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.UpdateEncoding(ctx, id, rawColumns, rawRows, time.Now().UTC()); err != nil {
		return nil, err
	}
	s.Cache.Set(id, t)

	log.Info("legacy dataset migrated", "columns", len(t.Columns), "rows", len(t.Rows))
	return &MigrationResult{
		DatasetID:        id,
		RowsConverted:    len(t.Rows),
		ColumnsConverted: len(t.Columns),
	}, nil
}

// requireColumns returns a ColumnNotFoundError for the first column that
// the table lacks.
func requireColumns(t *tabular.Table, columns ...string) error {
	for _, c := range columns {
		found := false
		for _, have := range t.Columns {
			if have == c {
				found = true
				break
			}
		}
		if !found {
			return appErrors.NewColumnNotFound(c)
		}
	}
	return nil
}
