package ops

import (
	"context"
	"fmt"
	"io"

	"github.com/hpungsan/kayko/internal/config"
	"github.com/hpungsan/kayko/internal/errors"
	"github.com/hpungsan/kayko/internal/prompt"
	"github.com/hpungsan/kayko/internal/store"
)

// ImportInput contains parameters for the Import operation. Exactly one of
// Path and Data is used; Data wins when both are set.
type ImportInput struct {
	Path string // export file to read
	Data []byte // raw payload (uploads)
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"` // already present or dropped by the cap
	Total    int `json:"total"`
}

// Import merges an export payload into the store. Records whose id is
// already stored are skipped; new ones go first and the cap is applied. A
// malformed payload aborts without touching the store.
func Import(ctx context.Context, st *store.Store, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	data := input.Data
	if data == nil {
		var err error
		data, err = readImportFile(input.Path, cfg)
		if err != nil {
			return nil, err
		}
	} else if cfg != nil && cfg.MaxImportBytes > 0 && int64(len(data)) > cfg.MaxImportBytes {
		return nil, errors.NewFileTooLarge(cfg.MaxImportBytes, int64(len(data)))
	}

	imported, err := prompt.ParseExport(data)
	if err != nil {
		return nil, err
	}

	var added int
	records, err := st.UpdatePrompts(ctx, func(existing []prompt.Record, settings prompt.Settings) ([]prompt.Record, bool, error) {
		var merged []prompt.Record
		merged, added = prompt.MergeImport(existing, imported, settings.MaxPrompts)
		return merged, added > 0, nil
	})
	if err != nil {
		return nil, err
	}

	return &ImportOutput{
		Imported: added,
		Skipped:  len(imported) - added,
		Total:    len(records),
	}, nil
}

func readImportFile(path string, cfg *config.Config) ([]byte, error) {
	if err := ValidatePath(path, PathCheckRead, cfg); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(path)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	limit := int64(0)
	if cfg != nil {
		limit = cfg.MaxImportBytes
	}
	if limit > 0 {
		if info, err := file.Stat(); err == nil && info.Size() > limit {
			return nil, errors.NewFileTooLarge(limit, info.Size())
		}
	}

	var r io.Reader = file
	if limit > 0 {
		r = io.LimitReader(file, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to read import file: %w", err))
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, errors.NewFileTooLarge(limit, int64(len(data)))
	}
	return data, nil
}
