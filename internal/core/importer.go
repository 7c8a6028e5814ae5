package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/phantom/internal/logging"
)

var (
	// ErrStoreConnection is returned when the store cannot be reached or a
	// transaction cannot be opened.
	ErrStoreConnection = errors.New("store connection error")

	// ErrStoreWrite wraps any failure while inserting people, reference
	// values or junction rows. The transaction has been rolled back.
	ErrStoreWrite = errors.New("store write error")
)

// ContextCheckInterval is how often, in records, the insert loop checks for
// context cancellation.
var ContextCheckInterval = 100

// Importer checks people records for duplicates and loads them into a Store.
type Importer struct {
	store  Store
	logger *slog.Logger
}

// NewImporter returns an Importer writing to store. A nil logger discards output.
func NewImporter(store Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Importer{store: store, logger: logger}
}

// CheckDuplicates looks up every record's derived full names in the store
// and returns one report per existing match. It never writes and always
// checks every record.
func (im *Importer) CheckDuplicates(ctx context.Context, records []PersonRecord) ([]DuplicateReport, error) {
	dups := make([]DuplicateReport, 0)

	for i, rec := range records {
		nameSurname, surnameName := rec.FullNames()

		matches, err := im.store.FindByFullName(ctx, nameSurname, surnameName)
		if err != nil {
			return nil, fmt.Errorf("check duplicates for %s: %w", recordRef(i, rec), err)
		}

		for _, m := range matches {
			dups = append(dups, DuplicateReport{
				Line:            rec.Line,
				ExistingID:      m.ID,
				ExistingName:    m.Name,
				ExistingSurname: m.Surname,
				NewName:         rec.Name,
				NewSurname:      rec.Surname,
			})
		}
	}

	return dups, nil
}

// Import runs the duplicate check and, when checkOnly is false and no
// duplicate was found, inserts every record in one transaction.
//
// A single duplicate blocks the whole batch. On a write failure the
// transaction is rolled back, nothing is inserted, and the returned error
// wraps ErrStoreWrite.
func (im *Importer) Import(ctx context.Context, records []PersonRecord, checkOnly bool) (ImportResult, error) {
	start := time.Now()
	result := ImportResult{
		RunID:      uuid.NewString(),
		State:      StateNotStarted,
		Records:    len(records),
		Duplicates: []DuplicateReport{},
	}
	logger := im.logger.With("run_id", result.RunID)

	finish := func(state ImportState) ImportResult {
		result.State = state
		result.Duration = time.Since(start)
		return result
	}

	logger.Info("import started", "records", len(records), "check_only", checkOnly)

	result.State = StateCheckingDuplicates
	dups, err := im.CheckDuplicates(ctx, records)
	if err != nil {
		logger.Error("duplicate check failed", "error", err)
		return finish(StateFailed), err
	}
	result.Duplicates = dups

	if len(dups) > 0 {
		logger.Warn("import blocked by duplicates", "duplicates", len(dups))
		return finish(StateBlocked), nil
	}
	if checkOnly {
		logger.Info("check completed", "duplicates", 0)
		return finish(StateChecked), nil
	}

	result.State = StateInserting
	inserted := 0
	err = im.store.InTx(ctx, func(tx StoreTx) error {
		for i, rec := range records {
			if i%ContextCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("%w: %s: %w", ErrStoreWrite, recordRef(i, rec), err)
				}
			}
			if err := insertRecord(ctx, tx, rec); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrStoreWrite, recordRef(i, rec), err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrStoreConnection) {
			logger.Error("import failed", "error", err)
			return finish(StateFailed), err
		}
		logger.Error("import rolled back", "error", err, "attempted", inserted+1)
		return finish(StateRolledBack), err
	}

	result.Inserted = inserted
	logger.Info("import committed", "inserted", inserted, "duration_ms", time.Since(start).Milliseconds())
	return finish(StateCommitted), nil
}

// ImportFile reads path with ReadFile and imports the records.
func (im *Importer) ImportFile(ctx context.Context, path string, maxSize int64, checkOnly bool) (ImportResult, error) {
	records, err := ReadFile(path, maxSize)
	if err != nil {
		return ImportResult{State: StateFailed, Duplicates: []DuplicateReport{}}, err
	}
	return im.Import(ctx, records, checkOnly)
}

func insertRecord(ctx context.Context, tx StoreTx, rec PersonRecord) error {
	personID, err := tx.InsertPerson(ctx, rec)
	if err != nil {
		return fmt.Errorf("insert person: %w", err)
	}

	if err := linkReferences(ctx, tx, RefType, personID, rec.Types); err != nil {
		return err
	}
	return linkReferences(ctx, tx, RefNationality, personID, rec.Nationalities)
}

func linkReferences(ctx context.Context, tx StoreTx, kind ReferenceKind, personID int64, names []string) error {
	for _, name := range names {
		refID, err := tx.UpsertReference(ctx, kind, name)
		if err != nil {
			return fmt.Errorf("upsert %s %q: %w", kind, name, err)
		}
		if err := tx.LinkReference(ctx, kind, personID, refID); err != nil {
			return fmt.Errorf("link %s %q: %w", kind, name, err)
		}
	}
	return nil
}

// recordRef identifies a record in errors: its source line when known,
// otherwise its 1-based position.
func recordRef(i int, rec PersonRecord) string {
	if rec.Line > 0 {
		return fmt.Sprintf("line %d (%s)", rec.Line, rec.Name)
	}
	return fmt.Sprintf("record %d (%s)", i+1, rec.Name)
}
