package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// PersonRecord is one parsed input row.
// Optional text fields use pgtype.Text; Valid=false means the cell was empty.
type PersonRecord struct {
	Line          int // 1-based source line, 0 when not read from a file
	Name          string
	Surname       pgtype.Text
	RealName      pgtype.Text
	Gender        pgtype.Text
	HasImage      bool
	Types         []string
	Nationalities []string
}

// FullNames returns the record's duplicate-matching keys.
func (r PersonRecord) FullNames() (nameSurname, surnameName string) {
	return FullNames(r.Name, r.Surname)
}

// StoredPerson is an existing row of the people table.
type StoredPerson struct {
	ID      int64       `db:"id" json:"id"`
	Name    string      `db:"name" json:"name"`
	Surname pgtype.Text `db:"surname" json:"surname"`
}

// DuplicateReport pairs an input record with an existing person whose
// derived full name matches it. One input record yields one report per match.
type DuplicateReport struct {
	Line            int         `json:"line,omitempty"`
	ExistingID      int64       `json:"existing_id"`
	ExistingName    string      `json:"existing_name"`
	ExistingSurname pgtype.Text `json:"existing_surname"`
	NewName         string      `json:"new_name"`
	NewSurname      pgtype.Text `json:"new_surname"`
}

// ReferenceKind selects a reference table and its junction.
type ReferenceKind int

const (
	RefType ReferenceKind = iota
	RefNationality
)

func (k ReferenceKind) String() string {
	switch k {
	case RefType:
		return "type"
	case RefNationality:
		return "nationality"
	default:
		return "unknown"
	}
}

// Store is the persistence boundary used by the Importer.
type Store interface {
	// FindByFullName returns every person whose complete_name_ns equals
	// nameSurname or whose complete_name_sn equals surnameName.
	FindByFullName(ctx context.Context, nameSurname, surnameName string) ([]StoredPerson, error)

	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and is rolled back otherwise.
	InTx(ctx context.Context, fn func(tx StoreTx) error) error
}

// StoreTx holds the write operations available inside InTx.
type StoreTx interface {
	// InsertPerson inserts rec with its derived full-name keys and returns the generated id.
	InsertPerson(ctx context.Context, rec PersonRecord) (int64, error)

	// UpsertReference inserts name into the reference table of kind if absent
	// and returns its id in a single statement.
	UpsertReference(ctx context.Context, kind ReferenceKind, name string) (int64, error)

	// LinkReference inserts a junction row; an existing link is a no-op.
	LinkReference(ctx context.Context, kind ReferenceKind, personID, refID int64) error
}

// TableCounts holds row counts of every importer table.
type TableCounts struct {
	People                 int64 `json:"people"`
	PersonTypes            int64 `json:"person_types"`
	Nationalities          int64 `json:"nationalities"`
	PersonTypeLinks        int64 `json:"person_types_junction"`
	PersonNationalityLinks int64 `json:"person_nationalities_junction"`
}

// Counter is implemented by stores that can report table statistics.
type Counter interface {
	Counts(ctx context.Context) (TableCounts, error)
}

// ImportState is the lifecycle position of one import run.
type ImportState string

const (
	StateNotStarted         ImportState = "not_started"
	StateCheckingDuplicates ImportState = "checking_duplicates"
	StateInserting          ImportState = "inserting"

	// Terminal states.
	StateChecked    ImportState = "checked" // check-only run without duplicates
	StateBlocked    ImportState = "blocked" // duplicates found, nothing written
	StateCommitted  ImportState = "committed"
	StateRolledBack ImportState = "rolled_back"
	StateFailed     ImportState = "failed" // error before any write was attempted
)

// ImportResult is the outcome of Importer.Import.
type ImportResult struct {
	RunID      string            `json:"run_id"`
	State      ImportState       `json:"state"`
	Records    int               `json:"records"`
	Inserted   int               `json:"inserted"`
	Duplicates []DuplicateReport `json:"duplicates"`
	Duration   time.Duration     `json:"duration_ns"`
}
