// Package store holds the SQL shared by the PostgreSQL and SQLite stores.
//
// Statements are built with squirrel so both engines run the same queries
// and differ only in placeholder format ($1 for pgx, ? for sqlite).
package store

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/JonMunkholm/phantom/internal/core"
)

// Table names.
const (
	TablePeople              = "people"
	TablePersonTypes         = "person_types"
	TableNationalities       = "nationalities"
	TablePersonTypesJunction = "person_types_junction"
	TableNationalityJunction = "person_nationalities_junction"
)

// Dollar builds statements with $n placeholders (PostgreSQL).
var Dollar = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Question builds statements with ? placeholders (SQLite).
var Question = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// ReferenceTable describes a reference table and the junction linking it to people.
type ReferenceTable struct {
	Table     string
	Junction  string
	RefColumn string
}

// ReferenceTables returns the tables backing kind.
func ReferenceTables(kind core.ReferenceKind) (ReferenceTable, error) {
	switch kind {
	case core.RefType:
		return ReferenceTable{Table: TablePersonTypes, Junction: TablePersonTypesJunction, RefColumn: "type_id"}, nil
	case core.RefNationality:
		return ReferenceTable{Table: TableNationalities, Junction: TableNationalityJunction, RefColumn: "nationality_id"}, nil
	default:
		return ReferenceTable{}, fmt.Errorf("unknown reference kind %d", int(kind))
	}
}

// SelectByFullName matches people on either derived full-name column.
func SelectByFullName(b sq.StatementBuilderType, nameSurname, surnameName string) sq.SelectBuilder {
	return b.Select("id", "name", "surname").
		From(TablePeople).
		Where(sq.Or{
			sq.Eq{"complete_name_ns": nameSurname},
			sq.Eq{"complete_name_sn": surnameName},
		}).
		OrderBy("id")
}

// InsertPerson inserts rec with its derived keys and returns the new id.
func InsertPerson(b sq.StatementBuilderType, rec core.PersonRecord) sq.InsertBuilder {
	nameSurname, surnameName := rec.FullNames()
	return b.Insert(TablePeople).
		Columns("name", "surname", "real_name", "gender", "has_image", "complete_name_ns", "complete_name_sn").
		Values(rec.Name, rec.Surname, rec.RealName, rec.Gender, rec.HasImage, nameSurname, surnameName).
		Suffix("RETURNING id")
}

// UpsertReference inserts name if absent and returns its id in one
// statement. The no-op update makes RETURNING yield the existing row.
func UpsertReference(b sq.StatementBuilderType, kind core.ReferenceKind, name string) (sq.InsertBuilder, error) {
	ref, err := ReferenceTables(kind)
	if err != nil {
		return sq.InsertBuilder{}, err
	}
	return b.Insert(ref.Table).
		Columns("name").
		Values(name).
		Suffix("ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id"), nil
}

// InsertLink inserts a junction row; an existing link is left alone.
func InsertLink(b sq.StatementBuilderType, kind core.ReferenceKind, personID, refID int64) (sq.InsertBuilder, error) {
	ref, err := ReferenceTables(kind)
	if err != nil {
		return sq.InsertBuilder{}, err
	}
	return b.Insert(ref.Junction).
		Columns("person_id", ref.RefColumn).
		Values(personID, refID).
		Suffix("ON CONFLICT DO NOTHING"), nil
}

// CountTables returns one statement yielding the row count of every table,
// in the field order of core.TableCounts.
func CountTables(b sq.StatementBuilderType) sq.SelectBuilder {
	return b.Select(
		"(SELECT COUNT(*) FROM "+TablePeople+")",
		"(SELECT COUNT(*) FROM "+TablePersonTypes+")",
		"(SELECT COUNT(*) FROM "+TableNationalities+")",
		"(SELECT COUNT(*) FROM "+TablePersonTypesJunction+")",
		"(SELECT COUNT(*) FROM "+TableNationalityJunction+")",
	)
}
