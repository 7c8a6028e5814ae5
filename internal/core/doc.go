// Package core provides the business logic for importing people from CSV.
//
// This package holds all domain logic independent of the storage engine or
// transport. It is used by the CLI, the HTTP server and tests without
// modification.
//
// # Architecture
//
// The package is organized around a few concepts:
//
//   - Source: [ParseRecords] turns a CSV stream into [PersonRecord] values.
//   - Store: the [Store] and [StoreTx] interfaces hide PostgreSQL or SQLite.
//   - Importer: [Importer.Import] runs the duplicate gate and the
//     transactional insert.
//
// # Import Flow
//
//  1. The CSV is decoded as UTF-8 (BOM stripped, invalid bytes replaced)
//  2. Every record's two full-name keys are looked up in the store
//  3. Any match blocks the whole batch and is reported as a [DuplicateReport]
//  4. Otherwise every person, reference value and link is written in one
//     transaction; any failure rolls all of it back
//
// A check-only run stops after step 3.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - CFG001-CFG003: Configuration errors
//   - SRC001-SRC003: Source file errors (missing, malformed, too large)
//   - DB001-DB005: Database errors (constraints, connection, rollback)
//   - DUP001: Duplicates found
//   - IMP001-IMP002: Import errors (busy, cancelled)
package core
