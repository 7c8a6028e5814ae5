package core

// error_messages.go maps errors to user-facing messages with support codes.
//
// Codes by category:
//
//	CFG001  configuration file not found
//	CFG002  configuration file malformed
//	CFG003  configuration key missing
//	SRC001  source file not found
//	SRC002  source format invalid (missing column, empty name, bad quoting)
//	SRC003  source file too large
//	DB001   unique constraint violated
//	DB002   foreign key violated
//	DB003   cannot reach the store
//	DB004   write failed, transaction rolled back
//	DB005   timeout
//	DUP001  duplicates found, import blocked
//	IMP001  too many imports in progress
//	IMP002  import cancelled
//	RATE001 rate limited
//	ERR000  anything else
//
// Sentinel errors are matched with errors.Is first. Remaining errors are
// matched case-insensitively on their text; the first pattern wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/phantom/internal/config"
)

// ErrDuplicatesFound reports an import blocked by duplicates. Import itself
// returns it as state, never as an error; callers that need an error value
// (exit codes, HTTP status) use this one.
var ErrDuplicatesFound = errors.New("duplicates found")

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Support reference
}

func (m UserMessage) String() string {
	if m.Action == "" {
		return fmt.Sprintf("%s [%s]", m.Message, m.Code)
	}
	return fmt.Sprintf("%s. %s [%s]", m.Message, m.Action, m.Code)
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgDuplicates = UserMessage{
		Message: "Some people already exist in the database; nothing was imported",
		Action:  "Review the duplicate report and remove those rows",
		Code:    "DUP001",
	}
	msgStoreWrite = UserMessage{
		Message: "Writing to the database failed and the import was rolled back",
		Action:  "No rows were saved; fix the reported row and retry",
		Code:    "DB004",
	}
	msgUnknown = UserMessage{
		Message: "An unexpected error occurred",
		Action:  "Please try again or check the logs",
		Code:    "ERR000",
	}
)

var sentinelMessages = []sentinelMessage{
	{config.ErrConfigNotFound, UserMessage{
		Message: "The configuration file was not found",
		Action:  "Set PHANTOM_CONFIG to the credentials file",
		Code:    "CFG001",
	}},
	{config.ErrMissingKey, UserMessage{
		Message: "A required configuration key is missing",
		Action:  "Add the key named in the error to the credentials file",
		Code:    "CFG003",
	}},
	{config.ErrConfigParse, UserMessage{
		Message: "The configuration file could not be parsed",
		Action:  "Check the file for syntax errors",
		Code:    "CFG002",
	}},
	{ErrDuplicatesFound, msgDuplicates},
	{ErrSourceNotFound, UserMessage{
		Message: "The input file was not found",
		Action:  "Check the file path",
		Code:    "SRC001",
	}},
	{ErrSourceTooLarge, UserMessage{
		Message: "The input file exceeds the maximum size",
		Action:  "Split the file into smaller chunks",
		Code:    "SRC003",
	}},
	{ErrSourceFormat, UserMessage{
		Message: "The input file is not a valid people CSV",
		Action:  "Ensure every required column is present and each row has a Name",
		Code:    "SRC002",
	}},
	{ErrTooManyImports, UserMessage{
		Message: "Too many imports in progress",
		Action:  "Please wait a moment and try again",
		Code:    "IMP001",
	}},
	{ErrStoreConnection, UserMessage{
		Message: "Unable to connect to the database",
		Action:  "Check the database credentials and that the server is running",
		Code:    "DB003",
	}},
	{context.Canceled, UserMessage{
		Message: "The import was cancelled",
		Action:  "Start a new import when ready",
		Code:    "IMP002",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "The import timed out",
		Action:  "Try a smaller file or raise IMPORT_TIMEOUT",
		Code:    "DB005",
	}},
}

var errorPatterns = []errorPattern{
	{"unique constraint", UserMessage{
		Message: "A value must be unique but already exists",
		Action:  "Check for repeated rows in the file",
		Code:    "DB001",
	}},
	{"foreign key", UserMessage{
		Message: "A referenced record does not exist",
		Action:  "Check the database schema",
		Code:    "DB002",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to the database",
		Action:  "Please try again in a few moments",
		Code:    "DB003",
	}},
	{"rate limit", UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}},
}

// MapError converts an error to a user-friendly message.
// Returns an empty UserMessage for a nil error.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, s := range sentinelMessages {
		if errors.Is(err, s.err) {
			return s.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(errStr, p.pattern) {
			return p.msg
		}
	}

	// Store write failures carry the driver message, so patterns above
	// are tried first to give a more specific code.
	if errors.Is(err, ErrStoreWrite) {
		return msgStoreWrite
	}

	return msgUnknown
}
