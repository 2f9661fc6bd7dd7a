package pipeline

// error_messages.go maps run failures to operator-facing messages with
// support codes.
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Table not found            *catalog.ConfigNotFoundError
//	CFG002 - Unknown cleaning rule      *catalog.UnknownRuleError
//	CFG003 - Unknown validator          *catalog.UnknownValidatorError
//	CFG004 - Duplicate target column    *catalog.DuplicateTargetError
//	CFG005 - Circular dependency        *catalog.CircularDependencyError
//	CFG006 - Unknown dependency         *catalog.UnknownDependencyError
//	CFG007 - Invalid setting            *catalog.InvalidConfigError
//
// # Source Errors (SRC001-SRC099)
//
//	SRC001 - No file matches the table's source pattern   source.ErrNoMatch
//	SRC002 - Source file missing or unreadable            *source.SourceError
//	SRC003 - No header row                                source.ErrNoHeader
//	SRC004 - Required columns missing                     *source.MissingColumnsError
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Table busy                  ErrTableBusy
//	RUN002 - Too many concurrent runs    ErrTooManyRuns
//	RUN003 - Cancelled                   context.Canceled, context.DeadlineExceeded
//	RUN004 - Spill file failure          "spill"
//
// # Ledger and Sink Errors (LED001-LED099, SNK001-SNK099)
//
//	LED001 - Run not found               ledger.ErrRunNotFound
//	LED002 - Run already finished        ledger.ErrRunFinished
//	LED003 - Stage moved backwards       ledger.ErrStageRegression
//	LED004 - Database unreachable        "connection refused", "connection reset"
//	SNK001 - Destination table missing   "does not exist"
//	SNK002 - Duplicate key at destination "duplicate key", "violates unique"
//	SNK003 - Foreign key at destination  "violates foreign key"
//
// # Quality Gates (GATE001-GATE003)
//
// Gate failures are warnings on a completed run, not errors. Their codes
// are carried by GateFailure.
//
// # Default (ERR000)
//
// Anything else maps to ERR000; check the logs for the original error.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/campusetl/internal/catalog"
	"github.com/JonMunkholm/campusetl/internal/ledger"
	"github.com/JonMunkholm/campusetl/internal/source"
)

// UserMessage explains a failure to an operator.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

// typedMessage matches an error by type or sentinel.
type typedMessage struct {
	match func(error) bool
	msg   UserMessage
}

func asType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

// typedMessages are checked in order before the text patterns.
// Sentinels wrapped by typed errors come first.
var typedMessages = []typedMessage{
	{asType[*catalog.ConfigNotFoundError], UserMessage{"Table is not configured", "Check the table name against `campusetl catalog order`", "CFG001"}},
	{asType[*catalog.UnknownRuleError], UserMessage{"A column uses an unknown cleaning rule", "Fix the rule name in the catalog file", "CFG002"}},
	{asType[*catalog.UnknownValidatorError], UserMessage{"A table uses an unknown validator", "Fix the validator name in the catalog file", "CFG003"}},
	{asType[*catalog.DuplicateTargetError], UserMessage{"Two columns map to the same target", "Give every column a unique target name", "CFG004"}},
	{asType[*catalog.CircularDependencyError], UserMessage{"Table dependencies form a cycle", "Remove one of the listed dependencies", "CFG005"}},
	{asType[*catalog.UnknownDependencyError], UserMessage{"A table depends on an unknown table", "Add the missing table or remove the dependency", "CFG006"}},
	{asType[*catalog.InvalidConfigError], UserMessage{"Invalid table configuration", "Run `campusetl catalog check` for details", "CFG007"}},

	{is(source.ErrNoMatch), UserMessage{"No source file matches the table's pattern", "Check --source-dir and the file naming", "SRC001"}},
	{is(source.ErrNoHeader), UserMessage{"Source file has no header row", "Export the file again with column headers", "SRC003"}},
	{asType[*source.MissingColumnsError], UserMessage{"Source file is missing required columns", "Export the listed columns or mark them nullable", "SRC004"}},
	{asType[*source.SourceError], UserMessage{"Source file is missing or unreadable", "Check that the file exists and is readable", "SRC002"}},

	{is(ErrTableBusy), UserMessage{"Table already has an active run", "Wait for the running import to finish", "RUN001"}},
	{is(ErrTooManyRuns), UserMessage{"Too many imports are running", "Lower --parallel or try again later", "RUN002"}},
	{is(context.Canceled), UserMessage{"Run was cancelled", "Start the run again when ready", "RUN003"}},
	{is(context.DeadlineExceeded), UserMessage{"Run was cancelled", "Start the run again when ready", "RUN003"}},

	{is(ledger.ErrRunNotFound), UserMessage{"Run not found", "Check the run id with `campusetl runs`", "LED001"}},
	{is(ledger.ErrRunFinished), UserMessage{"Run is already finished", "Start a new run", "LED002"}},
	{is(ledger.ErrStageRegression), UserMessage{"Run stage cannot move backwards", "Start a new run", "LED003"}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns match lower-cased error text; the first match wins.
var errorPatterns = []errorPattern{
	{"connection refused", UserMessage{"Unable to connect to database", "Check LEDGER_DSN or SINK_DATABASE_URL", "LED004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "LED004"}},
	{"does not exist", UserMessage{"Destination table does not exist", "Create the table before loading; the pipeline does not migrate destinations", "SNK001"}},
	{"duplicate key", UserMessage{"Destination already has a record with this key", "Remove the existing rows or deduplicate the export", "SNK002"}},
	{"violates unique", UserMessage{"Destination already has a record with this key", "Remove the existing rows or deduplicate the export", "SNK002"}},
	{"violates foreign key", UserMessage{"Referenced record does not exist at the destination", "Load parent tables first", "SNK003"}},
	{"spill", UserMessage{"Temporary spill file failed", "Check free space in ETL_SPILL_DIR", "RUN004"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for details",
	Code:    "ERR000",
}

// MapError converts an error to an operator-facing message. Typed errors
// are matched first, then message patterns; unknown errors map to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	for _, tm := range typedMessages {
		if tm.match(err) {
			return tm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError formats err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
