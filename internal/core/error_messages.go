package core

// # Error Codes Reference
//
// When a run aborts, the CLI prints a user message with a code that operators
// can quote when reporting the failure.
//
//	ING001 - Input unreadable: an archive or data file could not be read
//	         Action: Check the archive path and that it holds one CSV or JSON file
//
//	REC001 - Malformed identifier: a composite sale id has no store separator
//	         Action: Fix the sales extract; nothing was loaded
//
//	SNK001 - Sink unreachable: PostgreSQL or MongoDB connection failed
//	         Action: Check connection settings and that the service is up
//
//	LOAD001 - Batch failed: a bulk-copy batch was rolled back
//	          Action: Earlier batches remain committed; rerun to replace the table
//
//	EXP001 - Export failed: a partition, divergence or indicator file was not written
//	         Action: Check output directory permissions and free space
//
//	CFG001 - Configuration: required settings are missing or invalid
//	         Action: Review the environment or .env file
//
//	DB004 - Connection refused (pattern match on driver errors)
//	DB006 - Timeout (pattern match on driver errors)
//
//	ERR000 - Unknown error: check the logs for the technical error
//
// Typed errors are matched with errors.Is first; the string patterns only
// catch driver errors that escaped wrapping.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorKind struct {
	target error
	msg    UserMessage
}

// errorKinds is checked in order with errors.Is.
var errorKinds = []errorKind{
	{
		target: ErrMalformedIdentifier,
		msg: UserMessage{
			Message: "A composite sale identifier is malformed",
			Action:  "Fix the sales extract; nothing was loaded",
			Code:    "REC001",
		},
	},
	{
		target: ErrBatchLoad,
		msg: UserMessage{
			Message: "A bulk load batch failed and was rolled back",
			Action:  "Earlier batches remain committed; rerun to replace the table",
			Code:    "LOAD001",
		},
	},
	{
		target: ErrSinkConnection,
		msg: UserMessage{
			Message: "Unable to connect to a data sink",
			Action:  "Check connection settings and that the service is up",
			Code:    "SNK001",
		},
	},
	{
		target: ErrIngestIO,
		msg: UserMessage{
			Message: "An input file could not be read",
			Action:  "Check the archive path and that it holds one CSV or JSON file",
			Code:    "ING001",
		},
	},
	{
		target: ErrExport,
		msg: UserMessage{
			Message: "An output file could not be written",
			Action:  "Check output directory permissions and free space",
			Code:    "EXP001",
		},
	},
	{
		target: ErrConfig,
		msg: UserMessage{
			Message: "The configuration is invalid",
			Action:  "Review the environment or .env file",
			Code:    "CFG001",
		},
	},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns are matched case-insensitively against the error text.
var errorPatterns = []errorPattern{
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Check the database load and try again",
			Code:    "DB006",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for the technical error",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.msg
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

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether the error maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
