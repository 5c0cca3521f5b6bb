// Package issue defines the problems reported by scanning and export, and
// the remediation text shown to the user for each of them.
package issue

import (
	"fmt"
	"slices"
)

// Code identifies the kind of problem.
type Code string

// Issue codes. The geometry codes (out of bounds, not inside parent, auto
// layout) are catalogued but not raised by the extractor.
const (
	CodeMissingBackground    Code = "MISSING_BG"
	CodeTooFewQuests         Code = "TOO_FEW_QUESTS"
	CodeTooManyQuests        Code = "TOO_MANY_QUESTS"
	CodeDuplicateQuestKey    Code = "DUPLICATE_QUEST_KEY"
	CodeInvalidQuestKey      Code = "INVALID_QUEST_KEY"
	CodeDoubleWhitespace     Code = "QUEST_KEY_DOUBLE_WHITESPACE"
	CodeOutOfBounds          Code = "QUEST_KEY_OUT_OF_BOUNDS"
	CodeNotInsideParent      Code = "QUEST_KEY_NOT_INSIDE_PARENT"
	CodeAutoLayoutEnabled    Code = "QUEST_KEY_AUTO_LAYOUT_ENABLED"
	CodeMissingActiveVariant Code = "MISSING_ACTIVE_VARIANT"
	CodeMissingQuestKey      Code = "MISSING_QUEST_KEY"
	CodeImageExportFailed    Code = "IMAGE_EXPORT_FAILED"
	CodeValidationFailed     Code = "VALIDATION_FAILED"
	CodeUnknown              Code = "UNKNOWN"
)

// Level is the severity of an issue. Only LevelError blocks export.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
)

// Issue is a single reported problem.
type Issue struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	NodeID  string `json:"nodeId,omitempty"`
	Level   Level  `json:"level"`
}

// Errorf builds an error-level issue.
func Errorf(code Code, nodeID, format string, args ...any) Issue {
	return Issue{Code: code, Message: fmt.Sprintf(format, args...), NodeID: nodeID, Level: LevelError}
}

// Warnf builds a warning-level issue.
func Warnf(code Code, nodeID, format string, args ...any) Issue {
	return Issue{Code: code, Message: fmt.Sprintf(format, args...), NodeID: nodeID, Level: LevelWarning}
}

// IsError reports whether the issue blocks export.
func (i Issue) IsError() bool {
	return i.Level == LevelError
}

// HasErrors reports whether any issue in the list is error-level.
func HasErrors(issues []Issue) bool {
	return slices.ContainsFunc(issues, Issue.IsError)
}

// Count returns how many issues carry the given code.
func Count(issues []Issue, code Code) int {
	n := 0
	for _, i := range issues {
		if i.Code == code {
			n++
		}
	}
	return n
}
