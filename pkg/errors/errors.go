// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Verdigris Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeStoreObservationNotFound Code = "store.observation.get.not_found"
	CodeStoreBeliefNotFound      Code = "store.belief.get.not_found"
	CodeStoreDatabaseFailure     Code = "store.database.failure"
	CodeStoreOpenFailure         Code = "store.open.failure"
	CodeStoreInvalidInput        Code = "store.invalid_input"

	CodeIndexOpenFailure        Code = "index.open.failure"
	CodeIndexReadOnly           Code = "index.mode.read_only"
	CodeIndexWriteOnly          Code = "index.mode.write_only"
	CodeIndexAddFailure         Code = "index.add.failure"
	CodeIndexSearchFailure      Code = "index.search.failure"
	CodeIndexRebuildFailure     Code = "index.rebuild.failure"
	CodeIndexDeleteFailure      Code = "index.delete.failure"
	CodeIndexBackendUnsupported Code = "index.backend.unsupported"

	CodeEmbedInputEmpty        Code = "embed.input.empty"
	CodeEmbedModelUnavailable  Code = "embed.model.unavailable"
	CodeEmbedModelUnknown      Code = "embed.model.unknown"
	CodeEmbedModelMismatch     Code = "embed.model.mismatch"
	CodeEmbedDimensionMismatch Code = "embed.dimension.mismatch"

	CodeQueryInvalid Code = "query.invalid"

	CodeRulesDefinitionInvalid Code = "rules.definition.invalid"
	CodeRulesLoadReadFailure   Code = "rules.load.read_failure"

	CodeValidationFailure Code = "validation.failure"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"
	CodeConfigAlreadyExists        Code = "config.already_exists"

	CodeCLIInputInvalid Code = "cli.input.invalid"
	CodeCLISetupFailure Code = "cli.setup.failure"

	CodeInternalFailure Code = "internal.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldObservationID(value string) Attr {
	return Field("observation_id", value)
}

func FieldSourceID(value string) Attr {
	return Field("source_id", value)
}

func FieldModelID(value string) Attr {
	return Field("model_id", value)
}

func FieldBackend(value string) Attr {
	return Field("backend", value)
}

func FieldRule(value string) Attr {
	return Field("rule", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// IsEmbeddingError reports whether err belongs to the embedding failure
// class: empty input, unavailable model, or a model/dimension mismatch
// against the currently open index.
func IsEmbeddingError(err error) bool {
	return strings.HasPrefix(string(CodeOf(err)), "embed.")
}

// IsIndexModeError reports whether err is a mode-confusion usage error:
// a mutation attempted on a read-only index handle, or a search attempted
// on a handle opened only for writing.
func IsIndexModeError(err error) bool {
	return strings.HasPrefix(string(CodeOf(err)), "index.mode.")
}

// IsInvalidQuery reports whether err is an empty or malformed query.
func IsInvalidQuery(err error) bool {
	return HasCode(err, CodeQueryInvalid)
}

// IsRuleDefinitionError reports whether err comes from loading a malformed
// validation rules file. These surface at load time, never per-query.
func IsRuleDefinitionError(err error) bool {
	return strings.HasPrefix(string(CodeOf(err)), "rules.")
}

// IsValidationError reports whether err is an unexpected mid-evaluation
// failure of the evidence validator.
func IsValidationError(err error) bool {
	return HasCode(err, CodeValidationFailure)
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func Join(errs ...error) error {
	return oops.Code(CodeInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
