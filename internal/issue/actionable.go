// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// ActionableError tells the user what sentry was doing when it failed,
	// what it was touching, and what to try next. It can point at a catalog
	// entry for long-form guidance.
	//
	//	err := issue.NewErrorContext().
	//		WithOperation("replace binary").
	//		WithResource("/usr/local/bin/sentry").
	//		WithSuggestion("Re-run with sudo").
	//		WithIssue(issue.PermissionDeniedId).
	//		Wrap(renameErr).
	//		BuildError()
	ActionableError struct {
		// Operation is a verb phrase such as "install binary".
		Operation string

		// Resource is the path or endpoint involved, if any.
		Resource string

		// Suggestions are short next steps, one per line.
		Suggestions []string

		// Issue is the catalog entry with long-form guidance; zero means none.
		Issue Id

		// Cause is the wrapped error.
		Cause error
	}

	// ErrorContext accumulates the parts of an ActionableError.
	ErrorContext struct {
		operation   string
		resource    string
		suggestions []string
		issue       Id
		cause       error
	}
)

// NewErrorContext starts an empty builder.
func NewErrorContext() *ErrorContext {
	return &ErrorContext{}
}

// WrapWithOperation is shorthand for an ActionableError with only an
// operation and a cause. A nil err yields nil.
func WrapWithOperation(err error, operation string) *ActionableError {
	if err == nil {
		return nil
	}
	return &ActionableError{Operation: operation, Cause: err}
}

// Error renders "failed to <operation>[: <resource>][: <cause>]".
func (e *ActionableError) Error() string {
	parts := []string{"failed to " + e.Operation}
	if e.Resource != "" {
		parts = append(parts, e.Resource)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *ActionableError) Unwrap() error {
	return e.Cause
}

// HasSuggestions reports whether any next steps are attached.
func (e *ActionableError) HasSuggestions() bool {
	return len(e.Suggestions) > 0
}

// Format renders the message followed by a bulleted suggestion list. In
// verbose mode the numbered chain of wrapped errors is appended.
func (e *ActionableError) Format(verbose bool) string {
	var b strings.Builder
	b.WriteString(e.Error())
	e.writeSuggestions(&b)
	if verbose {
		writeChain(&b, e.Cause)
	}
	return b.String()
}

// Guidance renders the linked catalog entry with the given glamour style.
// It returns "" when no entry is linked or the id is unknown.
func (e *ActionableError) Guidance(stylePath string) (string, error) {
	if e.Issue == 0 {
		return "", nil
	}
	entry := Get(e.Issue)
	if entry == nil {
		return "", nil
	}
	return entry.Render(stylePath)
}

func (e *ActionableError) writeSuggestions(b *strings.Builder) {
	if !e.HasSuggestions() {
		return
	}
	b.WriteString("\n")
	for _, s := range e.Suggestions {
		b.WriteString("\n  • " + s)
	}
}

func writeChain(b *strings.Builder, cause error) {
	if cause == nil {
		return
	}
	b.WriteString("\n\nError chain:")
	for depth, err := 1, cause; err != nil; depth, err = depth+1, errors.Unwrap(err) {
		fmt.Fprintf(b, "\n  %d. %s", depth, err)
	}
}

func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.operation = op
	return c
}

func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.resource = res
	return c
}

// WithSuggestion appends one next step; call it repeatedly to add more.
func (c *ErrorContext) WithSuggestion(sug string) *ErrorContext {
	c.suggestions = append(c.suggestions, sug)
	return c
}

func (c *ErrorContext) WithSuggestions(sugs ...string) *ErrorContext {
	c.suggestions = append(c.suggestions, sugs...)
	return c
}

// WithIssue links the error to a catalog entry.
func (c *ErrorContext) WithIssue(id Id) *ErrorContext {
	c.issue = id
	return c
}

func (c *ErrorContext) Wrap(err error) *ErrorContext {
	c.cause = err
	return c
}

// Build returns the error, or nil when no operation was set. The suggestion
// slice is copied so the builder can be reused.
func (c *ErrorContext) Build() *ActionableError {
	if c.operation == "" {
		return nil
	}
	return &ActionableError{
		Operation:   c.operation,
		Resource:    c.resource,
		Suggestions: append([]string(nil), c.suggestions...),
		Issue:       c.issue,
		Cause:       c.cause,
	}
}

// BuildError is Build typed as error, so a missing operation yields an
// untyped nil.
func (c *ErrorContext) BuildError() error {
	if ae := c.Build(); ae != nil {
		return ae
	}
	return nil
}
