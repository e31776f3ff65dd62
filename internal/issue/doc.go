// SPDX-License-Identifier: MPL-2.0

// Package issue holds sentry's user-facing failure reporting: ActionableError
// for short "what failed and what to try" messages, and a catalog of
// Markdown guidance pages rendered with glamour.
package issue
