// Package domain defines core data models and interfaces shared across the
// messaging service core.
//
// It contains plain types (wire/state, in the types subpackage) and
// contracts (interfaces, in the interfaces subpackage) only; no behavior
// lives here.
package domain
