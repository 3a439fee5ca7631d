package models

import (
	"errors"
	"fmt"
)

// ContractViolation is a programming-level error: a provider was handed the
// wrong artifact kind, an unknown task tag, malformed metadata, or returned
// an outcome that breaks its own guarantees. It is never a tool failure and
// never a quality failure.
type ContractViolation struct {
	Provider string
	Reason   string
}

func (e *ContractViolation) Error() string {
	if e.Provider == "" {
		return "contract violation: " + e.Reason
	}
	return fmt.Sprintf("contract violation in %s: %s", e.Provider, e.Reason)
}

// Violationf builds a ContractViolation with no provider attribution
func Violationf(format string, args ...interface{}) *ContractViolation {
	return &ContractViolation{Reason: fmt.Sprintf(format, args...)}
}

// ProviderViolationf builds a ContractViolation attributed to provider
func ProviderViolationf(provider, format string, args ...interface{}) *ContractViolation {
	return &ContractViolation{Provider: provider, Reason: fmt.Sprintf(format, args...)}
}

// IsContractViolation reports whether err is or wraps a ContractViolation
func IsContractViolation(err error) bool {
	var cv *ContractViolation
	return errors.As(err, &cv)
}
