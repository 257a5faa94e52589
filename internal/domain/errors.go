package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrScopeNotFound indicates a requested client or tier scope matched no accounts.
	// Calculators never return it on their own; see RequireAccounts.
	ErrScopeNotFound = errors.New("scope matched no accounts")

	// ErrScopeRequired indicates a client-tier calculation without a client identifier.
	ErrScopeRequired = errors.New("client tier requires a client id")

	// ErrUnknownTier indicates a tier outside client, fidus and reinvested_profit.
	ErrUnknownTier = errors.New("unknown capital tier")
)

// DataIntegrityError reports a malformed numeric or timestamp field in a source record.
type DataIntegrityError struct {
	Field    string
	RecordID string
	Value    string
	Reason   string
	Err      error
}

func (e *DataIntegrityError) Error() string {
	msg := fmt.Sprintf("data integrity: field %q of record %q has invalid value %q", e.Field, e.RecordID, e.Value)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataIntegrityError) Unwrap() error {
	return e.Err
}

// WithRecord returns a copy of the error attributed to recordID.
func (e *DataIntegrityError) WithRecord(recordID string) *DataIntegrityError {
	c := *e
	c.RecordID = recordID
	return &c
}

// ConfigurationError reports contract or rebate configuration missing for a calculation.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("configuration: %s is not set", e.Key)
	}
	return fmt.Sprintf("configuration: %s: %s", e.Key, e.Reason)
}

// IsDataIntegrity reports whether err wraps a *DataIntegrityError.
func IsDataIntegrity(err error) bool {
	var target *DataIntegrityError
	return errors.As(err, &target)
}

// IsConfiguration reports whether err wraps a *ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}
