// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for externally supplied strings that end up
// in key/value store keys or remote proxy paths. Using these validators prevents
// key injection (a reward id containing ':' or '/' would escape its namespace).
package validation

import (
	"fmt"
	"regexp"
)

// entityIDPattern matches valid entity identifiers (rewards, campaigns,
// customers, businesses). Allows letters, digits, underscores, hyphens and
// dots; 1-64 characters. Colons are deliberately excluded because ':' is the
// key namespace separator.
var entityIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]{0,63}$`)

// companyNumberPattern matches the 7-digit zero-padded company numbers used
// in the COMPANY QR format.
var companyNumberPattern = regexp.MustCompile(`^[0-9]{7}$`)

// entityTypePattern matches entity type names used as key prefixes.
var entityTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

// ValidateEntityID validates an entity identifier before it is used in a
// store key or a remote proxy path.
//
// Valid identifiers:
//   - 1-64 characters
//   - letters, digits, underscores, hyphens, dots
//   - must start with a letter or digit
//
// Returns an error if the identifier is invalid.
//
// Example:
//
//	if err := validation.ValidateEntityID(rewardID); err != nil {
//	    return fmt.Errorf("invalid reward id: %w", err)
//	}
func ValidateEntityID(id string) error {
	if id == "" {
		return fmt.Errorf("entity id cannot be empty")
	}
	if !entityIDPattern.MatchString(id) {
		return fmt.Errorf("invalid entity id: %q (must be 1-64 alphanumeric chars, underscores, hyphens, or dots)", id)
	}
	return nil
}

// ValidateCompanyNumber validates a company number from a COMPANY QR code.
// Company numbers are always exactly 7 digits, zero-padded.
func ValidateCompanyNumber(number string) error {
	if !companyNumberPattern.MatchString(number) {
		return fmt.Errorf("invalid company number: %q (must be exactly 7 digits)", number)
	}
	return nil
}

// ValidateEntityType validates an entity type name ("reward", "campaign",
// "customer", ...) before it is used as a key prefix.
func ValidateEntityType(entityType string) error {
	if entityType == "" {
		return fmt.Errorf("entity type cannot be empty")
	}
	if !entityTypePattern.MatchString(entityType) {
		return fmt.Errorf("invalid entity type: %q (must be 1-32 lowercase alphanumeric chars or underscores)", entityType)
	}
	return nil
}
