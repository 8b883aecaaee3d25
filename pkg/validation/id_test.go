package validation

import (
	"testing"
)

func TestValidateEntityID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		// Valid identifiers
		{"simple", "rw-123", false},
		{"single char", "a", false},
		{"uuid", "3f2c9d8e-1a4b-4c6d-9e8f-0a1b2c3d4e5f", false},
		{"dotted", "biz.main", false},
		{"max length", "a123456789a123456789a123456789a123456789a123456789a1234567890abc", false},

		// Invalid identifiers - injection attempts
		{"empty", "", true},
		{"namespace escape", "rw:123", true},
		{"path escape", "../etc/passwd", true},
		{"slash", "rw/123", true},
		{"spaces", "rw 123", true},
		{"newline", "rw\n123", true},
		{"starts with dot", ".rw", true},
		{"starts with hyphen", "-rw", true},
		{"too long", "a123456789a123456789a123456789a123456789a123456789a1234567890abcd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEntityID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEntityID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateCompanyNumber(t *testing.T) {
	tests := []struct {
		name    string
		number  string
		wantErr bool
	}{
		{"zero padded", "0000042", false},
		{"all digits", "1234567", false},
		{"too short", "123456", true},
		{"too long", "12345678", true},
		{"empty", "", true},
		{"letters", "00000AB", true},
		{"negative", "-123456", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCompanyNumber(tt.number)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCompanyNumber(%q) error = %v, wantErr %v", tt.number, err, tt.wantErr)
			}
		})
	}
}

func TestValidateEntityType(t *testing.T) {
	tests := []struct {
		name       string
		entityType string
		wantErr    bool
	}{
		{"reward", "reward", false},
		{"campaign", "campaign", false},
		{"customer", "customer", false},
		{"redemption", "redemption", false},
		{"empty", "", true},
		{"uppercase", "Reward", true},
		{"colon", "reward:x", true},
		{"starts with digit", "1reward", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEntityType(tt.entityType)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEntityType(%q) error = %v, wantErr %v", tt.entityType, err, tt.wantErr)
			}
		})
	}
}
