package limits

import (
	"errors"
	"strings"
	"testing"
)

// TestValidateCasIDLength tests the content identifier length validation
func TestValidateCasIDLength(t *testing.T) {
	tests := []struct {
		name    string
		casID   string
		wantErr error
	}{
		{name: "empty", casID: "", wantErr: ErrEmpty},
		{name: "too short", casID: "ab", wantErr: ErrTooSmall},
		{name: "minimum", casID: "abc", wantErr: nil},
		{name: "typical", casID: "5d1a8b0c9e2f4a6b", wantErr: nil},
		{name: "maximum", casID: strings.Repeat("a", MaxCasIDLength), wantErr: nil},
		{name: "too long", casID: strings.Repeat("a", MaxCasIDLength+1), wantErr: ErrTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCasIDLength(tt.casID)
			if !errors.Is(err, tt.wantErr) && !(err == nil && tt.wantErr == nil) {
				t.Errorf("ValidateCasIDLength() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestValidateBlockSize tests the block size validation function
func TestValidateBlockSize(t *testing.T) {
	tests := []struct {
		name    string
		size    uint32
		wantErr error
	}{
		{name: "zero", size: 0, wantErr: ErrEmpty},
		{name: "one byte", size: 1, wantErr: nil},
		{name: "default", size: 128 * 1024, wantErr: nil},
		{name: "maximum", size: MaxBlockSize, wantErr: nil},
		{name: "too large", size: MaxBlockSize + 1, wantErr: ErrTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBlockSize(tt.size)
			if !errors.Is(err, tt.wantErr) && !(err == nil && tt.wantErr == nil) {
				t.Errorf("ValidateBlockSize() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestValidateSize tests the generic size validation function
func TestValidateSize(t *testing.T) {
	if err := ValidateSize(0, 10); err != ErrEmpty {
		t.Errorf("ValidateSize(0) = %v, want ErrEmpty", err)
	}
	if err := ValidateSize(10, 10); err != nil {
		t.Errorf("ValidateSize(10, 10) = %v, want nil", err)
	}
	if err := ValidateSize(11, 10); !errors.Is(err, ErrTooLarge) {
		t.Errorf("ValidateSize(11, 10) = %v, want ErrTooLarge", err)
	}
}

// TestConstantConsistency verifies internal consistency of the size constants
func TestConstantConsistency(t *testing.T) {
	if MaxTunnelPlaintext != MaxNoiseMessage-EncryptionOverhead {
		t.Errorf("MaxTunnelPlaintext (%d) != MaxNoiseMessage (%d) - EncryptionOverhead (%d)",
			MaxTunnelPlaintext, MaxNoiseMessage, EncryptionOverhead)
	}
	if MinCasIDLength >= MaxCasIDLength {
		t.Errorf("MinCasIDLength (%d) should be < MaxCasIDLength (%d)", MinCasIDLength, MaxCasIDLength)
	}
	if MaxRequestHeader <= MaxCasIDLength {
		t.Errorf("MaxRequestHeader (%d) must leave room for a full cas id", MaxRequestHeader)
	}
}
