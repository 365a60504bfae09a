package base

import (
	"errors"
	"fmt"
	"testing"

	"stkpay/internal/domain/payment"
)

func TestIsValidLocalNumber(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"0712345678", true},
		{"0112345678", true},
		{"0712 345 678", true},
		{"071-234-5678", true},
		{"254712345678", true},
		{"254112345678", true},
		{"+254 712 345 678", true},
		{"0812345678", false},
		{"071234567", false},
		{"07123456789", false},
		{"255712345678", false},
		{"254812345678", false},
		{"", false},
		{"phone", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := IsValidLocalNumber(tt.input); got != tt.want {
				t.Errorf("IsValidLocalNumber(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsValidLocalNumberAllPrefixes(t *testing.T) {
	for _, prefix := range []string{"07", "01"} {
		for i := 0; i < 1000; i++ {
			n := fmt.Sprintf("%s%08d", prefix, i*99991%100000000)
			if !IsValidLocalNumber(n) {
				t.Fatalf("expected %s to be valid", n)
			}
		}
	}
}

func TestToCanonicalForm(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"0712345678", "254712345678"},
		{"0112345678", "254112345678"},
		{"254712345678", "254712345678"},
		{"0712 345 678", "254712345678"},
		{"+254712345678", "254712345678"},
		{"12345", "12345"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ToCanonicalForm(tt.input)
			if got != tt.want {
				t.Errorf("ToCanonicalForm(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if again := ToCanonicalForm(got); again != got {
				t.Errorf("not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestNormalizeMSISDN(t *testing.T) {
	tests := map[string]string{
		"0712345678":    "254712345678",
		"+254712345678": "254712345678",
		"254712345678":  "254712345678",
		" 0712345678 ":  "254712345678",
	}
	for in, want := range tests {
		if got := NormalizeMSISDN(in); got != want {
			t.Errorf("NormalizeMSISDN(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDisplayPhone(t *testing.T) {
	if got := DisplayPhone("254712345678"); got != "0712 345 678" {
		t.Errorf("got %q", got)
	}
	if got := DisplayPhone("0112345678"); got != "0112 345 678" {
		t.Errorf("got %q", got)
	}
}

func TestRequestValidator(t *testing.T) {
	v := NewRequestValidator("KES", 1, 150000)

	t.Run("Valid", func(t *testing.T) {
		req, err := v.Validate("0712345678", 100, "  Order 42 ")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if req.PhoneNumber != "254712345678" {
			t.Errorf("expected canonical phone, got %q", req.PhoneNumber)
		}
		if req.Amount != 100 || req.Description != "Order 42" {
			t.Errorf("unexpected request: %+v", req)
		}
	})

	tests := []struct {
		name   string
		phone  string
		amount int
		field  string
	}{
		{"bad phone", "0812345678", 100, payment.FieldPhone},
		{"zero amount", "0712345678", 0, payment.FieldAmount},
		{"negative amount", "0712345678", -5, payment.FieldAmount},
		{"over limit", "0712345678", 150001, payment.FieldAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.phone, tt.amount, "")
			var ve *payment.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, ve.Field)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"100", 100, false},
		{"1,000", 1000, false},
		{"KES 500", 500, false},
		{" 50 ", 50, false},
		{"ten", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAmount(%q) error = %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAmount(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
