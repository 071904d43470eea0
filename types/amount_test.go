package types

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    Amount
		wantErr error
	}{
		{"40.00", 4000, nil},
		{"40", 4000, nil},
		{"12.5", 1250, nil},
		{"0.01", 1, nil},
		{" 7.25 ", 725, nil},
		{"-3.10", -310, nil},
		{"0", 0, nil},
		{"1.001", 0, ErrAmountFormat},
		{"abc", 0, ErrAmountFormat},
		{"", 0, ErrAmountFormat},
		{"92233720368547758.08", 0, ErrAmountOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAmountString(t *testing.T) {
	tests := []struct {
		amount Amount
		want   string
	}{
		{4000, "40.00"},
		{5, "0.05"},
		{0, "0.00"},
		{-150, "-1.50"},
		{123456789, "1234567.89"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.amount.String(); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAmountAdd(t *testing.T) {
	got, err := Amount(100).Add(-40)
	if err != nil || got != 60 {
		t.Fatalf("got %d, %v; want 60", got, err)
	}

	if _, err := Amount(math.MaxInt64).Add(1); !errors.Is(err, ErrAmountOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
	if _, err := Amount(math.MinInt64).Add(-1); !errors.Is(err, ErrAmountOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
}

func TestSum(t *testing.T) {
	total, err := Sum(100, 250, -50)
	if err != nil || total != 300 {
		t.Fatalf("got %d, %v; want 300", total, err)
	}
	if _, err := Sum(math.MaxInt64, 1); !errors.Is(err, ErrAmountOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
}

func TestAmountJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Balance Amount `json:"balance"`
	}{Balance: 6000})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"balance":"60.00"}` {
		t.Errorf("unexpected JSON: %s", data)
	}

	var decoded struct {
		Balance Amount `json:"balance"`
	}
	if err := json.Unmarshal([]byte(`{"balance":"12.34"}`), &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Balance != 1234 {
		t.Errorf("got %d, want 1234", decoded.Balance)
	}

	if err := json.Unmarshal([]byte(`{"balance":12.34}`), &decoded); !errors.Is(err, ErrAmountFormat) {
		t.Errorf("expected format error for numeric JSON, got %v", err)
	}
}

func TestMustParseAmountPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for invalid amount")
		}
	}()

	_ = MustParseAmount("1.234")
}
