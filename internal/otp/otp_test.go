package otp

import "testing"

func TestIssueLengthAndDigits(t *testing.T) {
	for _, length := range []int{4, 5, 6} {
		code, err := Issue(length)
		if err != nil {
			t.Fatalf("Issue(%d): %v", length, err)
		}
		if len(code) != length {
			t.Fatalf("Issue(%d) = %q, wrong length", length, code)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("Issue(%d) = %q, non-digit %q", length, code, c)
			}
		}
	}
}

func TestIssueClampsLength(t *testing.T) {
	if code, _ := Issue(1); len(code) != MinLength {
		t.Fatalf("short request should clamp to %d, got %q", MinLength, code)
	}
	if code, _ := Issue(12); len(code) != MaxLength {
		t.Fatalf("long request should clamp to %d, got %q", MaxLength, code)
	}
}

func TestVerify(t *testing.T) {
	if !Verify("4821", "4821") {
		t.Fatal("exact match should verify")
	}
	if !Verify("4821", "  4821\n") {
		t.Fatal("surrounding whitespace should be trimmed")
	}
	if Verify("4821", "0000") {
		t.Fatal("wrong code should not verify")
	}
	if Verify("4821", "482") {
		t.Fatal("partial code should not verify")
	}
	if Verify("", "") {
		t.Fatal("empty bound code should never verify")
	}
}
