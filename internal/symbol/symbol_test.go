package symbol

import "testing"

func TestValidateAcceptsWellFormed(t *testing.T) {
	for _, s := range []string{"BTCUSDT", "ETHUSDT", "XRPUSD", "1000SHIBUSDT"} {
		if err := Validate(s); err != nil {
			t.Fatalf("Validate(%q) = %v, want nil", s, err)
		}
	}
}

func TestValidateRejectsShort(t *testing.T) {
	for _, s := range []string{"", "BTC", "BTCUS"} {
		if err := Validate(s); err == nil {
			t.Fatalf("Validate(%q) = nil, want error", s)
		}
	}
}

func TestValidateRejectsBadCharacters(t *testing.T) {
	if err := Validate("btcusdt"); err == nil {
		t.Fatal("lowercase symbol should be rejected")
	}
	if err := Validate("BTC-USD"); err == nil {
		t.Fatal("dashed symbol should be rejected")
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize(" btcusdt "); got != "BTCUSDT" {
		t.Fatalf("Normalize = %q, want BTCUSDT", got)
	}
}

func TestBucketKnownSymbol(t *testing.T) {
	if got := Bucket("BTCUSDT", 50000.4); got != 50000 {
		t.Fatalf("Bucket = %v, want 50000", got)
	}
	if got := Bucket("BTCUSDT", 50000.6); got != 50001 {
		t.Fatalf("Bucket = %v, want 50001", got)
	}
}

func TestStepMagnitudeFallback(t *testing.T) {
	cases := []struct {
		price float64
		want  float64
	}{
		{25000, 1.0},
		{2500, 0.1},
		{250, 0.01},
		{2.5, 0.001},
		{0.5, 0.00001},
	}
	for _, c := range cases {
		if got := Step("SOLUSDT", c.price); got != c.want {
			t.Fatalf("Step(%v) = %v, want %v", c.price, got, c.want)
		}
	}
}
