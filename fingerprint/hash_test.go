package fingerprint

import (
	"strings"
	"testing"
)

func TestComputeHashStable(t *testing.T) {
	sig := Signals{
		UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0",
		IPAddress:        "203.0.113.10",
		ScreenResolution: "1920x1080",
		Timezone:         "Europe/Berlin",
		Language:         "de-DE",
		Platform:         "Win32",
	}

	first := ComputeHash(sig)
	second := ComputeHash(sig)
	if first != second {
		t.Fatalf("hash not stable: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(first))
	}
}

func TestComputeHashNormalizesCaseAndWhitespace(t *testing.T) {
	base := Signals{
		UserAgent: "Chrome/120.0 Windows",
		Timezone:  "Europe/Berlin",
		Language:  "de-DE",
	}
	noisy := Signals{
		UserAgent: "  chrome/120.0 windows ",
		Timezone:  " EUROPE/BERLIN",
		Language:  "DE-de ",
	}

	if ComputeHash(base) != ComputeHash(noisy) {
		t.Fatal("expected normalization to erase case and whitespace differences")
	}
}

func TestComputeHashTreatsMissingSignalsAsUnknown(t *testing.T) {
	explicit := Signals{UserAgent: "curl/8.0", Timezone: "unknown", Language: "unknown"}
	missing := Signals{UserAgent: "curl/8.0"}

	if ComputeHash(explicit) != ComputeHash(missing) {
		t.Fatal("absent optional signals must hash like the literal unknown marker")
	}
}

func TestComputeHashDiffersAcrossSignals(t *testing.T) {
	base := Signals{UserAgent: "Chrome/120.0 Windows", IPAddress: "203.0.113.10"}
	other := base
	other.IPAddress = "203.0.113.11"

	if ComputeHash(base) == ComputeHash(other) {
		t.Fatal("expected different signals to produce different hashes")
	}
}

func TestBrowserFamilyChecksEdgeAndOperaBeforeChrome(t *testing.T) {
	cases := []struct {
		ua   string
		want string
	}{
		{"Mozilla/5.0 Chrome/120.0 Safari/537.36 Edg/120.0", "edge"},
		{"Mozilla/5.0 Chrome/120.0 Safari/537.36 OPR/105.0", "opera"},
		{"Mozilla/5.0 Chrome/120.0 Safari/537.36", "chrome"},
		{"Mozilla/5.0 Gecko/20100101 Firefox/121.0", "firefox"},
		{"Mozilla/5.0 Version/17.0 Safari/605.1.15", "safari"},
		{"curl/8.0", "other"},
	}

	for _, tc := range cases {
		if got := browserFamily(tc.ua); got != tc.want {
			t.Fatalf("browserFamily(%q) = %q, want %q", tc.ua, got, tc.want)
		}
	}
}

func TestDeviceClass(t *testing.T) {
	cases := []struct {
		ua   string
		want string
	}{
		{"Mozilla/5.0 (iPad; CPU OS 17_0) Safari", "tablet"},
		{"Mozilla/5.0 (Linux; Android 14) Chrome Mobile", "mobile"},
		{"Mozilla/5.0 (Linux; Android 14) Chrome", "tablet"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Safari", "mobile"},
		{"Mozilla/5.0 (Windows NT 10.0) Chrome", "desktop"},
	}

	for _, tc := range cases {
		if got := deviceClass(tc.ua); got != tc.want {
			t.Fatalf("deviceClass(%q) = %q, want %q", tc.ua, got, tc.want)
		}
	}
}

func TestBrowserEntropyShape(t *testing.T) {
	entropy := browserEntropy("Mozilla/5.0 (Windows NT 10.0) Chrome/120.0")
	if entropy != "chrome:windows:desktop" {
		t.Fatalf("unexpected entropy %q", entropy)
	}
	if strings.Count(entropy, ":") != 2 {
		t.Fatalf("entropy must be a triple, got %q", entropy)
	}
}
