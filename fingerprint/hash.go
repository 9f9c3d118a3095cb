package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ComputeHash derives the fingerprint hash for a set of signals.
// Normalization lowercases and trims each signal and substitutes "unknown"
// for absent optional fields, so hash stability does not depend on which
// optional signals a client happens to send.
func ComputeHash(sig Signals) string {
	parts := []string{
		normalizeSignal(sig.UserAgent),
		normalizeSignal(sig.IPAddress),
		normalizeSignal(sig.ScreenResolution),
		normalizeSignal(sig.Timezone),
		normalizeSignal(sig.Language),
		normalizeSignal(sig.Platform),
		browserEntropy(sig.UserAgent),
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func normalizeSignal(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "unknown"
	}
	return v
}

// browserEntropy extracts a coarse browser/OS/device-class triple from the
// user agent by substring matching. Order matters: Edge and Opera embed
// "chrome" in their user agents, so they are checked first.
func browserEntropy(userAgent string) string {
	return browserFamily(userAgent) + ":" + osFamily(userAgent) + ":" + deviceClass(userAgent)
}

func browserFamily(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "edg"):
		return "edge"
	case strings.Contains(ua, "opr") || strings.Contains(ua, "opera"):
		return "opera"
	case strings.Contains(ua, "chrome"):
		return "chrome"
	case strings.Contains(ua, "firefox"):
		return "firefox"
	case strings.Contains(ua, "safari"):
		return "safari"
	default:
		return "other"
	}
}

func osFamily(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "windows"):
		return "windows"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"), strings.Contains(ua, "ios"):
		return "ios"
	case strings.Contains(ua, "android"):
		return "android"
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macintosh"):
		return "macos"
	case strings.Contains(ua, "linux"):
		return "linux"
	default:
		return "other"
	}
}

func deviceClass(userAgent string) string {
	switch {
	case isTablet(userAgent):
		return "tablet"
	case isMobile(userAgent):
		return "mobile"
	default:
		return "desktop"
	}
}

func isMobile(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	return strings.Contains(ua, "mobile") ||
		strings.Contains(ua, "iphone") ||
		(strings.Contains(ua, "android") && !isTablet(userAgent))
}

func isTablet(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	return strings.Contains(ua, "ipad") ||
		strings.Contains(ua, "tablet") ||
		(strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"))
}
