package fingerprint

import "time"

// Signals carries the client and network attributes a fingerprint is
// derived from. All fields are optional except UserAgent and IPAddress;
// empty optional fields normalize to a stable placeholder so the hash
// does not change when a client simply omits them.
type Signals struct {
	UserAgent        string
	IPAddress        string
	ScreenResolution string
	Timezone         string
	Language         string
	Platform         string
}

// DeviceFingerprint is one sighted device for one user, unique on
// (UserID, Hash). Trusted flips only via Registry.Trust/Untrust.
type DeviceFingerprint struct {
	ID               string
	UserID           string
	Hash             string
	UserAgent        string
	IPAddress        string
	ScreenResolution string
	Timezone         string
	Language         string
	Platform         string
	IsMobile         bool
	IsTablet         bool
	Trusted          bool
	FirstSeen        time.Time
	LastSeen         time.Time
	AccessCount      int64
}
