package domain

import (
	"strings"
	"time"
)

// PlatformType identifies the kind of third-party platform a target publishes to.
type PlatformType string

const (
	PlatformTwitter   PlatformType = "twitter"
	PlatformMastodon  PlatformType = "mastodon"
	PlatformBluesky   PlatformType = "bluesky"
	PlatformThreads   PlatformType = "threads"
	PlatformLinkedIn  PlatformType = "linkedin"
	PlatformFacebook  PlatformType = "facebook"
	PlatformWordPress PlatformType = "wordpress"
	PlatformMedium    PlatformType = "medium"
	PlatformDevTo     PlatformType = "devto"
	PlatformHashnode  PlatformType = "hashnode"
	PlatformGhost     PlatformType = "ghost"
	PlatformEmail     PlatformType = "email"
	PlatformWebhook   PlatformType = "webhook"
)

var platformTypes = []PlatformType{
	PlatformTwitter,
	PlatformMastodon,
	PlatformBluesky,
	PlatformThreads,
	PlatformLinkedIn,
	PlatformFacebook,
	PlatformWordPress,
	PlatformMedium,
	PlatformDevTo,
	PlatformHashnode,
	PlatformGhost,
	PlatformEmail,
	PlatformWebhook,
}

func (t PlatformType) String() string { return string(t) }

func (t PlatformType) IsValid() bool {
	for _, known := range platformTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsLongForm reports whether the platform publishes titled articles or messages.
func (t PlatformType) IsLongForm() bool {
	switch t {
	case PlatformWordPress, PlatformMedium, PlatformDevTo, PlatformHashnode, PlatformGhost, PlatformEmail:
		return true
	}
	return false
}

func PlatformTypes() []PlatformType {
	out := make([]PlatformType, len(platformTypes))
	copy(out, platformTypes)
	return out
}

// PlatformConfig is adapter passthrough data. The orchestrator never interprets it.
type PlatformConfig map[string]string

func (c PlatformConfig) Get(key string) string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c[key])
}

// PlatformTarget is a connected account on a platform, owned by a project.
type PlatformTarget struct {
	ID                  string
	ProjectID           string
	Type                PlatformType
	Name                string
	IsConnected         bool
	CredentialExpiresAt *time.Time
	Config              PlatformConfig
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CredentialExpired reports whether the credential expiry is at or before now.
func (p *PlatformTarget) CredentialExpired(now time.Time) bool {
	if p == nil || p.CredentialExpiresAt == nil {
		return false
	}
	return !p.CredentialExpiresAt.After(now)
}
