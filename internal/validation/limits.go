package validation

import "github.com/kursadbilgin/publish-engine/internal/domain"

// Limits describes the structural constraints of one platform type.
type Limits struct {
	MaxBodyChars     int
	MaxTitleChars    int
	MaxTags          int
	RequireTitle     bool
	WantExcerpt      bool
	WantCanonicalURL bool
}

var limitsByPlatform = map[domain.PlatformType]Limits{
	domain.PlatformTwitter:   {MaxBodyChars: 280},
	domain.PlatformBluesky:   {MaxBodyChars: 300},
	domain.PlatformMastodon:  {MaxBodyChars: 500},
	domain.PlatformThreads:   {MaxBodyChars: 500},
	domain.PlatformLinkedIn:  {MaxBodyChars: 3000},
	domain.PlatformFacebook:  {MaxBodyChars: 63206},
	domain.PlatformWordPress: {WantExcerpt: true},
	domain.PlatformMedium:    {MaxTitleChars: 100, MaxTags: 5, WantCanonicalURL: true},
	domain.PlatformDevTo:     {MaxTitleChars: 128, MaxTags: 4, WantExcerpt: true, WantCanonicalURL: true},
	domain.PlatformHashnode:  {MaxTitleChars: 250, MaxTags: 5, WantCanonicalURL: true},
	domain.PlatformGhost:     {MaxTitleChars: 255, WantExcerpt: true},
	domain.PlatformEmail:     {MaxTitleChars: 998},
	domain.PlatformWebhook:   {},
}

// LimitsFor returns the constraints for a platform type. Unknown types get no
// limits. Long-form platforms always require a title.
func LimitsFor(platformType domain.PlatformType) Limits {
	limits := limitsByPlatform[platformType]
	limits.RequireTitle = platformType.IsLongForm()
	return limits
}
