package classify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kursadbilgin/publish-engine/internal/domain"
)

type pattern struct {
	category    Category
	message     string
	suggestion  string
	recoverable bool
	critical    bool

	// phrases match as whole words in the lowercased message.
	phrases []string
	// codes match only as an HTTP status, e.g. "status=503" or "http 503".
	codes []int
	re    *regexp.Regexp
}

// platformPatterns are checked before commonPatterns.
var platformPatterns = map[domain.PlatformType][]pattern{
	domain.PlatformTwitter: {
		{
			phrases:    []string{"duplicate status", "status is a duplicate"},
			category:   CategoryDuplicate,
			message:    "This post was already published on X",
			suggestion: "Edit the content before publishing again.",
		},
		{
			phrases:    []string{"tweet needs to be a bit shorter", "status is over 280"},
			category:   CategoryContentTooLong,
			message:    "The post is longer than X allows",
			suggestion: "Shorten the post to 280 characters.",
		},
		{
			phrases:    []string{"application suspended", "app suspended"},
			category:   CategorySuspended,
			message:    "The connected X app has been suspended",
			suggestion: "Contact support and reconnect a different app.",
			critical:   true,
		},
	},
	domain.PlatformLinkedIn: {
		{
			phrases:    []string{"duplicate_post", "content is a duplicate"},
			category:   CategoryDuplicate,
			message:    "LinkedIn rejected this post as a duplicate",
			suggestion: "Edit the content before publishing again.",
		},
		{
			phrases:    []string{"member_restricted", "revoked"},
			category:   CategoryAuth,
			message:    "LinkedIn access was revoked",
			suggestion: "Reconnect your LinkedIn account.",
		},
	},
	domain.PlatformMastodon: {
		{
			phrases:    []string{"text character limit", "validation failed: text"},
			category:   CategoryContentTooLong,
			message:    "The post is longer than this Mastodon instance allows",
			suggestion: "Shorten the post to fit the instance limit.",
		},
	},
	domain.PlatformBluesky: {
		{
			phrases:    []string{"record/text must not be longer", "grapheme"},
			category:   CategoryContentTooLong,
			message:    "The post is longer than Bluesky allows",
			suggestion: "Shorten the post to 300 characters.",
		},
	},
	domain.PlatformWordPress: {
		{
			phrases:    []string{"rest_cannot_create", "rest_forbidden"},
			category:   CategoryPermission,
			message:    "The WordPress user cannot create posts",
			suggestion: "Grant the connected user the author role or reconnect with another account.",
		},
		{
			phrases:    []string{"rest_no_route"},
			category:   CategoryNotFound,
			message:    "The WordPress REST API is not reachable at this address",
			suggestion: "Check the site URL and that the REST API is enabled.",
		},
	},
	domain.PlatformDevTo: {
		{
			phrases:    []string{"canonical url has already been taken"},
			category:   CategoryDuplicate,
			message:    "An article with this canonical URL already exists on DEV",
			suggestion: "Update the existing article or change the canonical URL.",
		},
		{
			phrases:    []string{"tag list exceeds"},
			category:   CategoryValidation,
			message:    "DEV accepts at most 4 tags",
			suggestion: "Remove tags until four or fewer remain.",
		},
	},
	domain.PlatformMedium: {
		{
			phrases:    []string{"publication not found", "not a writer"},
			category:   CategoryPermission,
			message:    "The account cannot publish to this Medium publication",
			suggestion: "Ask the publication editor for writer access.",
		},
	},
	domain.PlatformEmail: {
		{
			phrases:    []string{"invalid recipient", "mailbox unavailable"},
			category:   CategoryValidation,
			message:    "The email list contains an invalid recipient",
			suggestion: "Clean the recipient list and try again.",
		},
	},
}

var commonPatterns = []pattern{
	{
		phrases:    []string{"account suspended", "account has been suspended", "account locked"},
		category:   CategorySuspended,
		message:    "The connected account has been suspended",
		suggestion: "Resolve the suspension with the platform, then reconnect.",
		critical:   true,
	},
	{
		phrases:    []string{"unauthorized", "invalid token", "token expired", "expired token", "invalid_grant", "authentication failed", "invalid credentials"},
		codes:      []int{401},
		category:   CategoryAuth,
		message:    "Authentication with the platform failed",
		suggestion: "Reconnect the platform account.",
	},
	{
		phrases:    []string{"forbidden", "permission denied", "insufficient scope", "not authorized"},
		codes:      []int{403},
		category:   CategoryPermission,
		message:    "The account lacks permission to publish",
		suggestion: "Reconnect with the required permissions.",
	},
	{
		phrases:     []string{"rate limit", "too many requests", "rate_limit", "throttled"},
		codes:       []int{429},
		category:    CategoryRateLimit,
		message:     "The platform rate limit was reached",
		suggestion:  "Wait for the limit to reset. The publish will be retried automatically.",
		recoverable: true,
	},
	{
		phrases:     []string{"quota exceeded", "quota", "daily limit", "usage limit"},
		category:    CategoryQuota,
		message:     "The platform usage quota is exhausted",
		suggestion:  "Wait for the quota to reset or upgrade the platform plan.",
		recoverable: true,
	},
	{
		phrases:    []string{"too long", "exceeds maximum length", "character limit", "payload too large"},
		codes:      []int{413},
		category:   CategoryContentTooLong,
		message:    "The content is too long for this platform",
		suggestion: "Shorten the content and publish again.",
	},
	{
		phrases:    []string{"duplicate"},
		category:   CategoryDuplicate,
		message:    "The platform rejected this content as a duplicate",
		suggestion: "Edit the content before publishing again.",
	},
	{
		phrases:     []string{"timeout", "timed out", "deadline exceeded"},
		category:    CategoryTimeout,
		message:     "The platform did not respond in time",
		suggestion:  "No action needed. The publish will be retried.",
		recoverable: true,
	},
	{
		phrases:     []string{"connection refused", "connection reset", "no such host", "network error", "network is unreachable", "eof", "tls handshake", "econnreset", "enotfound"},
		category:    CategoryNetwork,
		message:     "Could not reach the platform",
		suggestion:  "No action needed. The publish will be retried.",
		recoverable: true,
	},
	{
		phrases:     []string{"internal server error", "bad gateway", "service unavailable", "gateway timeout", "server error"},
		codes:       []int{500, 502, 503, 504},
		category:    CategoryServer,
		message:     "The platform had an internal error",
		suggestion:  "No action needed. The publish will be retried.",
		recoverable: true,
	},
	{
		phrases:    []string{"not found", "does not exist"},
		codes:      []int{404},
		category:   CategoryNotFound,
		message:    "The platform resource was not found",
		suggestion: "Check the platform configuration and reconnect if needed.",
	},
}

func init() {
	for platformType, patterns := range platformPatterns {
		for i := range patterns {
			platformPatterns[platformType][i].re = compilePattern(patterns[i].phrases, patterns[i].codes)
		}
	}
	for i := range commonPatterns {
		commonPatterns[i].re = compilePattern(commonPatterns[i].phrases, commonPatterns[i].codes)
	}
}

func compilePattern(phrases []string, codes []int) *regexp.Regexp {
	alternatives := make([]string, 0, 2)
	if len(phrases) > 0 {
		quoted := make([]string, 0, len(phrases))
		for _, phrase := range phrases {
			quoted = append(quoted, regexp.QuoteMeta(phrase))
		}
		alternatives = append(alternatives, `\b(?:`+strings.Join(quoted, "|")+`)\b`)
	}
	if len(codes) > 0 {
		numbers := make([]string, 0, len(codes))
		for _, code := range codes {
			numbers = append(numbers, strconv.Itoa(code))
		}
		alternatives = append(alternatives, `\b(?:status(?: code)?|http(?:/[0-9.]+)?|code)[ =:]*(?:`+strings.Join(numbers, "|")+`)\b`)
	}
	if len(alternatives) == 0 {
		return regexp.MustCompile(`$^`)
	}
	return regexp.MustCompile(strings.Join(alternatives, "|"))
}

func (p pattern) matches(msg string) bool {
	return p.re != nil && p.re.MatchString(msg)
}
