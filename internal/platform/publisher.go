package platform

import (
	"context"
	"strings"

	"github.com/kursadbilgin/publish-engine/internal/domain"
)

// Publisher is the outbound port each platform adapter implements.
// Adapters enforce their own timeouts.
type Publisher interface {
	Publish(ctx context.Context, content FormattedContent) (*Result, error)
}

// FormattedContent is content already shaped for one target platform.
type FormattedContent struct {
	ContentID    string
	Title        string
	Body         string
	Excerpt      string
	Tags         []string
	CanonicalURL string
	Target       domain.PlatformTarget
}

// Result is what a platform returns for a successful post.
type Result struct {
	ExternalID string
	URL        string
	Metadata   map[string]any
}

// Formatter turns content into the platform's preferred shape.
type Formatter interface {
	Format(content domain.Content, target domain.PlatformTarget) (FormattedContent, error)
}

// PassthroughFormatter hands content to the publisher unchanged.
type PassthroughFormatter struct{}

func (PassthroughFormatter) Format(content domain.Content, target domain.PlatformTarget) (FormattedContent, error) {
	formatted := FormattedContent{
		ContentID: content.ID,
		Title:     strings.TrimSpace(content.Title),
		Body:      content.Body,
		Tags:      append([]string(nil), content.Tags...),
		Target:    target,
	}
	if content.Excerpt != nil {
		formatted.Excerpt = strings.TrimSpace(*content.Excerpt)
	}
	if content.CanonicalURL != nil {
		formatted.CanonicalURL = strings.TrimSpace(*content.CanonicalURL)
	}
	return formatted, nil
}
