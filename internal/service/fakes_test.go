package service

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/publish-engine/internal/domain"
	"github.com/kursadbilgin/publish-engine/internal/notify"
	"github.com/kursadbilgin/publish-engine/internal/platform"
	"github.com/kursadbilgin/publish-engine/internal/queue"
	"github.com/kursadbilgin/publish-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	testProjectID = "project-1"
	testContentID = "content-1"
	twitterID     = "platform-twitter"
	mastodonID    = "platform-mastodon"
	webhookID     = "platform-webhook"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// memPublicationRepo keeps publications in memory and applies transitions
// with the same conditional semantics as the database.
type memPublicationRepo struct {
	mu            sync.Mutex
	rows          map[string]*domain.Publication
	order         []string
	seq           int
	writes        int
	transitionErr error
}

func newMemPublicationRepo() *memPublicationRepo {
	return &memPublicationRepo{rows: make(map[string]*domain.Publication)}
}

func (r *memPublicationRepo) seed(p domain.Publication) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = testNow
	}
	r.rows[p.ID] = &p
	r.order = append(r.order, p.ID)
}

func (r *memPublicationRepo) snapshot(id string) domain.Publication {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.rows[id]; ok {
		return *p
	}
	return domain.Publication{}
}

func (r *memPublicationRepo) pair(contentID, platformID string) (domain.Publication, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p := r.findPair(contentID, platformID); p != nil {
		return *p, true
	}
	return domain.Publication{}, false
}

func (r *memPublicationRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *memPublicationRepo) mutations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func (r *memPublicationRepo) findPair(contentID, platformID string) *domain.Publication {
	for _, id := range r.order {
		p := r.rows[id]
		if p.ContentID == contentID && p.PlatformID == platformID {
			return p
		}
	}
	return nil
}

func (r *memPublicationRepo) Ensure(ctx context.Context, contentID, platformID string) (*domain.Publication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p := r.findPair(contentID, platformID); p != nil {
		out := *p
		return &out, nil
	}

	r.seq++
	p := &domain.Publication{
		ID:         fmt.Sprintf("pub-%d", r.seq),
		ContentID:  contentID,
		PlatformID: platformID,
		Status:     domain.StatusPending,
		CreatedAt:  testNow,
		UpdatedAt:  testNow,
	}
	r.rows[p.ID] = p
	r.order = append(r.order, p.ID)
	r.writes++

	out := *p
	return &out, nil
}

func (r *memPublicationRepo) GetByID(ctx context.Context, id string) (*domain.Publication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (r *memPublicationRepo) GetByPair(ctx context.Context, contentID, platformID string) (*domain.Publication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.findPair(contentID, platformID)
	if p == nil {
		return nil, domain.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (r *memPublicationRepo) ListByContent(ctx context.Context, contentID string) ([]domain.Publication, error) {
	return r.filter(func(p *domain.Publication) bool { return p.ContentID == contentID }, 0), nil
}

func (r *memPublicationRepo) Transition(
	ctx context.Context,
	id string,
	from []domain.PublicationStatus,
	to domain.PublicationStatus,
	update repository.TransitionUpdate,
) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.transitionErr != nil {
		return false, r.transitionErr
	}
	if err := domain.CheckTransition(from, to); err != nil {
		return false, err
	}
	p, ok := r.rows[id]
	if !ok || !slices.Contains(from, p.Status) {
		return false, nil
	}
	if update.RequireScheduledRetry && p.ScheduledRetryAt == nil {
		return false, nil
	}

	p.Status = to
	p.UpdatedAt = testNow
	if update.LastAttemptAt != nil {
		at := *update.LastAttemptAt
		p.LastAttemptAt = &at
	}
	if update.PublishedAt != nil && p.PublishedAt == nil {
		at := *update.PublishedAt
		p.PublishedAt = &at
	}
	if update.ExternalPostID != nil {
		v := *update.ExternalPostID
		p.ExternalPostID = &v
	}
	if update.ExternalURL != nil {
		v := *update.ExternalURL
		p.ExternalURL = &v
	}
	switch {
	case update.ErrorMessage != nil:
		v := *update.ErrorMessage
		p.ErrorMessage = &v
	case update.ClearError:
		p.ErrorMessage = nil
	}
	switch {
	case update.ScheduledRetryAt != nil:
		at := *update.ScheduledRetryAt
		p.ScheduledRetryAt = &at
	case update.ClearScheduledRetry:
		p.ScheduledRetryAt = nil
	}
	switch {
	case update.ResetRetry:
		p.RetryCount = 0
	case update.IncrementRetry:
		p.RetryCount++
	}
	if len(update.Metadata) > 0 {
		if p.Metadata == nil {
			p.Metadata = make(map[string]any)
		}
		maps.Copy(p.Metadata, update.Metadata)
	}

	r.writes++
	return true, nil
}

func (r *memPublicationRepo) ListDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.Publication, error) {
	return r.filter(func(p *domain.Publication) bool {
		return p.Status == domain.StatusRetrying && p.ScheduledRetryAt != nil && !p.ScheduledRetryAt.After(now)
	}, limit), nil
}

func (r *memPublicationRepo) ListStalePublishing(ctx context.Context, before time.Time, limit int) ([]domain.Publication, error) {
	return r.filter(func(p *domain.Publication) bool {
		return p.Status == domain.StatusPublishing && p.LastAttemptAt != nil && p.LastAttemptAt.Before(before)
	}, limit), nil
}

func (r *memPublicationRepo) filter(keep func(p *domain.Publication) bool, limit int) []domain.Publication {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Publication, 0)
	for _, id := range r.order {
		if p := r.rows[id]; keep(p) {
			out = append(out, *p)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

type memContentRepo struct {
	mu       sync.Mutex
	contents map[string]domain.Content
	updates  int
}

func newMemContentRepo(contents ...domain.Content) *memContentRepo {
	r := &memContentRepo{contents: make(map[string]domain.Content)}
	for _, c := range contents {
		r.contents[c.ID] = c
	}
	return r
}

func (r *memContentRepo) GetByID(ctx context.Context, id string) (*domain.Content, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (r *memContentRepo) UpdateStatus(ctx context.Context, id string, status domain.ContentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contents[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.Status = status
	r.contents[id] = c
	r.updates++
	return nil
}

func (r *memContentRepo) status(id string) domain.ContentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contents[id].Status
}

func (r *memContentRepo) updateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}

type memPlatformRepo struct {
	targets []domain.PlatformTarget
	listErr error
}

func (r *memPlatformRepo) GetByID(ctx context.Context, id string) (*domain.PlatformTarget, error) {
	for i := range r.targets {
		if r.targets[i].ID == id {
			t := r.targets[i]
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memPlatformRepo) ListConnectedByProject(ctx context.Context, projectID string) ([]domain.PlatformTarget, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]domain.PlatformTarget, 0)
	for _, t := range r.targets {
		if t.ProjectID == projectID && t.IsConnected {
			out = append(out, t)
		}
	}
	return out, nil
}

type memProjectRepo struct {
	projects map[string]domain.Project
}

func (r *memProjectRepo) GetByID(ctx context.Context, id string) (*domain.Project, error) {
	p, ok := r.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

type memAttemptRepo struct {
	mu       sync.Mutex
	attempts map[string][]domain.PublicationAttempt
}

func newMemAttemptRepo() *memAttemptRepo {
	return &memAttemptRepo{attempts: make(map[string][]domain.PublicationAttempt)}
}

func (r *memAttemptRepo) Record(ctx context.Context, a *domain.PublicationAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.AttemptNumber = len(r.attempts[a.PublicationID]) + 1
	r.attempts[a.PublicationID] = append(r.attempts[a.PublicationID], *a)
	return nil
}

func (r *memAttemptRepo) ListByPublication(ctx context.Context, publicationID string) ([]domain.PublicationAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.attempts[publicationID]), nil
}

type memApprovalRepo struct {
	mu      sync.Mutex
	entries []domain.ApprovalEntry
}

func (r *memApprovalRepo) Create(ctx context.Context, e *domain.ApprovalEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.entries {
		if existing.ContentID == e.ContentID && existing.Status == domain.ApprovalPending {
			return domain.ErrApprovalPending
		}
	}
	r.entries = append(r.entries, *e)
	return nil
}

func (r *memApprovalRepo) GetPending(ctx context.Context, contentID string) (*domain.ApprovalEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].ContentID == contentID && r.entries[i].Status == domain.ApprovalPending {
			e := r.entries[i]
			return &e, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memApprovalRepo) GetLatest(ctx context.Context, contentID string) (*domain.ApprovalEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].ContentID == contentID {
			e := r.entries[i]
			return &e, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memApprovalRepo) Decide(
	ctx context.Context,
	id string,
	status domain.ApprovalStatus,
	reason *string,
	decidedAt time.Time,
) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		e := &r.entries[i]
		if e.ID != id || e.Status != domain.ApprovalPending {
			continue
		}
		e.Status = status
		e.RejectionReason = reason
		at := decidedAt
		e.DecidedAt = &at
		return true, nil
	}
	return false, nil
}

func (r *memApprovalRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.ApprovalEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ApprovalEntry, 0)
	for _, e := range r.entries {
		if e.Status == domain.ApprovalPending && !e.ExpiresAt.After(now) {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memApprovalRepo) entry(id string) domain.ApprovalEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ID == id {
			return e
		}
	}
	return domain.ApprovalEntry{}
}

type stubPublisher struct {
	mu        sync.Mutex
	calls     int
	publishFn func(ctx context.Context, content platform.FormattedContent) (*platform.Result, error)
}

func (p *stubPublisher) Publish(ctx context.Context, content platform.FormattedContent) (*platform.Result, error) {
	p.mu.Lock()
	p.calls++
	publishFn := p.publishFn
	p.mu.Unlock()

	if publishFn != nil {
		return publishFn(ctx, content)
	}
	return &platform.Result{
		ExternalID: "ext-" + content.Target.ID,
		URL:        "https://example.com/posts/" + content.Target.ID,
	}, nil
}

func (p *stubPublisher) setPublishFn(fn func(ctx context.Context, content platform.FormattedContent) (*platform.Result, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publishFn = fn
}

func (p *stubPublisher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func failWith(err error) func(ctx context.Context, content platform.FormattedContent) (*platform.Result, error) {
	return func(ctx context.Context, content platform.FormattedContent) (*platform.Result, error) {
		return nil, err
	}
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, key string) (bool, error)
	waitFn  func(ctx context.Context, key string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, key)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, key string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, key)
	}
	return nil
}

type recordingNotifier struct {
	events chan notify.Event
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(chan notify.Event, 64)}
}

func (n *recordingNotifier) Notify(ctx context.Context, event notify.Event) error {
	n.events <- event
	return nil
}

// waitFor blocks until an event of the given type arrives.
func (n *recordingNotifier) waitFor(t *testing.T, eventType notify.EventType) notify.Event {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case event := <-n.events:
			if event.Type == eventType {
				return event
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", eventType)
			return notify.Event{}
		}
	}
}

type fakeJobPublisher struct {
	publishFn func(ctx context.Context, queueName string, msg queue.PublishJobMessage) error
}

func (f *fakeJobPublisher) Publish(ctx context.Context, queueName string, msg queue.PublishJobMessage) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, queueName, msg)
	}
	return nil
}

func (f *fakeJobPublisher) Close() error {
	return nil
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error {
	return nil
}

// fixture wires an orchestrator over in-memory state: one project, one
// content item and three connected platforms.
type fixture struct {
	contents     *memContentRepo
	platforms    *memPlatformRepo
	projects     *memProjectRepo
	publications *memPublicationRepo
	attempts     *memAttemptRepo
	approvals    *memApprovalRepo
	registry     *platform.Registry
	publishers   map[domain.PlatformType]*stubPublisher
	notifier     *recordingNotifier
	delays       *queue.MemoryDelayQueue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		contents: newMemContentRepo(domain.Content{
			ID:        testContentID,
			ProjectID: testProjectID,
			Title:     "Release notes",
			Body:      "We shipped retries and approvals.",
			Status:    domain.ContentDraft,
		}),
		platforms: &memPlatformRepo{targets: []domain.PlatformTarget{
			{ID: twitterID, ProjectID: testProjectID, Type: domain.PlatformTwitter, Name: "Main", IsConnected: true},
			{ID: mastodonID, ProjectID: testProjectID, Type: domain.PlatformMastodon, Name: "Fediverse", IsConnected: true},
			{ID: webhookID, ProjectID: testProjectID, Type: domain.PlatformWebhook, Name: "Hook", IsConnected: true},
		}},
		projects: &memProjectRepo{projects: map[string]domain.Project{
			testProjectID: {ID: testProjectID, Name: "Blog"},
		}},
		publications: newMemPublicationRepo(),
		attempts:     newMemAttemptRepo(),
		approvals:    &memApprovalRepo{},
		registry:     platform.NewRegistry(),
		publishers:   make(map[domain.PlatformType]*stubPublisher),
		notifier:     newRecordingNotifier(),
		delays:       queue.NewMemoryDelayQueue(),
	}

	for _, pt := range []domain.PlatformType{domain.PlatformTwitter, domain.PlatformMastodon, domain.PlatformWebhook} {
		publisher := &stubPublisher{}
		if err := f.registry.Register(pt, publisher); err != nil {
			t.Fatalf("Register(%s) error = %v", pt, err)
		}
		f.publishers[pt] = publisher
	}

	return f
}

func (f *fixture) orchestrator(t *testing.T, autoRetry bool) *Orchestrator {
	t.Helper()

	orchestrator, err := NewOrchestrator(OrchestratorDeps{
		Contents:     f.contents,
		Platforms:    f.platforms,
		Publications: f.publications,
		Attempts:     f.attempts,
		Registry:     f.registry,
		RateLimiter:  &fakeRateLimiter{},
		Notifier:     f.notifier,
	}, 2, autoRetry, zap.NewNop())
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}
	orchestrator.now = func() time.Time { return testNow }
	return orchestrator
}

func (f *fixture) retryService(t *testing.T, orchestrator *Orchestrator) *RetryService {
	t.Helper()

	retries, err := NewRetryService(f.publications, f.platforms, orchestrator, f.delays, 10, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRetryService() error = %v", err)
	}
	retries.now = func() time.Time { return testNow }
	orchestrator.SetRetryScheduler(retries)
	return retries
}

func (f *fixture) publisher(pt domain.PlatformType) *stubPublisher {
	return f.publishers[pt]
}

func (f *fixture) totalCalls() int {
	total := 0
	for _, p := range f.publishers {
		total += p.callCount()
	}
	return total
}

func ptr[T any](v T) *T {
	return &v
}
