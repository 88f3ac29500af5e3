package service

import (
	"context"
	"errors"
	"testing"

	"github.com/kursadbilgin/publish-engine/internal/domain"
	"github.com/kursadbilgin/publish-engine/internal/observability"
	"github.com/kursadbilgin/publish-engine/internal/queue"
	"go.uber.org/zap"
)

func newTestAutoPublisher(t *testing.T, f *fixture, project domain.Project, jobs queue.Publisher) *AutoPublisher {
	t.Helper()

	project.ID = testProjectID
	f.projects.projects[testProjectID] = project

	clock := testNow
	gate := newTestGate(t, f, &clock)
	auto, err := NewAutoPublisher(f.contents, f.projects, f.platforms, gate, gate.orchestrator, jobs, zap.NewNop())
	if err != nil {
		t.Fatalf("NewAutoPublisher() error = %v", err)
	}
	auto.newID = func() string { return "job-1" }
	return auto
}

func TestDecide(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		project domain.Project
		want    AutoPublishDecision
	}{
		{name: "disabled", project: domain.Project{}, want: DecisionSkip},
		{name: "disabled ignores approval flag", project: domain.Project{RequireApproval: true}, want: DecisionSkip},
		{name: "approval required", project: domain.Project{AutoPublish: true, RequireApproval: true}, want: DecisionApproval},
		{name: "direct publish", project: domain.Project{AutoPublish: true}, want: DecisionPublish},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Decide(tt.project); got != tt.want {
				t.Fatalf("Decide() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNewAutoPublisherValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	clock := testNow
	gate := newTestGate(t, f, &clock)
	orchestrator := gate.orchestrator

	if _, err := NewAutoPublisher(nil, f.projects, f.platforms, gate, orchestrator, nil, nil); err == nil {
		t.Fatal("expected error when content repository is nil")
	}
	if _, err := NewAutoPublisher(f.contents, nil, f.platforms, gate, orchestrator, nil, nil); err == nil {
		t.Fatal("expected error when project repository is nil")
	}
	if _, err := NewAutoPublisher(f.contents, f.projects, nil, gate, orchestrator, nil, nil); err == nil {
		t.Fatal("expected error when platform repository is nil")
	}
	if _, err := NewAutoPublisher(f.contents, f.projects, f.platforms, nil, orchestrator, nil, nil); err == nil {
		t.Fatal("expected error when approval gate is nil")
	}
	if _, err := NewAutoPublisher(f.contents, f.projects, f.platforms, gate, nil, nil, nil); err == nil {
		t.Fatal("expected error when orchestrator is nil")
	}
}

func TestHandleGeneratedSkipsWhenDisabled(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	auto := newTestAutoPublisher(t, f, domain.Project{}, nil)

	outcome, err := auto.HandleGenerated(context.Background(), testContentID)
	if err != nil {
		t.Fatalf("HandleGenerated() error = %v", err)
	}
	if outcome.Decision != DecisionSkip {
		t.Fatalf("Decision = %s, want skip", outcome.Decision)
	}
	if f.publications.count() != 0 || len(f.approvals.entries) != 0 {
		t.Fatal("skip must not create records")
	}
}

func TestHandleGeneratedHoldsForApproval(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	auto := newTestAutoPublisher(t, f, domain.Project{AutoPublish: true, RequireApproval: true}, nil)

	outcome, err := auto.HandleGenerated(context.Background(), testContentID)
	if err != nil {
		t.Fatalf("HandleGenerated() error = %v", err)
	}
	if outcome.Decision != DecisionApproval || outcome.Approval == nil {
		t.Fatalf("outcome = %+v", outcome)
	}
	want := []string{twitterID, mastodonID, webhookID}
	if len(outcome.Approval.PlatformIDs) != len(want) {
		t.Fatalf("PlatformIDs = %v, want %v", outcome.Approval.PlatformIDs, want)
	}
	for i := range want {
		if outcome.Approval.PlatformIDs[i] != want[i] {
			t.Fatalf("PlatformIDs = %v, want %v", outcome.Approval.PlatformIDs, want)
		}
	}
	if f.totalCalls() != 0 {
		t.Fatalf("publisher calls = %d, want 0", f.totalCalls())
	}
}

func TestHandleGeneratedEnqueuesJob(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var gotQueue string
	var gotMsg queue.PublishJobMessage
	jobs := &fakeJobPublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.PublishJobMessage) error {
			gotQueue = queueName
			gotMsg = msg
			return nil
		},
	}
	auto := newTestAutoPublisher(t, f, domain.Project{
		AutoPublish:            true,
		AutoPublishPlatformIDs: []string{webhookID, webhookID},
	}, jobs)

	ctx := observability.WithCorrelationID(context.Background(), "corr-42")
	outcome, err := auto.HandleGenerated(ctx, testContentID)
	if err != nil {
		t.Fatalf("HandleGenerated() error = %v", err)
	}
	if outcome.JobID != "job-1" || outcome.Result != nil {
		t.Fatalf("outcome = %+v", outcome)
	}
	if gotQueue != queue.PublishJobQueue {
		t.Fatalf("queue = %s, want %s", gotQueue, queue.PublishJobQueue)
	}
	if gotMsg.Source != queue.SourceAuto || gotMsg.CorrelationID != "corr-42" {
		t.Fatalf("message = %+v", gotMsg)
	}
	if len(gotMsg.PlatformIDs) != 1 || gotMsg.PlatformIDs[0] != webhookID {
		t.Fatalf("PlatformIDs = %v, want [%s]", gotMsg.PlatformIDs, webhookID)
	}
	if err := gotMsg.Validate(); err != nil {
		t.Fatalf("enqueued message invalid: %v", err)
	}
	if f.totalCalls() != 0 {
		t.Fatalf("publisher calls = %d, want 0", f.totalCalls())
	}
}

func TestHandleGeneratedEnqueueFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	jobs := &fakeJobPublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.PublishJobMessage) error {
			return errors.New("broker down")
		},
	}
	auto := newTestAutoPublisher(t, f, domain.Project{AutoPublish: true}, jobs)

	if _, err := auto.HandleGenerated(context.Background(), testContentID); err == nil {
		t.Fatal("expected enqueue error")
	}
}

func TestHandleGeneratedPublishesInline(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	auto := newTestAutoPublisher(t, f, domain.Project{AutoPublish: true}, nil)

	outcome, err := auto.HandleGenerated(context.Background(), testContentID)
	if err != nil {
		t.Fatalf("HandleGenerated() error = %v", err)
	}
	if outcome.Result == nil || outcome.Result.Summary.Successful != 3 {
		t.Fatalf("outcome = %+v", outcome)
	}
	if got := f.contents.status(testContentID); got != domain.ContentPublished {
		t.Fatalf("content status = %s, want published", got)
	}
}

func TestHandleGeneratedErrors(t *testing.T) {
	t.Parallel()

	t.Run("unknown content", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		auto := newTestAutoPublisher(t, f, domain.Project{AutoPublish: true}, nil)

		if _, err := auto.HandleGenerated(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("no connected platforms", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.platforms.targets = nil
		auto := newTestAutoPublisher(t, f, domain.Project{AutoPublish: true}, nil)

		if _, err := auto.HandleGenerated(context.Background(), testContentID); !errors.Is(err, domain.ErrNoPlatforms) {
			t.Fatalf("error = %v, want ErrNoPlatforms", err)
		}
	})
}
