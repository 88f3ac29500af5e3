package queue

import "testing"

func TestQueueNames(t *testing.T) {
	work := WorkQueueNames()
	if len(work) != 1 || work[0] != "publish.jobs" {
		t.Fatalf("WorkQueueNames = %v, want [publish.jobs]", work)
	}

	if got := DLQName(PublishJobQueue); got != "dlq.publish.jobs" {
		t.Fatalf("DLQName = %s, want dlq.publish.jobs", got)
	}
}

func TestPriorityValue(t *testing.T) {
	tests := []struct {
		name   string
		source JobSource
		want   uint8
	}{
		{name: "manual", source: SourceManual, want: 3},
		{name: "approval", source: SourceApproval, want: 2},
		{name: "auto", source: SourceAuto, want: 1},
		{name: "unknown", source: JobSource("cron"), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PriorityValue(tt.source); got != tt.want {
				t.Fatalf("PriorityValue(%s) = %d, want %d", tt.source, got, tt.want)
			}
		})
	}
}

func TestPublishJobMessageValidate(t *testing.T) {
	msg := PublishJobMessage{
		JobID:     "job-1",
		ContentID: "c-1",
		Source:    SourceAuto,
	}
	if err := msg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}

	msg.PlatformIDs = []string{"p-1", " "}
	if err := msg.Validate(); err == nil {
		t.Fatal("Validate() should reject empty platform ids")
	}

	msg.PlatformIDs = nil
	msg.ContentID = ""
	if err := msg.Validate(); err == nil {
		t.Fatal("Validate() should require contentId")
	}

	msg.ContentID = "c-1"
	msg.Source = "cron"
	if err := msg.Validate(); err == nil {
		t.Fatal("Validate() should reject unknown source")
	}
}

func TestTopology(t *testing.T) {
	spec := topology()

	if len(spec.exchanges) != 2 {
		t.Fatalf("exchanges = %v, want dlx and events", spec.exchanges)
	}
	if spec.exchanges[0].name != "publish.dlx" || spec.exchanges[0].kind != "direct" {
		t.Fatalf("dlx exchange = %+v", spec.exchanges[0])
	}
	if spec.exchanges[1].name != EventsExchange || spec.exchanges[1].kind != "topic" {
		t.Fatalf("events exchange = %+v", spec.exchanges[1])
	}

	if len(spec.queues) != 2 {
		t.Fatalf("queues = %d, want 2", len(spec.queues))
	}

	dlq := spec.queues[0]
	if dlq.name != "dlq.publish.jobs" || dlq.bindExchange != "publish.dlx" || dlq.bindKey != "publish.jobs" {
		t.Fatalf("dlq = %+v", dlq)
	}

	work := spec.queues[1]
	if work.name != PublishJobQueue || work.bindExchange != "" {
		t.Fatalf("work queue = %+v", work)
	}
	if work.args["x-dead-letter-exchange"] != "publish.dlx" {
		t.Fatalf("x-dead-letter-exchange = %v", work.args["x-dead-letter-exchange"])
	}
	if work.args["x-dead-letter-routing-key"] != PublishJobQueue {
		t.Fatalf("x-dead-letter-routing-key = %v", work.args["x-dead-letter-routing-key"])
	}
	if work.args["x-max-priority"] != queueMaxPriority {
		t.Fatalf("x-max-priority = %v", work.args["x-max-priority"])
	}
}
