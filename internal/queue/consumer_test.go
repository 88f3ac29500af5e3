package queue

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeJob(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "valid",
			body: `{"jobId":"job-1","contentId":"c-1","source":"manual","platformIds":["p-1"]}`,
		},
		{name: "not json", body: `{`, wantErr: "invalid JSON"},
		{name: "missing content", body: `{"jobId":"job-1","source":"auto"}`, wantErr: "contentId"},
		{name: "unknown source", body: `{"jobId":"job-1","contentId":"c-1","source":"cron"}`, wantErr: "source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg, err := decodeJob([]byte(tt.body))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("decodeJob() unexpected error = %v", err)
				}
				if msg.ContentID != "c-1" || len(msg.PlatformIDs) != 1 {
					t.Fatalf("decodeJob() = %+v", msg)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("decodeJob() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSettle(t *testing.T) {
	t.Parallel()

	failure := errors.New("platform down")
	tests := []struct {
		name        string
		err         error
		redelivered bool
		want        settlement
	}{
		{name: "success", want: settleAck},
		{name: "success on redelivery", redelivered: true, want: settleAck},
		{name: "first failure", err: failure, want: settleRequeue},
		{name: "failure after redelivery", err: failure, redelivered: true, want: settleDeadLetter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := settle(tt.err, tt.redelivered); got != tt.want {
				t.Fatalf("settle() = %s, want %s", got, tt.want)
			}
		})
	}
}
