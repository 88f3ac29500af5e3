package postgresql

import (
	"testing"
	"time"
)

func TestPoolWithDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   Pool
		want Pool
	}{
		{
			name: "zero values",
			in:   Pool{},
			want: Pool{MaxOpenConns: 25, MaxIdleConns: 5, ConnMaxLifetime: time.Hour},
		},
		{
			name: "idle capped by open",
			in:   Pool{MaxOpenConns: 3, MaxIdleConns: 10},
			want: Pool{MaxOpenConns: 3, MaxIdleConns: 3, ConnMaxLifetime: time.Hour},
		},
		{
			name: "explicit values kept",
			in:   Pool{MaxOpenConns: 40, MaxIdleConns: 8, ConnMaxLifetime: 10 * time.Minute},
			want: Pool{MaxOpenConns: 40, MaxIdleConns: 8, ConnMaxLifetime: 10 * time.Minute},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.in.withDefaults(); got != tt.want {
				t.Fatalf("withDefaults() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
