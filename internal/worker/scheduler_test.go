package worker

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/gameledger/internal/domain"
)

func TestScheduler_NextRun(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	testCases := []struct {
		name string
		loc  *time.Location
		now  time.Time
		want time.Time
	}{
		{
			name: "before today's slot",
			loc:  time.UTC,
			now:  time.Date(2024, 3, 2, 0, 10, 0, 0, time.UTC),
			want: time.Date(2024, 3, 2, 0, 30, 0, 0, time.UTC),
		},
		{
			name: "exactly at slot moves to tomorrow",
			loc:  time.UTC,
			now:  time.Date(2024, 3, 2, 0, 30, 0, 0, time.UTC),
			want: time.Date(2024, 3, 3, 0, 30, 0, 0, time.UTC),
		},
		{
			name: "end of month",
			loc:  time.UTC,
			now:  time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 1, 0, 30, 0, 0, time.UTC),
		},
		{
			name: "configured zone",
			loc:  berlin,
			now:  time.Date(2024, 3, 1, 23, 45, 0, 0, time.UTC),
			want: time.Date(2024, 3, 3, 0, 30, 0, 0, berlin),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewScheduler(SchedulerConfig{Logger: zerolog.Nop(), Location: tc.loc, Hour: 0, Minute: 30})
			assert.True(t, tc.want.Equal(s.NextRun(tc.now)), "got %s", s.NextRun(tc.now))
		})
	}
}

func TestScheduler_TickEnqueuesPreviousDayOnce(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	s := NewScheduler(SchedulerConfig{Queue: q, Logger: zerolog.Nop(), Minute: 30, IncludeReconciliation: true})

	at := time.Date(2024, 3, 1, 0, 30, 0, 0, time.UTC)
	first, err := s.Tick(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, "daily-close:2024-02-29", first.ID)
	assert.Equal(t, domain.JobTypeDailyClose, first.Type)
	assert.JSONEq(t, `{"date":"2024-02-29","include_reconciliation":true}`, string(first.Payload))

	second, err := s.Tick(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	empty, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty, "duplicate tick must not enqueue a second job")
}

func TestScheduler_StartFiresAndStops(t *testing.T) {
	q := newTestQueue(t)
	s := NewScheduler(SchedulerConfig{Queue: q, Logger: zerolog.Nop(), Minute: 30})
	s.now = func() time.Time { return time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	s.after = func(d time.Duration) <-chan time.Time {
		calls++
		ch := make(chan time.Time, 1)
		if calls == 1 {
			assert.Equal(t, 30*time.Minute, d)
			ch <- time.Time{}
			return ch
		}
		cancel()
		return ch
	}

	err := s.Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	job, err := q.Get(context.Background(), "daily-close:2024-03-04")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStateWaiting, job.State)
}
