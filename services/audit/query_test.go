package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var admin = AdminIdentity{Subject: "ops@mergington.edu", Method: MethodStaticToken, verified: true}

func newQueryFixture(t *testing.T) (*MemoryStore, *Writer, *QueryService, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	store := NewMemoryStore(clock)
	w, err := NewWriter(store, zerolog.Nop())
	require.NoError(t, err)
	q, err := NewQueryService(store, 90, zerolog.Nop())
	require.NoError(t, err)
	return store, w, q, clock
}

func TestQueryRequiresVerifiedIdentity(t *testing.T) {
	_, _, q, _ := newQueryFixture(t)
	forged := AdminIdentity{Subject: "admin", Method: MethodStaticToken}

	_, err := q.List(context.Background(), forged, 10, 0)
	assert.ErrorIs(t, err, ErrForbidden)

	var buf bytes.Buffer
	_, err = q.Export(context.Background(), forged, &buf)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Zero(t, buf.Len())

	_, err = q.Stats(context.Background(), AdminIdentity{})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestQueryListLimits(t *testing.T) {
	store, _, q, _ := newQueryFixture(t)
	insertN(t, store, 1205, ActionSignup)

	cases := []struct {
		name          string
		limit, offset int
		wantLen       int
		wantErr       error
	}{
		{name: "default limit", limit: 0, wantLen: DefaultPageSize},
		{name: "explicit limit", limit: 25, offset: 5, wantLen: 25},
		{name: "capped limit", limit: 5000, wantLen: MaxPageSize},
		{name: "tail page", limit: 100, offset: 1200, wantLen: 5},
		{name: "past the end", limit: 100, offset: 2000, wantLen: 0},
		{name: "negative limit", limit: -1, wantErr: ErrValidation},
		{name: "negative offset", limit: 10, offset: -3, wantErr: ErrValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := q.List(context.Background(), admin, tc.limit, tc.offset)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, page.Logs, tc.wantLen)
			assert.Equal(t, int64(1205), page.Total)
		})
	}
}

func TestQueryListStorageFailure(t *testing.T) {
	q, err := NewQueryService(failingStore{err: errors.New("locked")}, 90, zerolog.Nop())
	require.NoError(t, err)

	_, err = q.List(context.Background(), admin, 10, 0)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	_, err = q.Stats(context.Background(), admin)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	var buf bytes.Buffer
	_, err = q.Export(context.Background(), admin, &buf)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Zero(t, buf.Len(), "a failed export must not look like an empty trail")
}

func TestSignupScenarioStats(t *testing.T) {
	_, w, q, _ := newQueryFixture(t)
	ctx := context.Background()

	for _, email := range []string{"emma@mergington.edu", "sophia@mergington.edu", "john@mergington.edu"} {
		_, err := w.Record(ctx, Event{Action: ActionSignup, UserEmail: email, ActivityName: "Chess Club"})
		require.NoError(t, err)
	}
	_, err := w.Record(ctx, Event{Action: ActionUnregister, UserEmail: "emma@mergington.edu", ActivityName: "Chess Club"})
	require.NoError(t, err)

	stats, err := q.Stats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, Stats{
		TotalLogs:     4,
		ActionCounts:  map[Action]int64{ActionSignup: 3, ActionUnregister: 1},
		RetentionDays: 90,
	}, stats)

	page, err := q.List(ctx, admin, 2, 0)
	require.NoError(t, err)
	require.Len(t, page.Logs, 2)
	assert.Equal(t, ActionUnregister, page.Logs[0].Action)
	assert.Equal(t, int64(4), page.Logs[0].ID)
	assert.Equal(t, int64(3), page.Logs[1].ID)
}

func TestExportEmptyTrailIsHeaderOnly(t *testing.T) {
	_, _, q, _ := newQueryFixture(t)

	var buf bytes.Buffer
	n, err := q.Export(context.Background(), admin, &buf)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, strings.Join(ExportHeader, ",")+"\n", buf.String())
}

func TestExportRows(t *testing.T) {
	_, w, q, clock := newQueryFixture(t)
	ctx := context.Background()

	_, err := w.Record(ctx, Event{
		Action:       ActionSignup,
		UserEmail:    "olivia@mergington.edu",
		ActivityName: "Drama Club",
		Details:      `said "hi", then left`,
		IPAddress:    "192.0.2.10",
	})
	require.NoError(t, err)
	clock.Advance(1500 * time.Millisecond)
	_, err = w.Record(ctx, Event{Action: "badge_printed", UserEmail: "ops@mergington.edu"})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := q.Export(ctx, admin, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ExportHeader, rows[0])
	assert.Equal(t, []string{
		"1", "2026-03-01T09:30:00Z", "signup", "olivia@mergington.edu",
		"Drama Club", `said "hi", then left`, "192.0.2.10",
	}, rows[1])
	assert.Equal(t, []string{
		"2", "2026-03-01T09:30:01.5Z", "badge_printed", "ops@mergington.edu", "", "", "",
	}, rows[2])
}

func TestExportHonoursCancellation(t *testing.T) {
	store, _, q, _ := newQueryFixture(t)
	insertN(t, store, 10, ActionSignup)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Export(ctx, admin, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}

type brokenWriter struct{ err error }

func (w brokenWriter) Write([]byte) (int, error) { return 0, w.err }

func TestExportDestinationFailureIsNotStorageFailure(t *testing.T) {
	store, _, q, _ := newQueryFixture(t)
	insertN(t, store, 3, ActionSignup)

	gone := errors.New("broken pipe")
	_, err := q.Export(context.Background(), admin, brokenWriter{err: gone})
	assert.ErrorIs(t, err, ErrExportWrite)
	assert.ErrorIs(t, err, gone)
	assert.NotErrorIs(t, err, ErrStorageUnavailable)

	insertN(t, store, exportFlushEvery, ActionUnregister)
	_, err = q.Export(context.Background(), admin, brokenWriter{err: gone})
	assert.ErrorIs(t, err, ErrExportWrite)
	assert.NotErrorIs(t, err, ErrStorageUnavailable)
}
