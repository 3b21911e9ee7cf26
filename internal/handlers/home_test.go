package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/moolen/ferry/internal/apiserver"
	"github.com/moolen/ferry/internal/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeRow time.Time

func (r timeRow) Scan(dest ...any) error {
	*(dest[0].(*time.Time)) = time.Time(r)
	return nil
}

// timeRows is a single-column result set of timestamps.
type timeRows struct {
	values []time.Time
	pos    int
}

func (r *timeRows) Close()                                       {}
func (r *timeRows) Err() error                                   { return nil }
func (r *timeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *timeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *timeRows) RawValues() [][]byte                          { return nil }
func (r *timeRows) Conn() *pgx.Conn                              { return nil }

func (r *timeRows) Next() bool {
	if r.pos >= len(r.values) {
		return false
	}
	r.pos++
	return true
}

func (r *timeRows) Scan(dest ...any) error {
	*(dest[0].(*time.Time)) = r.values[r.pos-1]
	return nil
}

func (r *timeRows) Values() ([]any, error) {
	return []any{r.values[r.pos-1]}, nil
}

type fakeDB struct {
	now     time.Time
	week    []time.Time
	execErr error
	execs   int
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs++
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return &timeRows{values: f.week}, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return timeRow(f.now)
}

type published struct {
	subject string
	payload string
}

type fakePublisher struct {
	sent []published
	err  error
}

func (f *fakePublisher) Publish(ctx context.Context, subject string, payload []byte, opts ...broker.PublishOption) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, published{subject: subject, payload: string(payload)})
	return "id-1", nil
}

type fakeConsumer string

func (c fakeConsumer) Subject() string { return string(c) }

func newFixture() (*fakeDB, *fakePublisher) {
	now := time.Date(2024, 3, 7, 10, 0, 0, 0, time.UTC)
	week := make([]time.Time, 7)
	for i := range week {
		week[i] = now.AddDate(0, 0, i-6)
	}
	return &fakeDB{now: now, week: week}, &fakePublisher{}
}

func serve(h *Home, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.Register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHome(t *testing.T) {
	db, pub := newFixture()
	rec := serve(NewHome(db, pub, fakeConsumer("_INBOX.abc")), "/")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello, world!\n"+
		"Now: 2024-03-07T10:00:00Z\n"+
		"Week: 2024-03-01T10:00:00Z,2024-03-02T10:00:00Z,2024-03-03T10:00:00Z,"+
		"2024-03-04T10:00:00Z,2024-03-05T10:00:00Z,2024-03-06T10:00:00Z,2024-03-07T10:00:00Z",
		rec.Body.String())

	assert.Equal(t, []published{{subject: "_INBOX.abc", payload: "test message"}}, pub.sent)
	assert.Zero(t, db.execs)
}

func assertInternalError(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body apiserver.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, apiserver.CodeInternal, body.Error)
}

func TestHomeErrorParameter(t *testing.T) {
	db, pub := newFixture()
	db.execErr = &pgconn.PgError{Code: "42P01", Message: `relation "some_table" does not exist`}

	rec := serve(NewHome(db, pub, fakeConsumer("_INBOX.abc")), "/?error=1")
	assertInternalError(t, rec)
	assert.Equal(t, 1, db.execs)
	assert.Empty(t, pub.sent)
}

func TestHomeErrorParameterSucceedsWhenUpdateWorks(t *testing.T) {
	db, pub := newFixture()
	rec := serve(NewHome(db, pub, fakeConsumer("_INBOX.abc")), "/?error=yes")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, db.execs)
}

func TestHomeWithoutConsumerSubject(t *testing.T) {
	db, pub := newFixture()
	rec := serve(NewHome(db, pub, fakeConsumer("")), "/")
	assertInternalError(t, rec)
	assert.Empty(t, pub.sent)
}

func TestHomePublishFailure(t *testing.T) {
	db, pub := newFixture()
	pub.err = broker.ErrChannelNotStarted
	rec := serve(NewHome(db, pub, fakeConsumer("_INBOX.abc")), "/")
	assertInternalError(t, rec)
}

func TestRenderReturnsCause(t *testing.T) {
	db, pub := newFixture()
	h := NewHome(db, pub, fakeConsumer(""))
	_, err := h.render(context.Background(), false)
	assert.True(t, errors.Is(err, errNoSubject))
}
