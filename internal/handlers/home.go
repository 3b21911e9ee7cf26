// Package handlers contains the application's HTTP routes.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/moolen/ferry/internal/apiserver"
	"github.com/moolen/ferry/internal/broker"
	"github.com/moolen/ferry/internal/database"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName  = "github.com/moolen/ferry/internal/handlers"
	testMessage = "test message"
)

// errNoSubject is returned while the consumer has not subscribed yet.
var errNoSubject = errors.New("consumer has no subject")

// Publisher sends a message to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...broker.PublishOption) (string, error)
}

// SubjectSource exposes the subject the consumer listens on.
type SubjectSource interface {
	Subject() string
}

// Home serves GET /.
type Home struct {
	db       database.Querier
	pub      Publisher
	consumer SubjectSource
	tracer   trace.Tracer
}

// NewHome creates the home handler.
func NewHome(db database.Querier, pub Publisher, consumer SubjectSource) *Home {
	return &Home{
		db:       db,
		pub:      pub,
		consumer: consumer,
		tracer:   otel.Tracer(tracerName),
	}
}

// Register mounts the handler on r.
func (h *Home) Register(r chi.Router) {
	r.Get("/", h.ServeHTTP)
}

// ServeHTTP queries the database, sends a message to the consumer and
// answers with the results. Setting the error query parameter first runs an
// update against a table that does not exist.
func (h *Home) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handlers.Home")
	defer span.End()

	body, err := h.render(ctx, r.URL.Query().Get("error") != "")
	if err != nil {
		span.RecordError(err)
		apiserver.InternalError(w, r.WithContext(ctx), err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (h *Home) render(ctx context.Context, failOnPurpose bool) (string, error) {
	if failOnPurpose {
		if err := database.UpdateSomeTable(ctx, h.db, 1); err != nil {
			return "", err
		}
	}

	subject := h.consumer.Subject()
	if subject == "" {
		return "", errNoSubject
	}

	week, err := database.GetWeek(ctx, h.db)
	if err != nil {
		return "", err
	}
	now, err := database.GetDate(ctx, h.db)
	if err != nil {
		return "", err
	}

	id, err := h.pub.Publish(ctx, subject, []byte(testMessage), broker.WithoutTracePropagation())
	if err != nil {
		return "", err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("messaging.message.id", id))

	days := make([]string, len(week))
	for i, d := range week {
		days[i] = d.Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("Hello, world!\nNow: %s\nWeek: %s", now.Format(time.RFC3339Nano), strings.Join(days, ",")), nil
}
