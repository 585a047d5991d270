package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"qrattend/internal/attendance"
	"qrattend/internal/metrics"
)

// TypeRecorded is published after every durable ledger append.
const TypeRecorded = "attendance.recorded"

// RecordedPublisher publishes recorded events onto a Queue. It satisfies
// attendance.Publisher.
type RecordedPublisher struct {
	Q Queue
}

func (p RecordedPublisher) PublishRecorded(ctx context.Context, evt attendance.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode recorded event: %w", err)
	}
	return p.Q.Publish(ctx, Message{Type: TypeRecorded, Body: body})
}

// DecodeRecorded extracts the event from a TypeRecorded message.
func DecodeRecorded(msg Message) (attendance.Event, error) {
	if msg.Type != TypeRecorded {
		return attendance.Event{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	var evt attendance.Event
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		return attendance.Event{}, fmt.Errorf("decode recorded event: %w", err)
	}
	return evt, nil
}

// RecordedHandler reacts to one recorded event.
type RecordedHandler func(ctx context.Context, evt attendance.Event) error

// ConsumeRecorded feeds every TypeRecorded message on q to handle until ctx
// is done. Other message types are skipped; handler errors are logged and
// the message is dropped.
func ConsumeRecorded(ctx context.Context, q Queue, handle RecordedHandler, log zerolog.Logger) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	log = log.With().Str("component", "recorded_consumer").Logger()
	for msg := range messages {
		if msg.Type != TypeRecorded {
			metrics.NotificationsProcessed.WithLabelValues("skipped").Inc()
			continue
		}
		evt, err := DecodeRecorded(msg)
		if err != nil {
			metrics.NotificationsProcessed.WithLabelValues("invalid").Inc()
			log.Warn().Err(err).Msg("dropping recorded message")
			continue
		}
		if err := handle(ctx, evt); err != nil {
			metrics.NotificationsProcessed.WithLabelValues("failed").Inc()
			log.Warn().Err(err).
				Str("event_id", evt.ID).
				Str("course_id", evt.CourseID).
				Str("student_id", evt.StudentID).
				Msg("recorded event handler failed")
			continue
		}
		metrics.NotificationsProcessed.WithLabelValues("ok").Inc()
		log.Debug().Str("event_id", evt.ID).Msg("recorded event handled")
	}
	return ctx.Err()
}
