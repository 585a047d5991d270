package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"qrattend/internal/metrics"
)

// Publisher fans recorded events out to downstream consumers.
type Publisher interface {
	PublishRecorded(ctx context.Context, evt Event) error
}

// RecorderDeps wires a Recorder. Cache and Publisher are optional.
type RecorderDeps struct {
	Ledger    Ledger
	Cache     SummaryCache
	Publisher Publisher
	Location  *time.Location
	Clock     func() time.Time
	Logger    zerolog.Logger
}

// Recorder appends validated scans to the ledger.
type Recorder struct {
	ledger Ledger
	cache  SummaryCache
	pub    Publisher
	loc    *time.Location
	now    func() time.Time
	log    zerolog.Logger
}

func NewRecorder(d RecorderDeps) *Recorder {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	return &Recorder{
		ledger: d.Ledger,
		cache:  d.Cache,
		pub:    d.Publisher,
		loc:    d.Location,
		now:    d.Clock,
		log:    d.Logger.With().Str("component", "recorder").Logger(),
	}
}

// Record appends one event. It returns ErrWriteFailed (wrapping the cause)
// when the ledger append fails; nothing is retried.
func (r *Recorder) Record(ctx context.Context, v ValidatedScan) (Event, error) {
	now := r.now()
	evt := Event{
		ID:         uuid.NewString(),
		StudentID:  v.StudentID,
		CourseID:   v.CourseID,
		RecordedAt: now.UTC(),
		Timestamp:  FormatDisplay(now, r.loc),
	}

	start := time.Now()
	id, err := r.ledger.AppendEvent(ctx, evt)
	metrics.LedgerAppendSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if id != "" {
		evt.ID = id
	}

	if r.cache != nil {
		if err := r.cache.Invalidate(ctx, evt.CourseID, evt.StudentID); err != nil {
			r.log.Warn().Err(err).
				Str("course_id", evt.CourseID).
				Str("student_id", evt.StudentID).
				Msg("summary cache invalidation failed")
		}
	}
	if r.pub != nil {
		if err := r.pub.PublishRecorded(ctx, evt); err != nil {
			r.log.Warn().Err(err).Str("event_id", evt.ID).Msg("publish recorded event failed")
		}
	}
	return evt, nil
}
