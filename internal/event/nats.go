// Package event publishes work plan notifications to NATS JetStream.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/robert-malhotra/ewoc-work-plan/internal/workplan"
)

// Event types and stream settings.
const (
	TypePlanCreated = "ewoc.workplan.created"
	EnvelopeVersion = "1.0.0"
	StreamName      = "EWOC_WORKPLANS"
)

// Publisher publishes work plan events.
type Publisher interface {
	// PublishPlanCreated announces a generated plan. location is where the
	// plan document was written and may be empty.
	PublishPlanCreated(ctx context.Context, wp *workplan.WorkPlan, location string) error
	Close() error
}

// Envelope wraps every published event.
type Envelope struct {
	Type          string    `json:"type"`
	Version       string    `json:"version"`
	OccurredAt    time.Time `json:"occurredAt"`
	CorrelationID string    `json:"correlationId"`
	Payload       any       `json:"payload"`
}

// PlanCreated is the payload of a plan-created event.
type PlanCreated struct {
	PlanID      string   `json:"plan_id"`
	AEZID       int      `json:"aez_id"`
	SeasonStart string   `json:"season_start"`
	SeasonEnd   string   `json:"season_end"`
	Tiles       []string `json:"tiles"`
	S1Nb        int      `json:"s1_nb"`
	S2Nb        int      `json:"s2_nb"`
	L8Nb        int      `json:"l8_nb"`
	Location    string   `json:"location,omitempty"`
}

// NewPlanCreated summarizes a plan for notification.
func NewPlanCreated(wp *workplan.WorkPlan, location string) PlanCreated {
	p := PlanCreated{
		PlanID:      wp.ID,
		AEZID:       wp.AEZID,
		SeasonStart: wp.SeasonStart,
		SeasonEnd:   wp.SeasonEnd,
		Tiles:       make([]string, 0, len(wp.Tiles)),
		Location:    location,
	}
	for _, tp := range wp.Tiles {
		p.Tiles = append(p.Tiles, tp.TileID)
		p.S1Nb += tp.S1Nb
		p.S2Nb += tp.S2Nb
		p.L8Nb += tp.L8Nb
	}
	return p
}

// Noop discards events. It is used when no NATS URL is configured.
type Noop struct{}

func (Noop) PublishPlanCreated(context.Context, *workplan.WorkPlan, string) error { return nil }
func (Noop) Close() error { return nil }

// jetStream is the subset of nats.JetStreamContext used for publishing.
type jetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSPublisher publishes events to a JetStream stream.
type NATSPublisher struct {
	nc      *nats.Conn
	js      jetStream
	subject string
	logger  *slog.Logger
	now     func() time.Time
}

// Connect dials NATS and makes sure the plan stream exists.
func Connect(url, subject string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(url, nats.Name("ewoc-work-plan"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := initStream(js, subject); err != nil {
		nc.Close()
		return nil, err
	}

	p := newPublisher(js, subject, logger)
	p.nc = nc
	return p, nil
}

func newPublisher(js jetStream, subject string, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{
		js:      js,
		subject: subject,
		logger:  logger,
		now:     time.Now,
	}
}

func initStream(js nats.JetStreamContext, subject string) error {
	if _, err := js.StreamInfo(StreamName); err == nil {
		return nil
	}
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{subject},
		Retention: nats.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Discard:   nats.DiscardOld,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create %s stream: %w", StreamName, err)
	}
	return nil
}

// PublishPlanCreated publishes a plan-created envelope. The plan id is used
// as the JetStream message id so repeated publishes of one plan are
// deduplicated by the server.
func (p *NATSPublisher) PublishPlanCreated(ctx context.Context, wp *workplan.WorkPlan, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	envelope := Envelope{
		Type:          TypePlanCreated,
		Version:       EnvelopeVersion,
		OccurredAt:    p.now().UTC(),
		CorrelationID: uuid.NewString(),
		Payload:       NewPlanCreated(wp, location),
	}

	b, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := p.js.Publish(p.subject, b, nats.MsgId(wp.ID), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", TypePlanCreated, err)
	}

	p.logger.InfoContext(ctx, "plan event published",
		slog.String("plan_id", wp.ID),
		slog.String("subject", p.subject),
		slog.Bool("duplicate", ack != nil && ack.Duplicate),
	)
	return nil
}

// Close drains the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
