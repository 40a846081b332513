package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	StreamName    = "SHR_ENCOUNTERS"
	SubjectPrefix = "shr.encounters"
)

// EncounterAccepted is published once for every encounter that has been
// persisted. It carries routing metadata only, never the clinical content.
type EncounterAccepted struct {
	EncounterID              string    `json:"encounterId"`
	HealthID                 string    `json:"healthId"`
	Catchment                string    `json:"catchment"`
	SortKey                  string    `json:"sortKey"`
	ReceivedAt               time.Time `json:"receivedAt"`
	PatientConfidentiality   string    `json:"patientConfidentiality"`
	EncounterConfidentiality string    `json:"encounterConfidentiality"`
	FacilityID               string    `json:"facilityId,omitempty"`
}

// Subject is the subject the event is published on: the prefix followed by
// the division and district of the catchment.
func (e EncounterAccepted) Subject() string {
	c := e.Catchment
	if len(c) >= 4 {
		return SubjectPrefix + "." + c[:2] + "." + c[2:4]
	}
	return SubjectPrefix + ".unknown"
}

type Publisher interface {
	PublishEncounterAccepted(ctx context.Context, evt EncounterAccepted) error
}

// JetStreamPublisher publishes onto a JetStream stream, deduplicating on the
// encounter id.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	owned  bool
	logger zerolog.Logger
}

// Connect dials url and makes sure the encounter stream exists.
func Connect(ctx context.Context, url string, logger zerolog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("shr-server"))
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	p, err := NewJetStreamPublisher(ctx, nc, logger)
	if err != nil {
		nc.Close()
		return nil, err
	}
	p.owned = true
	return p, nil
}

// NewJetStreamPublisher wraps an existing connection. The caller keeps
// ownership of nc.
func NewJetStreamPublisher(ctx context.Context, nc *nats.Conn, logger zerolog.Logger) (*JetStreamPublisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Accepted encounter notifications",
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Duplicates:  10 * time.Minute,
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("creating stream %s: %w", StreamName, err)
	}
	return &JetStreamPublisher{nc: nc, js: js, logger: logger}, nil
}

func (p *JetStreamPublisher) PublishEncounterAccepted(ctx context.Context, evt EncounterAccepted) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	subject := evt.Subject()
	ack, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(evt.EncounterID))
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	p.logger.Debug().
		Str("subject", subject).
		Str("encounter_id", evt.EncounterID).
		Uint64("seq", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("encounter event published")
	return nil
}

// JetStream exposes the underlying context for consumers and tests.
func (p *JetStreamPublisher) JetStream() jetstream.JetStream {
	return p.js
}

// Ping reports an error unless the connection to the broker is up.
func (p *JetStreamPublisher) Ping(context.Context) error {
	if status := p.nc.Status(); status != nats.CONNECTED {
		return fmt.Errorf("nats connection %s", status)
	}
	return nil
}

func (p *JetStreamPublisher) Close() {
	if p.owned && p.nc != nil {
		p.nc.Close()
	}
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) PublishEncounterAccepted(context.Context, EncounterAccepted) error { return nil }

// Filter restricts subjects to a catchment prefix, for consumers that only
// care about one district.
func Filter(catchment string) string {
	if len(catchment) < 4 {
		return SubjectPrefix + ".>"
	}
	return strings.Join([]string{SubjectPrefix, catchment[:2], catchment[2:4]}, ".")
}
