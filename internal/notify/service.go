package notify

import (
	"context"
	"encoding/json"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/rohanbasu/trendora-backend/pkg/db/models"
	"github.com/rohanbasu/trendora-backend/pkg/enums"
	pkgerrors "github.com/rohanbasu/trendora-backend/pkg/errors"
	"github.com/rohanbasu/trendora-backend/pkg/logger"
	"github.com/rohanbasu/trendora-backend/pkg/pagination"
)

// Event is one fan-out message produced by a delivery transition.
type Event struct {
	Event       enums.NotificationEvent   `json:"event"`
	Channel     enums.NotificationChannel `json:"channel"`
	RecipientID uuid.UUID                 `json:"recipient_id"`
	OrderID     *uuid.UUID                `json:"order_id,omitempty"`
	Title       string                    `json:"title"`
	Body        string                    `json:"body"`
	Payload     map[string]any            `json:"payload,omitempty"`
}

type eventPublisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) error
}

// TopicPublisher adapts a Pub/Sub publisher to the event publisher port.
type TopicPublisher struct {
	pub *pubsub.Publisher
}

// NewTopicPublisher wraps the provided Pub/Sub publisher handle.
func NewTopicPublisher(pub *pubsub.Publisher) *TopicPublisher {
	return &TopicPublisher{pub: pub}
}

// Publish sends the payload and blocks until the broker acknowledges it.
func (p *TopicPublisher) Publish(ctx context.Context, data []byte, attrs map[string]string) error {
	if p == nil || p.pub == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "pubsub publisher not configured")
	}
	result := p.pub.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	_, err := result.Get(ctx)
	return err
}

// Service persists notifications and fans them out to the broker.
type Service interface {
	Emit(ctx context.Context, event Event)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error)
}

type service struct {
	repo      Repository
	publisher eventPublisher
	logg      *logger.Logger
}

// ListParams configures pagination for notifications.
type ListParams struct {
	RecipientID uuid.UUID
	Limit       int
	Cursor      string
	UnreadOnly  bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

// NewService wires notification dependencies. The publisher may be nil; rows
// are still persisted and fan-out is skipped.
func NewService(repo Repository, publisher eventPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications logger required")
	}
	return &service{repo: repo, publisher: publisher, logg: logg}, nil
}

// Emit records the notification and publishes it. Delivery is best effort:
// failures are logged, never returned, so transitions cannot be rolled back
// by a broker outage.
func (s *service) Emit(ctx context.Context, event Event) {
	if event.RecipientID == uuid.Nil || !event.Event.IsValid() {
		s.logg.Warn(s.logg.WithField(ctx, "event", string(event.Event)), "dropping malformed notification")
		return
	}

	var payload json.RawMessage
	if len(event.Payload) > 0 {
		if raw, err := json.Marshal(event.Payload); err == nil {
			payload = raw
		}
	}

	row := &models.Notification{
		Event:       event.Event,
		Channel:     event.Channel,
		RecipientID: event.RecipientID,
		OrderID:     event.OrderID,
		Title:       event.Title,
		Body:        event.Body,
		Payload:     payload,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		s.logg.Error(ctx, "persist notification", err)
	}

	if s.publisher == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		s.logg.Error(ctx, "encode notification event", err)
		return
	}
	attrs := map[string]string{
		"event":   string(event.Event),
		"channel": string(event.Channel),
	}
	if err := s.publisher.Publish(ctx, data, attrs); err != nil {
		s.logg.Error(ctx, "publish notification event", err)
	}
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.RecipientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient id required")
	}

	query := listNotificationsParams{
		RecipientID: params.RecipientID,
		Limit:       params.Limit,
		UnreadOnly:  params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}

	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) MarkRead(ctx context.Context, recipientID, notificationID uuid.UUID) error {
	if recipientID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, recipientID, notificationID, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	if recipientID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "recipient id required")
	}

	count, err := s.repo.MarkAllRead(ctx, recipientID, time.Now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}
