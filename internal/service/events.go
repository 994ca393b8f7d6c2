package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "ticketgate/internal/errors"
	"ticketgate/internal/logger"
	"ticketgate/internal/messaging"
	"ticketgate/internal/models"

	"github.com/google/uuid"
)

type EventService struct {
	events    EventStore
	publisher messaging.Publisher
	searcher  EventSearcher
	now       func() time.Time
}

func NewEventService(d Deps) *EventService {
	return &EventService{
		events:    d.Events,
		publisher: d.Publisher,
		searcher:  d.Searcher,
		now:       d.Now,
	}
}

func (s *EventService) Create(ctx context.Context, organizerID uuid.UUID, req *models.CreateEventRequest) (*models.Event, error) {
	event := &models.Event{
		OrganizerID: organizerID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		StartsAt:    req.StartsAt.UTC(),
		EndsAt:      req.EndsAt.UTC(),
		Price:       req.Price,
		Capacity:    req.Capacity,
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}

	if err := s.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	logger.WithContext(ctx).Info("Event created", "event_id", event.ID)
	return event, nil
}

func (s *EventService) Get(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if event == nil {
		return nil, apperrors.ErrEventNotFound
	}
	return event, nil
}

// owned loads an event the caller organizes.
func (s *EventService) owned(ctx context.Context, id, organizerID uuid.UUID) (*models.Event, error) {
	event, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.OrganizerID != organizerID {
		return nil, apperrors.ErrForbidden
	}
	return event, nil
}

// UpdateDraft edits a draft event. Published and canceled events are
// rejected with ErrInvalidTransition.
func (s *EventService) UpdateDraft(ctx context.Context, id, organizerID uuid.UUID, req *models.UpdateEventRequest) (*models.Event, error) {
	event, err := s.owned(ctx, id, organizerID)
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventDraft {
		return nil, apperrors.ErrInvalidTransition
	}

	req.Apply(event)
	event.Title = strings.TrimSpace(event.Title)
	if err := event.Validate(); err != nil {
		return nil, err
	}

	if err := s.events.Update(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// Publish opens a draft event for booking.
func (s *EventService) Publish(ctx context.Context, id, organizerID uuid.UUID) (*models.Event, error) {
	if _, err := s.owned(ctx, id, organizerID); err != nil {
		return nil, err
	}

	event, err := s.events.TransitionStatus(ctx, id, models.EventDraft, models.EventPublished)
	if err != nil {
		return nil, err
	}

	msg := models.EventPublishedMessage{
		EventID:     event.ID,
		OrganizerID: event.OrganizerID,
		Title:       event.Title,
		Description: event.Description,
		StartsAt:    event.StartsAt,
		EndsAt:      event.EndsAt,
		Price:       event.Price,
		Capacity:    event.Capacity,
		Timestamp:   s.now(),
	}
	if err := s.publisher.Publish(models.SubjectEventPublished, msg); err != nil {
		logger.WithContext(ctx).Error("Failed to publish event published message",
			"error", err,
			"event_id", event.ID,
			"event_type", models.SubjectEventPublished)
	}

	return event, nil
}

// Cancel closes a published event. No booking or check-in succeeds after.
func (s *EventService) Cancel(ctx context.Context, id, organizerID uuid.UUID) (*models.Event, error) {
	if _, err := s.owned(ctx, id, organizerID); err != nil {
		return nil, err
	}

	event, err := s.events.TransitionStatus(ctx, id, models.EventPublished, models.EventCanceled)
	if err != nil {
		return nil, err
	}

	msg := models.EventCanceledMessage{EventID: event.ID, Timestamp: s.now()}
	if err := s.publisher.Publish(models.SubjectEventCanceled, msg); err != nil {
		logger.WithContext(ctx).Error("Failed to publish event canceled message",
			"error", err,
			"event_id", event.ID,
			"event_type", models.SubjectEventCanceled)
	}

	return event, nil
}

type EventPage struct {
	Items []models.Event
	Total int
	Page  int
	Limit int
}

// List returns the organizer's events.
func (s *EventService) List(ctx context.Context, filter models.EventFilter) (*EventPage, error) {
	var err error
	filter.Limit, filter.Page, err = normalizePage(filter.Limit, filter.Page)
	if err != nil {
		return nil, err
	}
	filter.Search = strings.TrimSpace(filter.Search)

	items, total, err := s.events.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	return &EventPage{Items: items, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

type SearchPage struct {
	Items []models.SearchEventsResponseItem
	Total int
	Page  int
	Limit int
}

// Search queries the public catalogue of published events. Without a
// search index, or when it fails, the event store answers instead.
func (s *EventService) Search(ctx context.Context, query string, limit, page int) (*SearchPage, error) {
	limit, page, err := normalizePage(limit, page)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)

	if s.searcher != nil {
		docs, total, err := s.searcher.Search(ctx, query, page, limit)
		if err == nil {
			items := make([]models.SearchEventsResponseItem, len(docs))
			for i, doc := range docs {
				items[i] = models.SearchEventsResponseItem{
					ID:       doc.ID,
					Title:    doc.Title,
					StartsAt: doc.StartsAt,
					Price:    models.FormatPrice(doc.Price),
				}
			}
			return &SearchPage{Items: items, Total: int(total), Page: page, Limit: limit}, nil
		}
		logger.WithContext(ctx).Warn("Search index unavailable, falling back to database", "error", err)
	}

	published := models.EventPublished
	events, total, err := s.events.List(ctx, models.EventFilter{
		Status: &published,
		Search: query,
		Limit:  limit,
		Page:   page,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search events: %w", err)
	}

	items := make([]models.SearchEventsResponseItem, len(events))
	for i, event := range events {
		items[i] = models.SearchEventsResponseItem{
			ID:       event.ID,
			Title:    event.Title,
			StartsAt: event.StartsAt,
			Price:    models.FormatPrice(event.Price),
		}
	}
	return &SearchPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// CounterDrift reports events whose checked_in counter disagrees with
// their checked-in tickets.
func (s *EventService) CounterDrift(ctx context.Context) ([]models.CounterDrift, error) {
	return s.events.CheckedInDrift(ctx)
}
