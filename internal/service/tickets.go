package service

import (
	"context"
	"fmt"
	"strings"

	apperrors "ticketgate/internal/errors"
	"ticketgate/internal/models"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

type TicketQueryService struct {
	tickets TicketStore
}

func NewTicketQueryService(tickets TicketStore) *TicketQueryService {
	return &TicketQueryService{tickets: tickets}
}

type TicketPage struct {
	Items []models.TicketView
	Total int
	Page  int
	Limit int
}

// normalizePage applies defaults to zero values and rejects the rest of
// the out-of-range input.
func normalizePage(limit, page int) (int, int, error) {
	if limit == 0 {
		limit = DefaultPageLimit
	}
	if page == 0 {
		page = 1
	}
	if limit < 1 || limit > MaxPageLimit {
		return 0, 0, apperrors.Validation("limit must be between 1 and %d", MaxPageLimit)
	}
	if page < 1 {
		return 0, 0, apperrors.Validation("page must be at least 1")
	}
	return limit, page, nil
}

// ListTickets returns one page of the owner's tickets, newest first. Total
// counts the whole filtered set; a page past the end is empty.
func (s *TicketQueryService) ListTickets(ctx context.Context, filter models.TicketFilter) (*TicketPage, error) {
	var err error
	filter.Limit, filter.Page, err = normalizePage(filter.Limit, filter.Page)
	if err != nil {
		return nil, err
	}
	filter.Search = strings.TrimSpace(filter.Search)

	items, total, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}

	return &TicketPage{
		Items: items,
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}, nil
}
