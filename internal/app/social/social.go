// Package social implements the friend graph: user search, friend
// requests, and friends lists with daily step counts.
package social

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/letsbehealthy/stepcoin/internal/domain"
)

// SearchLimit caps how many users a single search returns.
const SearchLimit = 20

// Store is everything the social service needs from persistence.
type Store interface {
	domain.SocialStore
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// Service carries social operations.
type Service struct {
	store Store
	now   func() time.Time
}

// New builds a social service.
func New(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Search returns users whose username starts with the query, with today's
// step counts attached.
func (s *Service) Search(ctx context.Context, query string) ([]domain.Friend, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", domain.ErrInvalidInput)
	}
	return s.store.SearchUsers(ctx, query, SearchLimit)
}

// SendRequest creates a pending friend request from one user to another.
// Self-requests and requests to existing friends are rejected.
func (s *Service) SendRequest(ctx context.Context, fromID, toID string) (domain.FriendRequest, error) {
	if fromID == toID {
		return domain.FriendRequest{}, domain.ErrSelfFriendship
	}
	to, err := s.store.GetUser(ctx, toID)
	if err != nil {
		return domain.FriendRequest{}, fmt.Errorf("load recipient: %w", err)
	}
	if to == nil {
		return domain.FriendRequest{}, domain.ErrUserNotFound
	}
	already, err := s.store.AreFriends(ctx, fromID, toID)
	if err != nil {
		return domain.FriendRequest{}, fmt.Errorf("check friendship: %w", err)
	}
	if already {
		return domain.FriendRequest{}, domain.ErrAlreadyFriends
	}

	req := domain.FriendRequest{
		ID:        uuid.NewString(),
		From:      fromID,
		To:        toID,
		Status:    domain.RequestPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertFriendRequest(ctx, req); err != nil {
		return domain.FriendRequest{}, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

// Respond accepts or declines a pending request. Only the recipient may
// respond, and only while the request is still pending.
func (s *Service) Respond(ctx context.Context, userID, requestID string, accept bool) error {
	req, err := s.store.GetFriendRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("load request: %w", err)
	}
	if req == nil {
		return domain.ErrRequestNotFound
	}
	if req.To != userID {
		return domain.ErrRequestNotFound
	}
	if req.Status != domain.RequestPending {
		return fmt.Errorf("%w: request already %s", domain.ErrInvalidInput, req.Status)
	}

	status := domain.RequestDeclined
	if accept {
		status = domain.RequestAccepted
	}
	if err := s.store.UpdateFriendRequestStatus(ctx, requestID, status); err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	return nil
}

// Pending returns the requests awaiting the user's response.
func (s *Service) Pending(ctx context.Context, userID string) ([]domain.FriendRequest, error) {
	return s.store.PendingRequests(ctx, userID)
}

// Friends returns the user's friends with their step counts for today.
func (s *Service) Friends(ctx context.Context, userID string) ([]domain.Friend, error) {
	return s.store.ListFriends(ctx, userID)
}
