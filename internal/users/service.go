package users

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/WailSalutem-Health-Care/user-service/internal/messaging"
	"github.com/WailSalutem-Health-Care/user-service/internal/pagination"
)

type Service struct {
	repo      RepositoryInterface
	publisher messaging.EventPublisher
}

// NewService wires the repository and event publisher. publisher may be nil,
// in which case mutations are not announced.
func NewService(repo RepositoryInterface, publisher messaging.EventPublisher) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
	}
}

func (s *Service) ListUsers(ctx context.Context, params pagination.Params) (*PaginatedUserListResponse, error) {
	params.Validate()

	users, total, err := s.repo.ListWithPagination(ctx, params.Limit, params.CalculateOffset())
	if err != nil {
		return nil, err
	}

	return &PaginatedUserListResponse{
		Users:      users,
		Count:      len(users),
		Pagination: params.CalculateMeta(total),
	}, nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user := &User{
		Name:  req.Name,
		Email: req.Email,
		Role:  req.Role,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.publish(ctx, messaging.EventUserCreated, user)
	return user, nil
}

func (s *Service) UpdateUser(ctx context.Context, id int64, req UpdateUserRequest) (*User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	req.Apply(user)
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	s.publish(ctx, messaging.EventUserUpdated, user)
	return user, nil
}

// DeleteUser removes the user and returns the record as it was before deletion.
func (s *Service) DeleteUser(ctx context.Context, id int64) (*User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}

	s.publish(ctx, messaging.EventUserDeleted, user)
	return user, nil
}

func (s *Service) publish(ctx context.Context, eventType messaging.EventType, user *User) {
	if s.publisher == nil {
		return
	}
	if !s.publisher.Publish(ctx, eventType, user.EventData()) {
		log.WithFields(log.Fields{
			"event_type": eventType,
			"user_id":    user.ID,
		}).Warn("User event was not published")
	}
}
