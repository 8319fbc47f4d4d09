package application

import (
	"context"
	"fmt"

	"github.com/AzielCF/az-post/posts/domain"
	"github.com/sirupsen/logrus"
)

// Service is the operator-facing view of the post store.
type Service struct {
	repo domain.IPostRepository
}

func NewService(repo domain.IPostRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Post, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]*domain.Post, error) {
	return s.repo.List(ctx, req.Filter())
}

// Cancel withdraws a post that has not been published yet. Parked posts may be cancelled too.
func (s *Service) Cancel(ctx context.Context, id string) (*domain.Post, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := append(domain.CancellableStatuses(), domain.StatusFailed)
	post, ok, err := s.repo.Transition(ctx, id, from, domain.StatusCancelled, domain.Patch{})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("cancel post %s from %s: %w", id, current.Status, domain.ErrInvalidTransition)
	}
	logrus.Infof("[POSTS] post %s cancelled by operator (was %s)", id, current.Status)
	return post, nil
}
