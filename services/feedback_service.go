package services

import (
	"context"
	"strings"
	"time"

	"geoguess/models"
	"geoguess/store"
)

const defaultFeedbackCategory = "Feedback"

type FeedbackService struct {
	store store.Store
}

func NewFeedbackService(st store.Store) *FeedbackService {
	return &FeedbackService{store: st}
}

type FeedbackRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

func (s *FeedbackService) Submit(ctx context.Context, req *FeedbackRequest) (*models.Feedback, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, validationf("message is empty")
	}

	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = defaultFeedbackCategory
	}

	fb := &models.Feedback{
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.TrimSpace(req.Email),
		Category:  category,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveFeedback(ctx, fb); err != nil {
		return nil, storeError("failed to save feedback", err)
	}
	return fb, nil
}

// List returns all feedback, newest first.
func (s *FeedbackService) List(ctx context.Context) ([]models.Feedback, error) {
	items, err := s.store.ListFeedback(ctx)
	if err != nil {
		return nil, storeError("failed to list feedback", err)
	}
	return items, nil
}
