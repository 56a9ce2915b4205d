package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"knowspace/api/internal/marks"
)

func (s *Service) markStore() (MarkStore, error) {
	if s.marks == nil {
		return nil, domainError(http.StatusServiceUnavailable, "MARKS_UNAVAILABLE", "Mark sync is not configured", nil)
	}
	return s.marks, nil
}

// SyncMarks applies one extension event to the user's marks for pageURL and
// returns the resulting set.
func (s *Service) SyncMarks(ctx context.Context, uid, pageURL string, event marks.SyncMarkEvent) ([]marks.Mark, error) {
	ms, err := s.markStore()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(pageURL) == "" {
		return nil, errValidation("pageUrl is required")
	}

	set, err := ms.Load(ctx, uid, pageURL)
	if err != nil {
		return nil, err
	}
	if err := set.Apply(event); err != nil {
		if errors.Is(err, marks.ErrInvalid) {
			return nil, domainError(http.StatusBadRequest, "INVALID_MARK_EVENT", err.Error(), nil)
		}
		return nil, err
	}
	if err := ms.Save(ctx, uid, pageURL, set); err != nil {
		return nil, err
	}
	return set.Marks(), nil
}

func (s *Service) ListMarks(ctx context.Context, uid, pageURL string) ([]marks.Mark, error) {
	ms, err := s.markStore()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(pageURL) == "" {
		return nil, errValidation("pageUrl is required")
	}
	set, err := ms.Load(ctx, uid, pageURL)
	if err != nil {
		return nil, err
	}
	return set.Marks(), nil
}
