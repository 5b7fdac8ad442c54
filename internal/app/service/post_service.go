package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sifan077/PowerStash/internal/app/model"
	"github.com/sifan077/PowerStash/internal/app/repository"
	"go.uber.org/zap"
)

var ErrEmptyTitle = errors.New("post title is required")

// PostInput describes a message an admin wants to make searchable.
type PostInput struct {
	Title           string
	Keywords        string
	AddedBy         int64
	SourceChatID    int64
	SourceMessageID int
}

// PostService manages the admin-curated search posts.
type PostService struct {
	deps  StorageDeps
	posts repository.SearchPostRepository
}

func NewPostService(deps StorageDeps, posts repository.SearchPostRepository) *PostService {
	return &PostService{deps: deps.withDefaults("posts"), posts: posts}
}

// AddPost stores a copy of the source message and indexes it under title
// and keywords.
func (s *PostService) AddPost(ctx context.Context, in PostInput) (*model.SearchPost, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	var storedID int
	err := s.deps.Gate.Store(ctx, func() error {
		id, err := s.deps.store(ctx, in.SourceChatID, in.SourceMessageID)
		storedID = id
		return err
	})
	if err != nil {
		return nil, err
	}

	post := &model.SearchPost{
		Title:            title,
		KeywordText:      strings.TrimSpace(in.Keywords),
		StorageChannelID: s.deps.StorageChannelID,
		StorageMessageID: storedID,
		AddedBy:          in.AddedBy,
		AddedAt:          s.deps.Now().UTC(),
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}

	s.deps.Logger.Info("search post added", zap.Uint64("post_id", post.ID), zap.String("title", title))
	return post, nil
}

// DeletePost removes the post. The stored copy is removed best-effort.
func (s *PostService) DeletePost(ctx context.Context, id uint64) (*model.SearchPost, error) {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	if err := s.posts.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("delete post: %w", err)
	}

	err = s.deps.Messenger.DeleteMessages(ctx, post.StorageChannelID, []int{post.StorageMessageID})
	if err != nil && !errors.Is(err, ErrMessageGone) {
		s.deps.Logger.Warn("failed to delete stored post message",
			zap.Uint64("post_id", id),
			zap.Error(err),
		)
	}
	return post, nil
}

// ListPosts returns the most recently added posts first.
func (s *PostService) ListPosts(ctx context.Context, limit int) ([]model.SearchPost, error) {
	posts, err := s.posts.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}
