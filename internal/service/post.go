package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"socialfeed/internal/models"
	"socialfeed/internal/ws"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	MaxPostLength    = 500
	MaxCommentLength = 300
)

// Publisher 接收内容变更事件，实现方不得阻塞调用方。
type Publisher interface {
	Publish(evt ws.Event)
}

// PostService 封装帖子、评论和点赞。每次变更在事务提交后才发布事件。
type PostService struct {
	db  *gorm.DB
	pub Publisher
}

func NewPostService(db *gorm.DB, pub Publisher) *PostService {
	return &PostService{db: db, pub: pub}
}

func validateContent(content string, max int) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", invalid("content", "this field may not be blank")
	}
	if utf8.RuneCountInString(content) > max {
		return "", invalid("content", fmt.Sprintf("ensure this field has no more than %d characters", max))
	}
	return content, nil
}

// Create 以 user 身份发帖。
func (s *PostService) Create(ctx context.Context, user *models.User, content string) (*PostDTO, error) {
	content, err := validateContent(content, MaxPostLength)
	if err != nil {
		return nil, err
	}
	post := models.Post{UserID: user.ID, Content: content}
	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	post.User = *user
	s.pub.Publish(ws.PostUpdate(ws.MessageNewPost).WithPost(post.ID))
	return &PostDTO{
		ID:        post.ID,
		User:      NewUserDTO(*user),
		Content:   post.Content,
		CreatedAt: post.CreatedAt,
		UpdatedAt: post.UpdatedAt,
		Comments:  []CommentDTO{},
	}, nil
}

// ToggleLike 切换 user 对帖子的点赞状态，返回切换后的状态和点赞总数。
// 删除与插入都是单行条件写：删除命中说明原先已赞；插入因冲突落空说明
// 并发请求刚刚点过赞，此时重试删除，保证两次并发切换互相抵消。
func (s *PostService) ToggleLike(ctx context.Context, userID, postID uint) (bool, int64, error) {
	var (
		liked bool
		count int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensurePost(tx, postID); err != nil {
			return err
		}
		for {
			del := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&models.PostLike{})
			if del.Error != nil {
				return fmt.Errorf("delete like: %w", del.Error)
			}
			if del.RowsAffected > 0 {
				liked = false
				break
			}
			ins := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&models.PostLike{PostID: postID, UserID: userID})
			if ins.Error != nil {
				return fmt.Errorf("insert like: %w", ins.Error)
			}
			if ins.RowsAffected > 0 {
				liked = true
				break
			}
		}
		if err := tx.Model(&models.PostLike{}).Where("post_id = ?", postID).Count(&count).Error; err != nil {
			return fmt.Errorf("count likes: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	s.pub.Publish(ws.PostUpdate(ws.MessageLikeUpdate).WithPost(postID).WithLike(liked, count))
	return liked, count, nil
}

// AddComment 在帖子下追加评论。
func (s *PostService) AddComment(ctx context.Context, user *models.User, postID uint, content string) (*CommentDTO, error) {
	content, err := validateContent(content, MaxCommentLength)
	if err != nil {
		return nil, err
	}
	comment := models.Comment{PostID: postID, UserID: user.ID, Content: content}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensurePost(tx, postID); err != nil {
			return err
		}
		if err := tx.Create(&comment).Error; err != nil {
			return fmt.Errorf("create comment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	comment.User = *user
	s.pub.Publish(ws.PostUpdate(ws.MessageNewComment).WithPost(postID).WithComment(comment.ID))
	dto := toCommentDTO(comment)
	return &dto, nil
}

// Delete 只允许帖子作者删除，评论和点赞随帖子一并删除。
func (s *PostService) Delete(ctx context.Context, userID, postID uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.Select("id", "user_id").First(&post, postID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPostNotFound
			}
			return fmt.Errorf("lookup post: %w", err)
		}
		if post.UserID != userID {
			return ErrForbidden
		}
		if err := tx.Where("post_id = ?", postID).Delete(&models.Comment{}).Error; err != nil {
			return fmt.Errorf("delete comments: %w", err)
		}
		if err := tx.Where("post_id = ?", postID).Delete(&models.PostLike{}).Error; err != nil {
			return fmt.Errorf("delete likes: %w", err)
		}
		if err := tx.Delete(&models.Post{}, postID).Error; err != nil {
			return fmt.Errorf("delete post: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.pub.Publish(ws.PostUpdate(ws.MessagePostDeleted).WithPost(postID))
	return nil
}

// List 按创建时间倒序返回全部帖子；viewerID 为 0 表示匿名访问，is_liked 恒为 false。
func (s *PostService) List(ctx context.Context, viewerID uint) ([]PostDTO, error) {
	db := s.db.WithContext(ctx)
	var posts []models.Post
	err := db.Preload("User").
		Preload("Comments", func(q *gorm.DB) *gorm.DB { return q.Order("created_at asc, id asc") }).
		Preload("Comments.User").
		Order("created_at desc, id desc").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	type likeRow struct {
		PostID uint
		Count  int64
	}
	var rows []likeRow
	if err := db.Model(&models.PostLike{}).Select("post_id, count(*) as count").Group("post_id").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count likes: %w", err)
	}
	counts := make(map[uint]int64, len(rows))
	for _, r := range rows {
		counts[r.PostID] = r.Count
	}

	liked := make(map[uint]bool)
	if viewerID != 0 {
		var ids []uint
		if err := db.Model(&models.PostLike{}).Where("user_id = ?", viewerID).Pluck("post_id", &ids).Error; err != nil {
			return nil, fmt.Errorf("viewer likes: %w", err)
		}
		for _, id := range ids {
			liked[id] = true
		}
	}

	out := make([]PostDTO, 0, len(posts))
	for _, p := range posts {
		comments := make([]CommentDTO, 0, len(p.Comments))
		for _, c := range p.Comments {
			comments = append(comments, toCommentDTO(c))
		}
		out = append(out, PostDTO{
			ID:            p.ID,
			User:          NewUserDTO(p.User),
			Content:       p.Content,
			CreatedAt:     p.CreatedAt,
			UpdatedAt:     p.UpdatedAt,
			LikeCount:     counts[p.ID],
			IsLiked:       liked[p.ID],
			Comments:      comments,
			CommentsCount: len(comments),
		})
	}
	return out, nil
}

func ensurePost(tx *gorm.DB, postID uint) error {
	var n int64
	if err := tx.Model(&models.Post{}).Where("id = ?", postID).Count(&n).Error; err != nil {
		return fmt.Errorf("lookup post: %w", err)
	}
	if n == 0 {
		return ErrPostNotFound
	}
	return nil
}
