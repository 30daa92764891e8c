package service

import (
	"time"

	"socialfeed/internal/models"
)

// UserDTO 是对外输出的用户数据，不包含密码哈希。
type UserDTO struct {
	ID        uint      `json:"id"`
	Login     string    `json:"login"`
	CreatedAt time.Time `json:"created_at"`
}

type CommentDTO struct {
	ID        uint      `json:"id"`
	User      UserDTO   `json:"user"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// PostDTO 附带点赞数、当前用户是否点赞以及按时间升序的评论。
type PostDTO struct {
	ID            uint         `json:"id"`
	User          UserDTO      `json:"user"`
	Content       string       `json:"content"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	LikeCount     int64        `json:"like_count"`
	IsLiked       bool         `json:"is_liked"`
	Comments      []CommentDTO `json:"comments"`
	CommentsCount int          `json:"comments_count"`
}

// NewUserDTO 把用户实体转换为对外输出格式。
func NewUserDTO(u models.User) UserDTO {
	return UserDTO{ID: u.ID, Login: u.Login, CreatedAt: u.CreatedAt}
}

func toCommentDTO(c models.Comment) CommentDTO {
	return CommentDTO{ID: c.ID, User: NewUserDTO(c.User), Content: c.Content, CreatedAt: c.CreatedAt}
}
