package models

import "time"

type User struct {
	ID           uint      `gorm:"primaryKey"`
	Login        string    `gorm:"uniqueIndex;size:30;not null"`
	PasswordHash string    `gorm:"size:128;not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

// AuthToken 是不透明的会话 token，一个用户可同时持有多个。
type AuthToken struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"index;not null"`
	User      User   `gorm:"constraint:OnDelete:CASCADE"`
	Token     string `gorm:"uniqueIndex;size:64;not null"`
	CreatedAt time.Time
}

// RegistrationAttempt 只追加，用于按来源地址统计注册频率。
type RegistrationAttempt struct {
	ID          uint      `gorm:"primaryKey"`
	IPAddress   string    `gorm:"index:idx_attempt_ip_time,priority:1;size:64;not null"`
	AttemptedAt time.Time `gorm:"index:idx_attempt_ip_time,priority:2;not null"`
}

type Post struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	User      User      `gorm:"constraint:OnDelete:CASCADE"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
	Comments  []Comment  `gorm:"constraint:OnDelete:CASCADE"`
	Likes     []PostLike `gorm:"constraint:OnDelete:CASCADE"`
}

// PostLike 的联合主键保证同一用户对同一帖子最多一条点赞。
type PostLike struct {
	PostID    uint `gorm:"primaryKey"`
	UserID    uint `gorm:"primaryKey;index"`
	CreatedAt time.Time
}

type Comment struct {
	ID        uint   `gorm:"primaryKey"`
	PostID    uint   `gorm:"index:idx_comment_post;not null"`
	UserID    uint   `gorm:"index;not null"`
	User      User   `gorm:"constraint:OnDelete:CASCADE"`
	Content   string `gorm:"type:text;not null"`
	CreatedAt time.Time
}
