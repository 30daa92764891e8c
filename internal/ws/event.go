package ws

// EventPostUpdate 是广播给客户端的唯一事件类型。
const EventPostUpdate = "post_update"

// 事件 message 取值，对应不同的内容变更。
const (
	MessageNewPost     = "new_post"
	MessageNewComment  = "new_comment"
	MessageLikeUpdate  = "like_update"
	MessagePostDeleted = "post_deleted"
)

// Event 只在广播途中存在，不落库。可选字段在不适用时省略。
type Event struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	PostID    *uint  `json:"post_id,omitempty"`
	CommentID *uint  `json:"comment_id,omitempty"`
	Liked     *bool  `json:"liked,omitempty"`
	LikeCount *int64 `json:"like_count,omitempty"`
}

// PostUpdate 构造一条 post_update 事件。
func PostUpdate(message string) Event {
	return Event{Type: EventPostUpdate, Message: message}
}

func (e Event) WithPost(id uint) Event {
	e.PostID = &id
	return e
}

func (e Event) WithComment(id uint) Event {
	e.CommentID = &id
	return e
}

func (e Event) WithLike(liked bool, count int64) Event {
	e.Liked = &liked
	e.LikeCount = &count
	return e
}
