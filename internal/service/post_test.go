package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"socialfeed/internal/models"
	"socialfeed/internal/ws"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, bob := f.register(t, "bob")

	post, err := f.posts.Create(ctx, bob, "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", post.Content)
	assert.Equal(t, "bob", post.User.Login)
	assert.Zero(t, post.LikeCount)
	assert.Empty(t, post.Comments)

	events := f.pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, ws.EventPostUpdate, events[0].Type)
	assert.Equal(t, ws.MessageNewPost, events[0].Message)
	require.NotNil(t, events[0].PostID)
	assert.Equal(t, post.ID, *events[0].PostID)
}

func TestCreatePost_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, bob := f.register(t, "bob")

	for _, content := range []string{"", "   ", strings.Repeat("я", MaxPostLength+1)} {
		_, err := f.posts.Create(ctx, bob, content)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "content", ve.Field)
	}

	_, err := f.posts.Create(ctx, bob, strings.Repeat("я", MaxPostLength))
	assert.NoError(t, err, "length is counted in characters, not bytes")
	assert.Len(t, f.pub.Events(), 1)
}

func TestToggleLike_Involutive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, bob := f.register(t, "bob")
	_, alice := f.register(t, "alice")
	post, err := f.posts.Create(ctx, bob, "hello")
	require.NoError(t, err)

	liked, count, err := f.posts.ToggleLike(ctx, alice.ID, post.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, int64(1), count)

	liked, count, err = f.posts.ToggleLike(ctx, bob.ID, post.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, int64(2), count)

	liked, count, err = f.posts.ToggleLike(ctx, alice.ID, post.ID)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Equal(t, int64(1), count)

	events := f.pub.Events()
	last := events[len(events)-1]
	assert.Equal(t, ws.MessageLikeUpdate, last.Message)
	require.NotNil(t, last.Liked)
	require.NotNil(t, last.LikeCount)
	assert.False(t, *last.Liked)
	assert.Equal(t, int64(1), *last.LikeCount)
}

func TestToggleLike_UnknownPost(t *testing.T) {
	f := newFixture(t)
	_, bob := f.register(t, "bob")

	_, _, err := f.posts.ToggleLike(context.Background(), bob.ID, 999)
	assert.ErrorIs(t, err, ErrPostNotFound)
	assert.Empty(t, f.pub.Events())
}

func TestToggleLike_ConcurrentTogglesCancelOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, bob := f.register(t, "bob")
	post, err := f.posts.Create(ctx, bob, "hello")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]bool, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = f.posts.ToggleLike(ctx, bob.ID, post.ID)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.NotEqual(t, results[0], results[1], "exactly one toggle must win")

	var n int64
	require.NoError(t, f.db.Model(&models.PostLike{}).Where("post_id = ?", post.ID).Count(&n).Error)
	assert.Zero(t, n)
}

func TestAddComment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, bob := f.register(t, "bob")
	_, alice := f.register(t, "alice")
	post, err := f.posts.Create(ctx, bob, "hello")
	require.NoError(t, err)

	c, err := f.posts.AddComment(ctx, alice, post.ID, "nice")
	require.NoError(t, err)
	assert.Equal(t, "nice", c.Content)
	assert.Equal(t, "alice", c.User.Login)

	events := f.pub.Events()
	last := events[len(events)-1]
	assert.Equal(t, ws.MessageNewComment, last.Message)
	require.NotNil(t, last.CommentID)
	assert.Equal(t, c.ID, *last.CommentID)

	_, err = f.posts.AddComment(ctx, alice, 999, "nice")
	assert.ErrorIs(t, err, ErrPostNotFound)

	_, err = f.posts.AddComment(ctx, alice, post.ID, strings.Repeat("x", MaxCommentLength+1))
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	var n int64
	require.NoError(t, f.db.Model(&models.Comment{}).Count(&n).Error)
	assert.Equal(t, int64(1), n, "failed calls leave no partial state")
}

func TestListPosts_Ordering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, bob := f.register(t, "bob")
	_, alice := f.register(t, "alice")

	var ids []uint
	for _, text := range []string{"first", "second", "third"} {
		p, err := f.posts.Create(ctx, bob, text)
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}
	for _, text := range []string{"c1", "c2", "c3"} {
		_, err := f.posts.AddComment(ctx, alice, ids[0], text)
		require.NoError(t, err)
	}
	_, _, err := f.posts.ToggleLike(ctx, alice.ID, ids[0])
	require.NoError(t, err)

	posts, err := f.posts.List(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, []string{"third", "second", "first"},
		[]string{posts[0].Content, posts[1].Content, posts[2].Content})
	for i := 1; i < len(posts); i++ {
		assert.False(t, posts[i].CreatedAt.After(posts[i-1].CreatedAt))
	}

	first := posts[2]
	assert.Equal(t, int64(1), first.LikeCount)
	assert.True(t, first.IsLiked)
	assert.Equal(t, 3, first.CommentsCount)
	require.Len(t, first.Comments, 3)
	assert.Equal(t, "c1", first.Comments[0].Content)
	assert.Equal(t, "c3", first.Comments[2].Content)
	for i := 1; i < len(first.Comments); i++ {
		assert.False(t, first.Comments[i].CreatedAt.Before(first.Comments[i-1].CreatedAt))
	}
	assert.False(t, posts[0].IsLiked)
	assert.NotNil(t, posts[0].Comments)

	anon, err := f.posts.List(ctx, 0)
	require.NoError(t, err)
	for _, p := range anon {
		assert.False(t, p.IsLiked)
	}
	assert.Equal(t, int64(1), anon[2].LikeCount)
}

func TestDeletePost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, bob := f.register(t, "bob")
	_, alice := f.register(t, "alice")
	post, err := f.posts.Create(ctx, bob, "hello")
	require.NoError(t, err)
	_, err = f.posts.AddComment(ctx, alice, post.ID, "hi")
	require.NoError(t, err)
	_, _, err = f.posts.ToggleLike(ctx, alice.ID, post.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.posts.Delete(ctx, alice.ID, post.ID), ErrForbidden)
	assert.ErrorIs(t, f.posts.Delete(ctx, bob.ID, 999), ErrPostNotFound)
	require.NoError(t, f.posts.Delete(ctx, bob.ID, post.ID))

	var comments, likes int64
	require.NoError(t, f.db.Model(&models.Comment{}).Count(&comments).Error)
	require.NoError(t, f.db.Model(&models.PostLike{}).Count(&likes).Error)
	assert.Zero(t, comments)
	assert.Zero(t, likes)

	posts, err := f.posts.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, posts)

	events := f.pub.Events()
	assert.Equal(t, ws.MessagePostDeleted, events[len(events)-1].Message)
}
