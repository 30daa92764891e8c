package server

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"socialfeed/internal/metrics"
	"socialfeed/internal/mw"
	"socialfeed/internal/service"
	"socialfeed/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	userSvc  *service.UserService
	tokenSvc *service.TokenService
	postSvc  *service.PostService
	hub      *ws.Hub
}

func NewHandler(userSvc *service.UserService, tokenSvc *service.TokenService, postSvc *service.PostService, hub *ws.Hub) *Handler {
	return &Handler{userSvc: userSvc, tokenSvc: tokenSvc, postSvc: postSvc, hub: hub}
}

// postID 兼容数字和数字字符串两种写法。
type postID uint

func (p *postID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil || v == 0 {
		return errors.New("a valid integer is required")
	}
	*p = postID(v)
	return nil
}

var errInternal = gin.H{"error": "internal server error"}

func fieldError(field, msg string) gin.H {
	return gin.H{field: []string{msg}}
}

// bind 解析 JSON 请求体，失败时直接写回 400。
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return false
	}
	return true
}

// fail 把业务错误映射为状态码，未知错误只记录日志并返回通用 500。
func fail(c *gin.Context, op string, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, fieldError(verr.Field, verr.Message))
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	case errors.Is(err, service.ErrPostNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, service.ErrRateLimited):
		metrics.RegistrationsRejected.Inc()
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many registration attempts, try again later"})
	case errors.Is(err, service.ErrLoginTaken):
		c.JSON(http.StatusConflict, fieldError("login", "user with this login already exists"))
	default:
		log.Error().Err(err).Str("op", op).Str("path", c.Request.URL.Path).Msg("internal error")
		c.JSON(http.StatusInternalServerError, errInternal)
	}
}

// Register 处理注册请求，密码由服务端生成并只返回这一次。
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Login string `json:"login"`
	}
	if !bind(c, &req) {
		return
	}
	res, err := h.userSvc.Register(c.Request.Context(), mw.ClientIP(c.Request), req.Login)
	if err != nil {
		fail(c, "register", err)
		return
	}
	log.Info().Uint("user_id", res.User.ID).Str("login", res.User.Login).Msg("user registered")
	c.JSON(http.StatusCreated, gin.H{
		"message":            "user registered",
		"user":               res.User,
		"token":              res.Token,
		"generated_password": res.GeneratedPassword,
	})
}

func (h *Handler) CheckLogin(c *gin.Context) {
	var req struct {
		Login string `json:"login"`
	}
	if !bind(c, &req) {
		return
	}
	login, exists, err := h.userSvc.CheckLogin(c.Request.Context(), req.Login)
	if err != nil {
		fail(c, "check login", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists, "login": login})
}

// Login 每次成功登录都会签发一个新 token，旧 token 不受影响。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}
	if !bind(c, &req) {
		return
	}
	res, err := h.userSvc.Login(c.Request.Context(), req.Login, req.Password)
	if err != nil {
		fail(c, "login", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful", "user": res.User, "token": res.Token})
}

func (h *Handler) VerifyToken(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	if !bind(c, &req) {
		return
	}
	user, err := h.tokenSvc.Validate(c.Request.Context(), req.Token)
	if errors.Is(err, service.ErrUnauthorized) {
		c.JSON(http.StatusUnauthorized, gin.H{"valid": false})
		return
	}
	if err != nil {
		fail(c, "verify token", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "user": service.NewUserDTO(*user)})
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if !bind(c, &req) {
		return
	}
	if err := h.userSvc.ChangePassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		fail(c, "change password", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

// ListPosts 的 token 可选，无效 token 按匿名访问处理。
func (h *Handler) ListPosts(c *gin.Context) {
	ctx := c.Request.Context()
	var viewerID uint
	if token := c.Query("token"); token != "" {
		user, err := h.tokenSvc.Validate(ctx, token)
		switch {
		case err == nil:
			viewerID = user.ID
		case !errors.Is(err, service.ErrUnauthorized):
			fail(c, "list posts", err)
			return
		}
	}
	posts, err := h.postSvc.List(ctx, viewerID)
	if err != nil {
		fail(c, "list posts", err)
		return
	}
	c.JSON(http.StatusOK, posts)
}

func (h *Handler) CreatePost(c *gin.Context) {
	var req struct {
		Token   string `json:"token"`
		Content string `json:"content"`
	}
	if !bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	user, err := h.tokenSvc.Validate(ctx, req.Token)
	if err != nil {
		fail(c, "create post", err)
		return
	}
	post, err := h.postSvc.Create(ctx, user, req.Content)
	if err != nil {
		fail(c, "create post", err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

type postRequest struct {
	Token  string `json:"token"`
	PostID postID `json:"post_id"`
}

// check 只校验 post_id；缺失的 token 交给 TokenService.Validate 按未认证处理。
func (r postRequest) check(c *gin.Context) bool {
	if r.PostID == 0 {
		c.JSON(http.StatusBadRequest, fieldError("post_id", "this field is required"))
		return false
	}
	return true
}

// LikePost 切换点赞状态；无法识别的 token 与不存在的帖子一样返回 404。
func (h *Handler) LikePost(c *gin.Context) {
	var req postRequest
	if !bind(c, &req) || !req.check(c) {
		return
	}
	ctx := c.Request.Context()
	user, err := h.tokenSvc.Validate(ctx, req.Token)
	if errors.Is(err, service.ErrUnauthorized) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		fail(c, "like post", err)
		return
	}
	liked, count, err := h.postSvc.ToggleLike(ctx, user.ID, uint(req.PostID))
	if err != nil {
		fail(c, "like post", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": liked, "like_count": count})
}

func (h *Handler) CommentPost(c *gin.Context) {
	var req struct {
		postRequest
		Content string `json:"content"`
	}
	if !bind(c, &req) || !req.check(c) {
		return
	}
	ctx := c.Request.Context()
	user, err := h.tokenSvc.Validate(ctx, req.Token)
	if err != nil {
		fail(c, "comment post", err)
		return
	}
	comment, err := h.postSvc.AddComment(ctx, user, uint(req.PostID), req.Content)
	if err != nil {
		fail(c, "comment post", err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *Handler) DeletePost(c *gin.Context) {
	var req postRequest
	if !bind(c, &req) || !req.check(c) {
		return
	}
	ctx := c.Request.Context()
	user, err := h.tokenSvc.Validate(ctx, req.Token)
	if err != nil {
		fail(c, "delete post", err)
		return
	}
	if err := h.postSvc.Delete(ctx, user.ID, uint(req.PostID)); err != nil {
		fail(c, "delete post", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "post deleted"})
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "online": h.hub.Online()})
}

// recovered 是 panic 兜底，响应体与普通内部错误一致。
func recovered(c *gin.Context, rec any) {
	log.Error().Interface("panic", rec).Str("path", c.Request.URL.Path).Msg("panic recovered")
	c.AbortWithStatusJSON(http.StatusInternalServerError, errInternal)
}
