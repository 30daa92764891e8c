package server

import (
	"socialfeed/internal/clock"
	"socialfeed/internal/config"
	"socialfeed/internal/metrics"
	"socialfeed/internal/mw"
	"socialfeed/internal/service"
	"socialfeed/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Deps 是路由需要的运行时依赖，由 main 负责创建和关闭。
type Deps struct {
	DB      *gorm.DB
	Hub     *ws.Hub
	Clock   clock.Clock
	Limiter *mw.Throttle
}

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, deps Deps) *gin.Engine {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	tokens := service.NewTokenService(deps.DB)
	guard := service.NewRegistrationGuard(deps.DB, clk, cfg.RegistrationWindow, cfg.RegistrationLimit)
	h := NewHandler(
		service.NewUserService(deps.DB, tokens, guard, cfg.PasswordLength),
		tokens,
		service.NewPostService(deps.DB, deps.Hub),
		deps.Hub,
	)

	r := gin.New()
	r.Use(gin.CustomRecovery(recovered))
	r.Use(mw.AccessLog())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	if deps.Limiter != nil {
		r.Use(deps.Limiter.Middleware())
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/register", h.Register)
	r.POST("/check-login", h.CheckLogin)
	r.POST("/login", h.Login)
	r.POST("/verify-token", h.VerifyToken)
	r.POST("/change-password", h.ChangePassword)

	r.GET("/posts", h.ListPosts)
	posts := r.Group("/posts")
	posts.POST("/create", h.CreatePost)
	posts.POST("/like", h.LikePost)
	posts.POST("/comment", h.CommentPost)
	posts.POST("/delete", h.DeletePost)

	r.GET("/ws/posts", ws.Serve(deps.Hub))
	return r
}
