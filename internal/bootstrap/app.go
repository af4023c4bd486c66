package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "team-meetings/internal/handler/http"
	wsHandler "team-meetings/internal/handler/websocket"
	"team-meetings/internal/hub"
	gormpersistence "team-meetings/internal/infra/persistence/gorm"
	"team-meetings/internal/infra/setup"
	redisstate "team-meetings/internal/infra/state/redis"
	"team-meetings/internal/middleware"
	"team-meetings/internal/repository"
	"team-meetings/internal/service"
	"team-meetings/internal/tasks"
	"team-meetings/internal/worker"
)

// App 包含应用的所有组件和配置
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	AsynqServer *worker.WorkerServer
	Scheduler   *asynq.Scheduler
	Hub         *hub.Hub
	HttpServer  *http.Server

	hubCtx    context.Context
	hubCancel context.CancelFunc
}

// Handlers 是路由需要的全部处理器
type Handlers struct {
	Auth      *httpHandler.AuthHandler
	Meeting   *httpHandler.MeetingHandler
	Project   *httpHandler.ProjectHandler
	WebSocket *wsHandler.WebSocketHandler
}

// NewLogger 根据配置创建 logrus Logger，生产环境使用 JSON 格式
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	if cfg.isProduction() {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)

	// 各个包直接使用 logrus 包级函数，保持同样的格式和级别
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(level)
	return log
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := NewLogger(cfg)
	log.WithFields(logrus.Fields{"env": cfg.AppEnv, "level": log.GetLevel().String()}).Info("Configuration loaded")

	// 3. 初始化基础设施
	db, err := setup.InitDB(cfg.DBOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.Info("Database initialized and migrated")

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)
	log.Info("Infrastructure initialized successfully")

	// 4. 初始化 Repositories
	userRepo := gormpersistence.NewGormUserRepository(db)
	roomRepo := gormpersistence.NewGormRoomRepository(db)
	projectRepo := gormpersistence.NewGormProjectRepository(db)
	messageRepo := gormpersistence.NewGormMessageRepository(db)
	stateRepo := redisstate.NewRedisStateRepository(redisClient, cfg.KeyPrefix)
	relayBroker := redisstate.NewRedisRelayBroker(redisClient, cfg.KeyPrefix)

	// 5. 初始化 Services
	authService, err := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpiryHours)
	if err != nil {
		return nil, fmt.Errorf("failed to create AuthService: %w", err)
	}
	roomService := service.NewRoomService(roomRepo, projectRepo)
	meetingService := service.NewMeetingService(roomRepo, stateRepo)
	messageService := service.NewMessageService(roomRepo, messageRepo, userRepo)
	projectService := service.NewProjectService(projectRepo, roomService, tasks.NewDispatcher(asynqClient))
	log.Info("Services initialized")

	// 6. 初始化 Hub
	hubInstance := hub.NewHub(
		hub.WithBroker(relayBroker),
		hub.WithPresence(stateRepo, cfg.PresenceInterval),
	)

	// 7. 初始化 Handlers 和路由
	handlers := Handlers{
		Auth:      httpHandler.NewAuthHandler(authService),
		Meeting:   httpHandler.NewMeetingHandler(roomService, meetingService, messageService),
		Project:   httpHandler.NewProjectHandler(projectService),
		WebSocket: wsHandler.NewWebSocketHandler(hubInstance, authService, cfg.AllowedOrigins),
	}
	if cfg.isProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := NewRouter(log, cfg, handlers, authService, stateRepo)

	// 8. 初始化 Worker Server 和周期任务
	workerServer := worker.NewWorkerServer(redisClientOpt, cfg.WorkerConcurrency, meetingService, messageService, log)
	scheduler, err := newScheduler(redisClientOpt, cfg)
	if err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &App{
		Config:      cfg,
		Log:         log,
		DB:          db,
		RedisClient: redisClient,
		AsynqClient: asynqClient,
		AsynqServer: workerServer,
		Scheduler:   scheduler,
		Hub:         hubInstance,
		HttpServer:  httpServer,
	}, nil
}

// NewRouter 注册中间件和所有路由
func NewRouter(log *logrus.Logger, cfg *Config, h Handlers, resolver middleware.TokenResolver, limiter repository.RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg.AllowedOrigins))

	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	// websocket 握手自己完成认证，token 可以放在查询参数中
	router.GET("/ws", h.WebSocket.HandleConnection)

	api := router.Group("/api")
	api.Use(middleware.RateLimit(limiter, cfg.RateLimitMax, cfg.RateLimitWindow))

	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/register", h.Auth.Register)
		authRoutes.POST("/login", h.Auth.Login)
	}

	authed := api.Group("", middleware.Auth(resolver))
	projects := authed.Group("/projects")
	{
		projects.POST("", h.Project.Create)
		projects.POST("/:projectId/members", h.Project.AddMember)
		projects.DELETE("/:projectId", h.Project.Delete)
	}
	meetings := authed.Group("/meetings")
	{
		meetings.GET("", h.Meeting.ListMeetings)
		meetings.POST("/join", h.Meeting.JoinByCode)
		meetings.GET("/:roomId", h.Meeting.GetMeeting)
		meetings.POST("/:roomId/start", h.Meeting.StartMeeting)
		meetings.POST("/:roomId/join-meeting", h.Meeting.JoinMeeting)
		meetings.POST("/:roomId/leave-meeting", h.Meeting.LeaveMeeting)
		meetings.POST("/:roomId/end", h.Meeting.EndMeeting)
		meetings.POST("/:roomId/messages", h.Meeting.PostMessage)
		meetings.GET("/:roomId/messages", h.Meeting.ListMessages)
		meetings.PUT("/:roomId/settings", h.Meeting.UpdateSettings)
		meetings.GET("/:roomId/history", h.Meeting.History)
		meetings.DELETE("/:roomId/members/:userId", h.Meeting.RemoveMember)
	}
	return router
}

// newScheduler 注册周期性的失联参与者清理任务，REAP_SCHEDULE 为空时不清理，返回 nil
func newScheduler(redisOpt asynq.RedisClientOpt, cfg *Config) (*asynq.Scheduler, error) {
	if strings.TrimSpace(cfg.ReapSchedule) == "" {
		logrus.Warn("REAP_SCHEDULE is empty, stale participant reaper disabled")
		return nil, nil
	}
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC})
	task, err := tasks.NewReapStaleTask(cfg.ReapGrace)
	if err != nil {
		return nil, fmt.Errorf("failed to build reap task: %w", err)
	}
	entryID, err := scheduler.Register(cfg.ReapSchedule, task, asynq.Queue(tasks.QueueDefault), asynq.MaxRetry(0))
	if err != nil {
		return nil, fmt.Errorf("failed to register reap task with schedule %q: %w", cfg.ReapSchedule, err)
	}
	logrus.WithFields(logrus.Fields{"schedule": cfg.ReapSchedule, "entry_id": entryID}).Info("Periodic reap task registered")
	return scheduler, nil
}

// Start 启动后台组件和 HTTP 服务器
func (a *App) Start() error {
	a.hubCtx, a.hubCancel = context.WithCancel(context.Background())
	if err := a.Hub.Start(a.hubCtx); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}

	go a.AsynqServer.Start()

	if a.Scheduler != nil {
		if err := a.Scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		a.Log.Info("Asynq scheduler started")
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
	return nil
}

// Shutdown 按 中继 -> worker -> scheduler -> HTTP -> asynq client -> Redis -> DB 的顺序关闭
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 关闭中继，断开所有 websocket 连接
	if a.Hub != nil {
		a.Hub.Stop()
		if a.hubCancel != nil {
			a.hubCancel()
		}
	}

	// 2. Worker 和 Scheduler
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}
	if a.Scheduler != nil {
		a.Scheduler.Shutdown()
	}

	// 3. HTTP 服务器
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 4. Asynq Client 和 Redis
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}

	// 5. 数据库连接池
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Log.Errorf("Error closing database connection: %v", err)
			}
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
		})
		if userID, ok := c.Get(middleware.ContextUserID); ok {
			entry = entry.WithField("user_id", userID)
		}

		if msg := c.Errors.ByType(gin.ErrorTypePrivate).String(); msg != "" {
			entry.Error(msg)
			return
		}
		switch {
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}

// CORSMiddleware 只对白名单中的来源回写 CORS 头
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && lo.Contains(allowedOrigins, origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
