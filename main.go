package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carlos-grullon/classnet-ws-server/auth"
	"github.com/carlos-grullon/classnet-ws-server/domain"
	"github.com/carlos-grullon/classnet-ws-server/protocol"
	"github.com/carlos-grullon/classnet-ws-server/registry"
	"github.com/carlos-grullon/classnet-ws-server/relay"
	ws "github.com/carlos-grullon/classnet-ws-server/websocket"
)

type config struct {
	port           string
	socketKey      string
	allowedOrigins []string
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}
	setupLogger()

	cfg := loadConfig()
	if cfg.socketKey == "" {
		slog.Error("SOCKET_KEY is required")
		os.Exit(1)
	}

	gin.SetMode(gin.ReleaseMode)
	router, _ := newEngine(cfg)

	server := &http.Server{
		Addr:    ":" + cfg.port,
		Handler: router,
	}

	go func() {
		slog.Info("server starting", "port", cfg.port)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func newEngine(cfg config) (*gin.Engine, *registry.Registry) {
	reg := registry.New()
	authn := auth.New(cfg.socketKey, reg)
	handler := protocol.NewHandler(reg)
	bridge := relay.New(authn, reg)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.allowedOrigins),
	}

	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware(cfg.allowedOrigins))

	router.GET("/ws", wsHandler(upgrader, authn, reg, handler))
	router.POST("/emit", bridge.Emit)
	router.GET("/health", bridge.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router, reg
}

func loadConfig() config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	var origins []string
	for _, o := range strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return config{
		port:           port,
		socketKey:      os.Getenv("SOCKET_KEY"),
		allowedOrigins: origins,
	}
}

func setupLogger() {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

// originChecker allows every origin when the list is empty (dev mode).
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

func corsMiddleware(allowed []string) gin.HandlerFunc {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (len(allowed) == 0 || set["*"] || set[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Headers", "Content-Type, x-internal-key")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func wsHandler(upgrader websocket.Upgrader, authn *auth.Authenticator, reg *registry.Registry, handler *protocol.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("userId")
		socketKey := c.Query("socketKey")

		if err := authn.Check(userID, socketKey); err != nil {
			status := http.StatusForbidden
			if errors.Is(err, domain.ErrMissingIdentity) {
				status = http.StatusBadRequest
			}
			slog.Warn("handshake rejected", "userId", userID, "error", err)
			c.JSON(status, gin.H{"success": false, "error": err.Error()})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("upgrade error", "error", err)
			return
		}

		wsConn := ws.NewConn(uuid.New().String(), userID, conn, reg, handler)
		if err := authn.Admit(wsConn); err != nil {
			slog.Error("admission failed", "userId", userID, "error", err)
			reg.Remove(wsConn)
			conn.Close()
			return
		}
		wsConn.Start()
	}
}
