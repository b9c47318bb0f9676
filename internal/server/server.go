package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"facecap/internal/config"
	"facecap/internal/logging"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間
const shutdownTimeout = 5 * time.Second

// Server は撮影端末のHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	httpServer *http.Server
	engine     *gin.Engine
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, sess SessionController, events *EventBroker) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), logging.GinLogger())

	s := &Server{
		config: cfg,
		engine: engine,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
	s.setupRoutes(&FacecapHandler{config: cfg, session: sess, events: events})
	return s
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes(h *FacecapHandler) {
	s.engine.GET("/", h.GetIndex)
	s.engine.GET("/health", h.HealthCheck)

	api := s.engine.Group("/api")
	api.GET("/status", h.GetStatus)

	sess := api.Group("/session")
	sess.GET("", h.GetSession)
	sess.PUT("/identity", h.PutIdentity)
	sess.POST("/start", h.StartCamera)
	sess.POST("/capture", h.RequestCapture)
	sess.POST("/stop", h.StopCamera)
	sess.GET("/preview", h.GetPreview)
	sess.GET("/events", h.GetEvents)
}

// Handler はルーティング済みのハンドラーを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start はサーバーを起動し、ctx がキャンセルされるとシャットダウンする
func (s *Server) Start(ctx context.Context) error {
	return Serve(ctx, s.httpServer)
}

// Serve は srv を起動し、ctx がキャンセルされるとグレースフルにシャットダウンする
func Serve(ctx context.Context, srv *http.Server) error {
	addr := srv.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "サーバーの起動に失敗")
	}
	return serveListener(ctx, srv, ln)
}

// serveListener は ln で srv を起動する。
// シャットダウン開始時にリクエストのコンテキストをキャンセルし、SSEやMJPEGの配信を終わらせる
func serveListener(ctx context.Context, srv *http.Server, ln net.Listener) error {
	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()
	srv.BaseContext = func(net.Listener) context.Context { return baseCtx }
	srv.RegisterOnShutdown(cancelBase)

	errCh := make(chan error, 1)

	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("HTTPサーバーを起動しています")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- errors.Wrap(err, "サーバーの起動に失敗")
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("シャットダウン要求を受信しました")
	case err := <-errCh:
		return err
	}

	return shutdown(srv)
}

// shutdown はサーバーをグレースフルにシャットダウンする
func shutdown(srv *http.Server) error {
	log.Info().Msg("サーバーをシャットダウンしています...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "サーバーのシャットダウンに失敗")
	}

	log.Info().Msg("サーバーが正常にシャットダウンされました")
	return nil
}
