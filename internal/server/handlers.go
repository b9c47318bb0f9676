package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"facecap/internal/capture"
	"facecap/internal/config"
	"facecap/internal/session"
)

// previewInterval はプレビューの更新間隔
const previewInterval = 66 * time.Millisecond

// SessionController はHTTPから操作する撮影セッション
type SessionController interface {
	Snapshot() session.State
	SetIdentity(name, id string) error
	StartCamera(ctx context.Context) error
	RequestCapture(ctx context.Context) bool
	StopCamera(ctx context.Context) *session.Summary
	Preview() (capture.JPEGSource, bool)
}

// ErrorResponse はエラー応答
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionResponse はセッションの状態
type SessionResponse struct {
	session.State
	Phase session.Phase `json:"phase"`
}

// StopResponse は停止結果
type StopResponse struct {
	Session SessionResponse  `json:"session"`
	Summary *session.Summary `json:"summary"`
}

// IdentityRequest は名前・IDの設定
type IdentityRequest struct {
	Name string `json:"name" binding:"max=200"`
	ID   string `json:"id" binding:"max=200"`
}

// FacecapHandler は撮影端末のエンドポイントを実装する
type FacecapHandler struct {
	config  *config.Config
	session SessionController
	events  *EventBroker
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *FacecapHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// GetStatus はシステム状態取得エンドポイントの実装
func (h *FacecapHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "running",
		"server": gin.H{
			"host": h.config.Server.Host,
			"port": h.config.Server.Port,
		},
		"camera": gin.H{
			"source": h.config.Camera.Source,
			"device": h.config.Camera.Device,
		},
		"collector":   h.config.Collector.URL,
		"phase":       h.session.Snapshot().Phase(),
		"subscribers": h.events.Subscribers(),
		"timestamp":   time.Now(),
	})
}

// GetSession は現在のセッション状態を返す
func (h *FacecapHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, newSessionResponse(h.session.Snapshot()))
}

// PutIdentity は名前・IDを設定する
func (h *FacecapHandler) PutIdentity(c *gin.Context) {
	var req IdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := h.session.SetIdentity(req.Name, req.ID); err != nil {
		abortWithSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(h.session.Snapshot()))
}

// StartCamera はカメラを開始する。準備完了はイベントではなくセッション状態で確認する
func (h *FacecapHandler) StartCamera(c *gin.Context) {
	if err := h.session.StartCamera(c.Request.Context()); err != nil {
		abortWithSessionError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, newSessionResponse(h.session.Snapshot()))
}

// RequestCapture は撮影を1件開始する
func (h *FacecapHandler) RequestCapture(c *gin.Context) {
	if !h.session.RequestCapture(c.Request.Context()) {
		abortWithError(c, http.StatusConflict, "capture_rejected", "カメラの準備ができていないか撮影中です")
		return
	}
	c.JSON(http.StatusAccepted, newSessionResponse(h.session.Snapshot()))
}

// StopCamera はカメラを停止してセッションを終了する
func (h *FacecapHandler) StopCamera(c *gin.Context) {
	summary := h.session.StopCamera(c.Request.Context())
	c.JSON(http.StatusOK, StopResponse{
		Session: newSessionResponse(h.session.Snapshot()),
		Summary: summary,
	})
}

// GetPreview はMJPEGのライブプレビューを配信する
func (h *FacecapHandler) GetPreview(c *gin.Context) {
	if _, ok := h.session.Preview(); !ok {
		abortWithError(c, http.StatusServiceUnavailable, "camera_not_ready", "カメラの準備ができていません")
		return
	}
	h.streamMJPEG(c)
}

// GetEvents はセッションの通知をSSEで配信する
func (h *FacecapHandler) GetEvents(c *gin.Context) {
	events, unsubscribe := h.events.Subscribe()
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.SSEvent("session", newSessionResponse(h.session.Snapshot()))
	c.Writer.Flush()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case e := <-events:
			c.SSEvent(string(e.Type), e)
			return true
		}
	})
}

// streamMJPEG はMJPEGストリームを配信する。カメラが停止したら終了する
func (h *FacecapHandler) streamMJPEG(c *gin.Context) {
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	ticker := time.NewTicker(previewInterval)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()
	var last []byte

	for {
		src, ok := h.session.Preview()
		if !ok {
			return
		}

		if frame, ok := src.LatestJPEG(); ok && !bytes.Equal(frame, last) {
			if err := writeMJPEGFrame(writer, frame); err != nil {
				return
			}
			flusher.Flush()
			last = frame
		}

		select {
		case <-clientGone:
			return
		case <-ticker.C:
		}
	}
}

// writeMJPEGFrame はマルチパートの1フレームを書き込む
func writeMJPEGFrame(w io.Writer, frame []byte) error {
	if _, err := io.WriteString(w, "--frame\r\nContent-Type: image/jpeg\r\n\r\n"); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// GetIndex は埋め込みのUIを返す
func (h *FacecapHandler) GetIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", getIndexHTML())
}

func newSessionResponse(s session.State) SessionResponse {
	return SessionResponse{State: s, Phase: s.Phase()}
}

// abortWithSessionError はセッション操作のエラーをHTTPステータスに変換する
func abortWithSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrIdentityRequired):
		abortWithError(c, http.StatusBadRequest, "identity_required", err.Error())
	case errors.Is(err, session.ErrIdentityLocked):
		abortWithError(c, http.StatusConflict, "identity_locked", err.Error())
	case errors.Is(err, session.ErrCameraActive):
		abortWithError(c, http.StatusConflict, "camera_active", err.Error())
	default:
		abortWithError(c, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// abortWithError はエラー応答を返して処理を中断する
func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	})
}
