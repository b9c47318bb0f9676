package collector

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oapi-codegen/runtime"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"facecap/internal/logging"
)

// ErrorResponse はエラー応答
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// CaptureRequest は POST /capture のリクエストボディ
type CaptureRequest struct {
	Name        string `json:"name" binding:"required"`
	ID          string `json:"id" binding:"required"`
	Image       string `json:"image" binding:"required"`
	ImageNumber int    `json:"image_number" binding:"required,min=1"`
}

// CaptureResponse は保存結果
type CaptureResponse struct {
	Message  string  `json:"message"`
	Filepath string  `json:"filepath"`
	Folder   string  `json:"folder"`
	SizeKB   float64 `json:"size_kb"`
}

// ImageListResponse は被写体の画像一覧
type ImageListResponse struct {
	SubjectID string        `json:"subject_id"`
	Images    []ImageRecord `json:"images"`
}

// Handler は収集サーバーのエンドポイントを実装する
type Handler struct {
	store *Store
}

// NewRouter は収集サーバーのginエンジンを作成する
func NewRouter(store *Store, validator *RequestValidator) *gin.Engine {
	h := &Handler{store: store}

	r := gin.New()
	r.Use(gin.Recovery(), logging.GinLogger(), cors())
	if validator != nil {
		r.Use(validator.Middleware())
	}

	r.GET("/", h.Root)
	r.POST("/capture", h.Capture)
	r.GET("/api/subjects/:id/images", h.ListImages)
	r.GET("/api/manifest.parquet", h.Manifest)

	return r
}

// Root は稼働確認用のメッセージを返す
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "facecap 収集サーバーが稼働中です"})
}

// Capture は受信した画像を保存する
func (h *Handler) Capture(c *gin.Context) {
	var req CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	data, err := decodeImage(req.Image)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_image", err.Error())
		return
	}

	rec, err := h.store.Save(req.Name, req.ID, req.ImageNumber, data)
	if err != nil {
		log.Error().Err(err).Str("subject_id", req.ID).Int("image_number", req.ImageNumber).Msg("画像の保存に失敗しました")
		abortWithError(c, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}

	log.Info().
		Str("subject_id", req.ID).
		Str("subject_name", req.Name).
		Int("image_number", req.ImageNumber).
		Int64("size_bytes", rec.SizeBytes).
		Str("path", rec.Path).
		Msg("画像を保存しました")

	c.JSON(http.StatusOK, CaptureResponse{
		Message:  fmt.Sprintf("%s さんの画像 %d を保存しました", req.Name, req.ImageNumber),
		Filepath: rec.Path,
		Folder:   filepath.Dir(rec.Path),
		SizeKB:   math.Round(float64(rec.SizeBytes)/1024*100) / 100,
	})
}

// ListImages は被写体の保存済み画像を返す。
// クエリ from を指定すると、その番号以降の画像だけを返す
func (h *Handler) ListImages(c *gin.Context) {
	id := c.Param("id")

	var from *int
	if err := runtime.BindQueryParameter("form", true, false, "from", c.Request.URL.Query(), &from); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}
	if from != nil && *from < 1 {
		abortWithError(c, http.StatusBadRequest, "invalid_parameter", "from は1以上を指定してください")
		return
	}

	images, err := h.store.List(id)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}

	if from != nil {
		filtered := images[:0]
		for _, img := range images {
			if img.ImageNumber >= *from {
				filtered = append(filtered, img)
			}
		}
		images = filtered
	}

	c.JSON(http.StatusOK, ImageListResponse{SubjectID: id, Images: images})
}

// Manifest はデータセット全体のマニフェストをParquet形式で返す
func (h *Handler) Manifest(c *gin.Context) {
	var buf bytes.Buffer
	n, err := WriteManifest(&buf, h.store)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "manifest_error", err.Error())
		return
	}

	log.Debug().Int("rows", n).Msg("マニフェストを生成しました")
	c.Header("Content-Disposition", `attachment; filename="manifest.parquet"`)
	c.Data(http.StatusOK, "application/vnd.apache.parquet", buf.Bytes())
}

// decodeImage はデータURLの接頭辞を取り除いてbase64をデコードする
func decodeImage(image string) ([]byte, error) {
	if _, payload, ok := strings.Cut(image, "base64,"); ok {
		image = payload
	}

	data, err := base64.StdEncoding.DecodeString(image)
	if err != nil {
		return nil, errors.Wrap(err, "画像のbase64デコードに失敗")
	}
	if len(data) == 0 {
		return nil, errors.New("画像データが空です")
	}
	return data, nil
}

// cors は全てのオリジンを許可する
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
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
