package collector

import (
	"context"
	_ "embed"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

//go:embed openapi.yaml
var openAPIDocument []byte

// LoadOpenAPI は埋め込みのOpenAPI定義を読み込んで検証する
func LoadOpenAPI(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(openAPIDocument)
	if err != nil {
		return nil, errors.Wrap(err, "OpenAPI定義の読み込みに失敗")
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, errors.Wrap(err, "OpenAPI定義が不正です")
	}
	return doc, nil
}

// RequestValidator はリクエストをOpenAPI定義に照らして検証する
type RequestValidator struct {
	router routers.Router
}

// NewRequestValidator は新しいRequestValidatorを作成する
func NewRequestValidator(doc *openapi3.T) (*RequestValidator, error) {
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, errors.Wrap(err, "OpenAPIルーターの作成に失敗")
	}
	return &RequestValidator{router: router}, nil
}

// Validate はリクエストを検証する。定義にないパスやメソッドは検証対象外として nil を返す
func (v *RequestValidator) Validate(r *http.Request) error {
	route, pathParams, err := v.router.FindRoute(r)
	if errors.Is(err, routers.ErrPathNotFound) || errors.Is(err, routers.ErrMethodNotAllowed) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "ルートの解決に失敗")
	}

	input := &openapi3filter.RequestValidationInput{
		Request:    r,
		PathParams: pathParams,
		Route:      route,
	}
	return openapi3filter.ValidateRequest(r.Context(), input)
}

// Middleware は検証に失敗したリクエストを400で拒否するginミドルウェアを返す
func (v *RequestValidator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := v.Validate(c.Request); err != nil {
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("リクエストの検証に失敗しました")
			abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		c.Next()
	}
}
