package router

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	emblemhandler "emblem_backend/internal/feature/emblem/transport/handler"
	platformhandler "emblem_backend/internal/platform/http/handler"
	jwtmw "emblem_backend/internal/platform/jwt"
)

// Options はルーターの構成です。
type Options struct {
	// JWTSecret が空の場合、/v1 は認証なしで公開します。
	JWTSecret string
	// ReadyChecks は /readyz で確認する依存先です。
	ReadyChecks map[string]platformhandler.Check
	// CORSOrigins が空でない場合、ブラウザからのアクセスを許可します。
	CORSOrigins []string
}

// ParseOrigins はカンマ区切りのオリジン一覧を分割します。
func ParseOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func NewRouter(emblem *emblemhandler.EmblemHandler, opts Options) *gin.Engine {
	r := gin.Default()
	r.MaxMultipartMemory = emblemhandler.MaxUploadBytes

	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  opts.CORSOrigins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Authorization", "Content-Type"},
			ExposeHeaders: []string{"Content-Length"},
			MaxAge:        12 * time.Hour,
		}))
	}

	// 認証不要
	// 導通確認用
	r.GET("/healthz", platformhandler.Health)
	r.HEAD("/healthz", platformhandler.Health)
	r.GET("/readyz", platformhandler.Ready(opts.ReadyChecks))

	v1 := r.Group("/v1")
	if opts.JWTSecret != "" {
		// リクエストヘッダーに Bearer トークンが必要になる
		v1.Use(jwtmw.AuthRequired(opts.JWTSecret))
	}
	{
		v1.POST("/emblem/detect", emblem.Detect)
		v1.POST("/emblem/scrape", emblem.Scrape)
		v1.GET("/emblem/sessions/:id", emblem.GetSession)
	}

	return r
}
