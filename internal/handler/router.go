package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/readlater/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string
	CSRF              middleware.CSRFConfig

	// 公開エンドポイント
	DB             Pinger
	MetricsHandler http.Handler

	// サービス
	EntryService  EntryServiceInterface
	TagService    TagServiceInterface
	ImportService ImportServiceInterface
	Backlog       BacklogProcessorInterface
	MaxUploadSize int64
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS → Session → CSRF → RateLimit(General)
//
// 記事の追加とインポートにはさらにRateLimit(Ingest)を適用する。
// /health と /metrics はセッション不要。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	entryHandler := NewEntryHandler(deps.EntryService)
	tagHandler := NewTagHandler(deps.TagService)
	importHandler := NewImportHandler(deps.ImportService, deps.Backlog, deps.MaxUploadSize)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.DB))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		ingest := deps.RateLimiter.IngestMiddleware()

		r.Route("/api/entries", func(r chi.Router) {
			r.With(ingest).Post("/", entryHandler.Add)
			r.Post("/archive", entryHandler.ArchiveAll)
			r.Get("/export", entryHandler.Export)

			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", entryHandler.Delete)
				r.Post("/favorite", entryHandler.ToggleFavorite)
				r.Post("/archive", entryHandler.ToggleArchive)
				r.Post("/tags", tagHandler.ApplyTags)
				r.Delete("/tags/{tagID}", tagHandler.RemoveTag)
			})
		})

		r.Post("/api/tags/search", tagHandler.TagSearchResults)

		r.Route("/api/import", func(r chi.Router) {
			r.Use(ingest)
			r.Post("/", importHandler.Upload)
			r.Post("/next", importHandler.Next)
		})
	})

	return r
}
