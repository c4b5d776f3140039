package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/thale-stt/thale/internal/config"
	"github.com/thale-stt/thale/internal/jobs"
	"github.com/thale-stt/thale/internal/metrics"
	"github.com/thale-stt/thale/internal/recording"
	"github.com/thale-stt/thale/internal/summarize"
	"github.com/thale-stt/thale/internal/transcribe"
	"github.com/thale-stt/thale/internal/whisper"
)

// Version is reported by / and /api/health.
var Version = "0.1.0"

// Models is the subset of the model manager the API needs.
type Models interface {
	EnsureLoaded(ctx context.Context) (whisper.Engine, error)
	Unload(ctx context.Context) error
	Status() whisper.Status
}

// Summarizer produces summaries of transcripts.
type Summarizer interface {
	Available() bool
	Summarize(ctx context.Context, req summarize.Request) (summarize.Result, error)
}

// Deps wires the API to the rest of the service. Recordings, Metrics,
// Gatherer and Live may be nil.
type Deps struct {
	Config       config.Config
	Models       Models
	Orchestrator *transcribe.Orchestrator
	Decoder      transcribe.Decoder
	Jobs         *jobs.Store
	Summarizer   Summarizer
	Recordings   *recording.Store
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	Live         http.Handler
	GPUAvailable func() bool
}

type Service struct {
	deps   Deps
	router *gin.Engine
	server *http.Server
}

func NewService(deps Deps) *Service {
	if deps.GPUAvailable == nil {
		deps.GPUAvailable = whisper.CUDAAvailable
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	if err := router.SetTrustedProxies(nil); err != nil {
		log.Err(err).Msg("failed to set trusted proxies")
	}
	router.MaxMultipartMemory = 32 << 20

	router.Use(
		gin.Recovery(),
		gin.LoggerWithWriter(log.Logger, "/api/health", "/metrics"),
		corsMiddleware(deps.Config.API.Origins()),
		metricsMiddleware(deps.Metrics),
	)

	s := &Service{deps: deps, router: router}
	s.initRouter()
	return s
}

func (s *Service) initRouter() {
	s.router.GET("/", s.handleRoot)
	s.router.GET("/api/health", s.handleHealth)

	model := s.router.Group("/api/model")
	model.GET("/status", s.handleModelStatus)
	model.POST("/load", s.handleModelLoad)
	model.POST("/unload", s.handleModelUnload)

	tr := s.router.Group("/api/transcription")
	tr.POST("/upload", s.handleUpload)
	tr.POST("/upload/stream", s.handleUploadStream)
	tr.GET("/:id", s.handleGetTranscription)

	s.router.POST("/api/summarization/", s.handleSummarize)
	s.router.POST("/api/summarization", s.handleSummarize)

	if s.deps.Live != nil {
		s.router.GET("/api/streaming/realtime", gin.WrapH(s.deps.Live))
	}
	if s.deps.Gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}
}

func (s *Service) Handler() http.Handler { return s.router }

// ListenAndServe blocks until the server stops.
func (s *Service) ListenAndServe() error {
	s.server = &http.Server{
		Addr:              s.deps.Config.API.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 30 * time.Second,
	}
	log.Info().Str("addr", s.server.Addr).Msg("thale server starting")
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx ends.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	log.Info().Msg("http server stopped")
	return nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowed[origin] || allowed["*"]) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
			h.Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}
