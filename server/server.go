package server

import (
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/krau/neuroscan/classifier"
	"github.com/krau/neuroscan/config"
)

//go:embed templates/*.html
var templates embed.FS

const (
	indexTemplate = "index.html"
	requestIDKey  = "request_id"
)

type Server struct {
	pipeline  *classifier.Pipeline
	model     *classifier.LazyModel
	token     string
	maxUpload int64
	tmpl      *template.Template
}

// New builds the HTTP layer around a pipeline. model may be nil; it is
// only used to report load state on /health.
func New(pipeline *classifier.Pipeline, model *classifier.LazyModel, cfg config.Config) (*Server, error) {
	tmpl, err := template.New("").
		Funcs(template.FuncMap{"percent": classifier.Percent}).
		ParseFS(templates, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Server{
		pipeline:  pipeline,
		model:     model,
		token:     cfg.Token,
		maxUpload: cfg.MaxUpload << 20,
		tmpl:      tmpl,
	}, nil
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(), bodyLimit(s.maxUpload))
	r.SetHTMLTemplate(s.tmpl)

	r.GET("/", s.PageHandler)
	r.POST("/", s.AnalyzeHandler)
	r.POST("/predict", s.PredictHandler)
	r.GET("/health", s.HealthHandler)
	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("Request handled",
			slog.String("request_id", c.GetString(requestIDKey)),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("took", time.Since(start)))
	}
}

func bodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
