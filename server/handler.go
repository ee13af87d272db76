package server

import (
	"bytes"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/krau/neuroscan/classifier"
)

var (
	errUnauthorized = errors.New("unauthorized")
)

type PredictResponse struct {
	Label             string             `json:"label"`
	Class             string             `json:"class"`
	Confidence        float64            `json:"confidence"`
	ConfidencePercent string             `json:"confidence_percent"`
	Scores            map[string]float32 `json:"scores"`
}

func (s *Server) authenticate(c *gin.Context) error {
	auth := c.GetHeader("Authorization")

	expectedToken := s.token
	if expectedToken == "" {
		return nil
	}
	providedToken := ""
	if len(auth) > 7 && auth[:7] == "Bearer " {
		providedToken = auth[7:]
	}
	if subtle.ConstantTimeCompare([]byte(providedToken), []byte(expectedToken)) != 1 {
		return errUnauthorized
	}

	return nil
}

// readUpload returns the bytes of the "file" form field.
func readUpload(c *gin.Context) ([]byte, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, classifier.ErrInputMissing
	}
	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return readAll(file)
}

func readAll(f multipart.File) ([]byte, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, classifier.ErrInputMissing
	}
	return data, nil
}

func (s *Server) PredictHandler(c *gin.Context) {
	if err := s.authenticate(c); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}

	data, err := readUpload(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	result, err := s.pipeline.Classify(c.Request.Context(), bytes.NewReader(data))
	if err != nil {
		s.fail(c, err)
		return
	}
	logResult(c, result)

	c.JSON(http.StatusOK, PredictResponse{
		Label:             result.Label,
		Class:             result.ClassName,
		Confidence:        result.Confidence,
		ConfidencePercent: classifier.Percent(result.Confidence),
		Scores:            result.Scores,
	})
}

func (s *Server) fail(c *gin.Context, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		slog.Error("Prediction failed",
			slog.String("request_id", c.GetString(requestIDKey)),
			slog.String("error", err.Error()))
	} else {
		slog.Warn("Rejected upload",
			slog.String("request_id", c.GetString(requestIDKey)),
			slog.String("error", err.Error()))
	}
	c.JSON(code, gin.H{"error": userMessage(err)})
}

func (s *Server) PageHandler(c *gin.Context) {
	c.HTML(http.StatusOK, indexTemplate, gin.H{})
}

// AnalyzeHandler serves the upload form. Every failure is rendered in
// place of the results.
func (s *Server) AnalyzeHandler(c *gin.Context) {
	data, err := readUpload(c)
	if err != nil {
		s.renderError(c, err)
		return
	}

	result, err := s.pipeline.Classify(c.Request.Context(), bytes.NewReader(data))
	if err != nil {
		s.renderError(c, err)
		return
	}
	logResult(c, result)

	c.HTML(http.StatusOK, indexTemplate, gin.H{
		"Result": result,
		"Image":  dataURI(data),
	})
}

func (s *Server) renderError(c *gin.Context, err error) {
	slog.Warn("Analysis failed",
		slog.String("request_id", c.GetString(requestIDKey)),
		slog.String("error", err.Error()))
	c.HTML(statusCode(err), indexTemplate, gin.H{"Error": userMessage(err)})
}

func (s *Server) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"model_loaded": s.model != nil && s.model.Loaded(),
	})
}

func logResult(c *gin.Context, r *classifier.Result) {
	slog.Info("Scan classified",
		slog.String("request_id", c.GetString(requestIDKey)),
		slog.String("label", r.Label),
		slog.String("confidence", classifier.Percent(r.Confidence)))
}

func statusCode(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, classifier.ErrInputMissing), errors.Is(err, classifier.ErrDecode):
		return http.StatusBadRequest
	case errors.Is(err, classifier.ErrModel), errors.Is(err, classifier.ErrShape):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func userMessage(err error) string {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return "Error processing image: file too large"
	case errors.Is(err, classifier.ErrInputMissing):
		return "Please upload an image first"
	case errors.Is(err, classifier.ErrDecode):
		return "Error processing image: unsupported or corrupt image file"
	case errors.Is(err, classifier.ErrShape):
		return "Error processing image: the model returned an unexpected result"
	case errors.Is(err, classifier.ErrModel):
		return "Error processing image: the model is not available"
	default:
		return "Error processing image: " + err.Error()
	}
}

// dataURI embeds an already decoded upload for display.
func dataURI(data []byte) template.URL {
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return ""
	}
	return template.URL("data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data))
}
