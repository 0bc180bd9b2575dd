// Package mockbackend emulates the render engine's HTTP contract for local
// development and tests.
package mockbackend

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"sync"

	"github.com/cuongbtq/render-studio/internal/render/backend"
	"github.com/cuongbtq/render-studio/internal/render/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Config holds mock render engine behavior
type Config struct {
	ProgressStep int      // progress added per status query
	FailShops    []string // shops whose jobs fail at 50%
	RejectShops  []string // shops whose submissions are rejected
	VideoPrefix  string   // path prefix of finished videos
}

// Submission records what the engine received for one job
type Submission struct {
	JobID       string
	Images      []string
	Fields      map[string]string
	Attachments map[string]int // field name -> byte size
}

type job struct {
	id       string
	shop     string
	progress int
}

// Server is an in-memory render engine
type Server struct {
	config *Config
	logger *slog.Logger

	mu          sync.Mutex
	jobs        map[string]*job
	submissions []Submission
}

// NewServer creates a new mock render engine
func NewServer(config *Config, logger *slog.Logger) *Server {
	if config.ProgressStep <= 0 {
		config.ProgressStep = 20
	}
	if config.VideoPrefix == "" {
		config.VideoPrefix = "/videos/"
	}

	return &Server{
		config: config,
		logger: logger,
		jobs:   make(map[string]*job),
	}
}

// Router returns the gin engine serving the render contract
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST(backend.SubmitPath, s.startGeneration)
	r.GET("/api/check-status/:job_id", s.checkStatus)
	r.GET(s.config.VideoPrefix+":file", s.serveVideo)

	return r
}

// Submissions returns every submission received so far
func (s *Server) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.submissions)
}

func (s *Server) startGeneration(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid multipart form"})
		return
	}

	var images []string
	if err := json.Unmarshal([]byte(c.PostForm(backend.FieldImageURLs)), &images); err != nil || len(images) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "image_urls must be a non-empty JSON array"})
		return
	}

	if _, err := strconv.Atoi(c.PostForm(backend.FieldDuration)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "duration must be an integer"})
		return
	}

	shop := c.PostForm(backend.FieldShopName)
	if slices.Contains(s.config.RejectShops, shop) {
		c.JSON(http.StatusOK, gin.H{"status": "error", "error": "shop is not allowed to render"})
		return
	}

	sub := Submission{
		JobID:       uuid.New().String(),
		Images:      images,
		Fields:      make(map[string]string),
		Attachments: make(map[string]int),
	}
	for name, values := range c.Request.MultipartForm.Value {
		if len(values) > 0 {
			sub.Fields[name] = values[0]
		}
	}
	for _, field := range []string{backend.FieldMusicFile, backend.FieldUserVoiceFile} {
		size, err := attachmentSize(c, field)
		if err != nil {
			continue
		}
		sub.Attachments[field] = size
	}

	s.mu.Lock()
	s.jobs[sub.JobID] = &job{id: sub.JobID, shop: shop}
	s.submissions = append(s.submissions, sub)
	s.mu.Unlock()

	s.logger.Info("Mock render job queued",
		slog.String("job_id", sub.JobID),
		slog.String("shop", shop),
		slog.Int("images", len(images)),
	)

	c.JSON(http.StatusOK, gin.H{"status": domain.BackendStatusQueued, "job_id": sub.JobID})
}

func (s *Server) checkStatus(c *gin.Context) {
	id := c.Param("job_id")

	s.mu.Lock()
	j, ok := s.jobs[id]
	if ok {
		j.progress = min(j.progress+s.config.ProgressStep, 100)
	}
	var snapshot job
	if ok {
		snapshot = *j
	}
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": domain.BackendStatusFailed, "error": "job not found"})
		return
	}

	switch {
	case slices.Contains(s.config.FailShops, snapshot.shop) && snapshot.progress >= 50:
		c.JSON(http.StatusOK, gin.H{"status": domain.BackendStatusFailed, "progress": snapshot.progress, "error": "render engine crashed"})
	case snapshot.progress >= 100:
		c.JSON(http.StatusOK, gin.H{"status": domain.BackendStatusDone, "progress": 100, "url": s.config.VideoPrefix + snapshot.id + ".mp4"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": domain.BackendStatusProcessing, "progress": snapshot.progress})
	}
}

func (s *Server) serveVideo(c *gin.Context) {
	c.Data(http.StatusOK, "video/mp4", []byte(fmt.Sprintf("mock video %s", c.Param("file"))))
}

func attachmentSize(c *gin.Context, field string) (int, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return 0, err
	}
	f, err := fh.Open()
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := io.Copy(io.Discard, f)
	return int(n), err
}
