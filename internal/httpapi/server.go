package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"campusync/internal/domain"
	"campusync/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// defaultWaitTimeout bounds how long a request waits for a refresh to settle
const defaultWaitTimeout = 20 * time.Second

// Server is the local read-only JSON API over the session and the cached data
type Server struct {
	engine      *gin.Engine
	sessions    *service.SessionService
	timetable   *service.TimetableService
	grades      *service.GradeService
	logger      *zap.Logger
	waitTimeout time.Duration
}

// NewServer creates the API and registers its routes. allowOrigins holds the
// CORS origins; "*" allows any origin.
func NewServer(
	sessions *service.SessionService,
	timetable *service.TimetableService,
	grades *service.GradeService,
	allowOrigins []string,
	logger *zap.Logger,
) *Server {
	s := &Server{
		engine:      gin.New(),
		sessions:    sessions,
		timetable:   timetable,
		grades:      grades,
		logger:      logger,
		waitTimeout: defaultWaitTimeout,
	}

	s.engine.Use(gin.Recovery(), requestLogger(logger), cors.New(corsConfig(allowOrigins)))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	api := s.engine.Group("/api")
	{
		api.GET("/session", s.handleSession)
		api.GET("/semesters", s.handleSemesters)
		api.GET("/schedule", s.handleSchedule)
		api.GET("/grades", s.handleGrades)
	}

	return s
}

// Handler returns the HTTP handler serving the API
func (s *Server) Handler() http.Handler {
	return s.engine
}

func corsConfig(allowOrigins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, origin := range allowOrigins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = allowOrigins
	return cfg
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

type sessionResponse struct {
	State         domain.LoginState `json:"state"`
	Authenticated bool              `json:"authenticated"`
	Username      string            `json:"username,omitempty"`
}

type scheduleResponse struct {
	View    domain.WeekView `json:"view"`
	Stale   bool            `json:"stale"`
	Offline bool            `json:"offline"`
	Notice  string          `json:"notice,omitempty"`
}

type gradesResponse struct {
	Semesters []domain.SemesterGroup `json:"semesters"`
	Stale     bool                   `json:"stale"`
	Offline   bool                   `json:"offline"`
	Notice    string                 `json:"notice,omitempty"`
}

func (s *Server) handleSession(c *gin.Context) {
	session := s.sessions.Session()
	c.JSON(http.StatusOK, sessionResponse{
		State:         s.sessions.State(),
		Authenticated: session.Authenticated,
		Username:      s.sessions.Credential().Username,
	})
}

func (s *Server) handleSemesters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"default":   s.timetable.DefaultSemester(),
		"semesters": s.timetable.Semesters(),
	})
}

// handleSchedule serves GET /api/schedule?semester=&week=&cached=
func (s *Server) handleSchedule(c *gin.Context) {
	semester := c.DefaultQuery("semester", s.timetable.DefaultSemester())

	week := 0
	if raw := c.Query("week"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > service.MaxWeeks {
			c.JSON(http.StatusBadRequest, gin.H{"error": "week must be a number from 1 to 25"})
			return
		}
		week = n
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.waitTimeout)
	defer cancel()

	var (
		snapshot service.Snapshot[domain.TimetableSnapshot]
		settled  <-chan service.Settlement[domain.TimetableSnapshot]
	)
	if cachedOnly(c) {
		data, ok := s.timetable.Cached(semester)
		snapshot = service.Snapshot[domain.TimetableSnapshot]{Data: data, Cached: ok}
	} else {
		snapshot, settled = s.timetable.Load(ctx, semester)
	}

	result, ok := awaitLoad(ctx, c, snapshot, settled)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, scheduleResponse{
		View:    s.timetable.WeekView(semester, result.Data, week),
		Stale:   result.Stale,
		Offline: result.Offline,
		Notice:  result.Notice,
	})
}

// handleGrades serves GET /api/grades?cached=
func (s *Server) handleGrades(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.waitTimeout)
	defer cancel()

	var (
		snapshot service.Snapshot[[]domain.RawGrade]
		settled  <-chan service.Settlement[[]domain.RawGrade]
	)
	if cachedOnly(c) {
		data, ok := s.grades.Cached()
		snapshot = service.Snapshot[[]domain.RawGrade]{Data: data, Cached: ok}
	} else {
		snapshot, settled = s.grades.Load(ctx)
	}

	result, ok := awaitLoad(ctx, c, snapshot, settled)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gradesResponse{
		Semesters: s.grades.Report(result.Data),
		Stale:     result.Stale,
		Offline:   result.Offline,
		Notice:    result.Notice,
	})
}

func cachedOnly(c *gin.Context) bool {
	v, _ := strconv.ParseBool(c.Query("cached"))
	return v
}

type loadResult[T any] struct {
	Data    T
	Stale   bool
	Offline bool
	Notice  string
}

// awaitLoad waits for the refresh until ctx is done (nil settled means cache
// only) and writes an error response when there is nothing to serve. The
// refresh itself carries on in the background either way.
func awaitLoad[T any](ctx context.Context, c *gin.Context, snapshot service.Snapshot[T], settled <-chan service.Settlement[T]) (loadResult[T], bool) {
	if settled == nil {
		if !snapshot.Cached {
			c.JSON(http.StatusNotFound, gin.H{"error": "no cached data"})
			return loadResult[T]{}, false
		}
		return loadResult[T]{Data: snapshot.Data, Stale: true}, true
	}

	var s service.Settlement[T]
	select {
	case s = <-settled:
	case <-ctx.Done():
		if snapshot.Cached {
			return loadResult[T]{Data: snapshot.Data, Stale: true}, true
		}
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "refresh still running, try again shortly"})
		return loadResult[T]{}, false
	}

	switch {
	case s.Fatal:
		c.JSON(http.StatusUnauthorized, gin.H{"error": s.Notice})
		return loadResult[T]{}, false
	case s.HasData:
		return loadResult[T]{Data: s.Data, Stale: !s.Fresh, Offline: s.Offline, Notice: s.Notice}, true
	default:
		notice := s.Notice
		if notice == "" {
			notice = service.NoticeRefreshFailed
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": notice})
		return loadResult[T]{}, false
	}
}
