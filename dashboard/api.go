// Package dashboard exposes the read side of the tracker over HTTP: latest
// statuses, run history, per-store timelines and spreadsheet exports.
package dashboard

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v7"
	"github.com/sirupsen/logrus"

	"github.com/adonese/storewatch/apperr"
	"github.com/adonese/storewatch/gateway"
	"github.com/adonese/storewatch/store"
	"github.com/adonese/storewatch/track_fields"
)

// Trigger starts an on-demand cycle. It mirrors tracker.Service.Trigger
// without importing the package.
type Trigger interface {
	Trigger() error
}

// Service holds the handlers' dependencies.
type Service struct {
	Store   *store.Store
	Redis   *redis.Client
	Tracker Trigger
	Auth    *gateway.JWTAuth
	Logger  *logrus.Logger
}

const redisLatestKey = "storewatch:latest"

func (s *Service) abort(c *gin.Context, err error) {
	s.Logger.WithFields(logrus.Fields{
		"error": err.Error(),
		"path":  c.FullPath(),
	}).Error("dashboard request failed")
	c.AbortWithStatusJSON(apperr.Status(err), apperr.Payload(err))
}

// Status returns the latest known status of every store. The redis hash is
// the hot path; the database answers when redis is empty or absent.
func (s *Service) Status(c *gin.Context) {
	if s.Redis != nil {
		raw, err := s.Redis.HGetAll(redisLatestKey).Result()
		if err == nil && len(raw) > 0 {
			out := make([]track_fields.CheckResult, 0, len(raw))
			for _, v := range raw {
				var res track_fields.CheckResult
				if err := json.Unmarshal([]byte(v), &res); err == nil {
					out = append(out, res)
				}
			}
			c.JSON(http.StatusOK, gin.H{"result": out, "count": len(out), "source": "cache"})
			return
		}
	}

	checks, err := s.Store.LatestStatuses(c.Request.Context())
	if err != nil {
		s.abort(c, apperr.Wrap(err, apperr.ErrDatabase, "unable to read statuses"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": checks, "count": len(checks), "source": "db"})
}

// Runs lists the most recent cycles, newest first. ?limit= caps the page,
// defaulting to 50.
func (s *Service) Runs(c *gin.Context) {
	limit := 50
	if q := c.Query("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := s.Store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		s.abort(c, apperr.Wrap(err, apperr.ErrDatabase, "unable to list runs"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": runs, "count": len(runs)})
}

// RunByID returns every check recorded during one cycle.
func (s *Service) RunByID(c *gin.Context) {
	id := c.Param("id")
	checks, err := s.Store.ChecksByRun(c.Request.Context(), id)
	if err != nil {
		s.abort(c, apperr.Wrap(err, apperr.ErrDatabase, "unable to read run"))
		return
	}
	if len(checks) == 0 {
		s.abort(c, apperr.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": checks, "count": len(checks)})
}

// History returns the recorded timeline of a single store, newest first.
// ?link= selects the store; ?limit= defaults to one day of quarter-hours.
func (s *Service) History(c *gin.Context) {
	link := c.Query("link")
	if link == "" {
		s.abort(c, apperr.New("missing_link", http.StatusBadRequest, "link query parameter is required"))
		return
	}
	limit := 0
	if q := c.Query("limit"); q != "" {
		limit, _ = strconv.Atoi(q)
	}
	checks, err := s.Store.ChecksByLink(c.Request.Context(), link, limit)
	if err != nil {
		s.abort(c, apperr.Wrap(err, apperr.ErrDatabase, "unable to read history"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": checks, "count": len(checks)})
}

// Count returns the number of recorded cycles.
func (s *Service) Count(c *gin.Context) {
	count, err := s.Store.RunsCount(c.Request.Context())
	if err != nil {
		s.abort(c, apperr.Wrap(err, apperr.ErrDatabase, "unable to count runs"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": count})
}

// TriggerRun kicks off a cycle outside the schedule. Guarded by the same
// lock the scheduled loop takes, so at most one cycle runs at a time.
func (s *Service) TriggerRun(c *gin.Context) {
	if s.Tracker == nil {
		s.abort(c, apperr.ErrInternal)
		return
	}
	if err := s.Tracker.Trigger(); err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "run started"})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login exchanges an operator's API key for a JWT used on the mutating
// endpoints.
func (s *Service) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, apperr.Wrap(err, apperr.ErrBadRequest, "malformed login request"))
		return
	}
	ok, err := s.Store.ValidateAPIKey(c.Request.Context(), req.Username, req.Password)
	if err != nil || !ok {
		s.abort(c, apperr.ErrUnauthorized)
		return
	}
	token, err := s.Auth.GenerateJWT(req.Username)
	if err != nil {
		s.abort(c, apperr.Wrap(err, apperr.ErrInternal, "unable to issue token"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorization": token})
}

type deviceTokenRequest struct {
	Token string `json:"token" binding:"required"`
	Label string `json:"label"`
}

// RegisterDevice stores an FCM device token so the device receives status
// flip alerts.
func (s *Service) RegisterDevice(c *gin.Context) {
	var req deviceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, apperr.Wrap(err, apperr.ErrValidation, "malformed device token"))
		return
	}
	if err := s.Store.SaveDeviceToken(c.Request.Context(), req.Token, req.Label); err != nil {
		s.abort(c, apperr.Wrap(err, apperr.ErrDatabase, "unable to save device token"))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "device registered"})
}

type apiKeyRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// IssueAPIKey mints a new API key for an operator. The key is returned once
// and stored hashed.
func (s *Service) IssueAPIKey(c *gin.Context) {
	var req apiKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, apperr.Wrap(err, apperr.ErrValidation, "malformed request"))
		return
	}
	key, err := gateway.GenerateAPIKey()
	if err != nil {
		s.abort(c, apperr.Wrap(err, apperr.ErrInternal, "unable to generate key"))
		return
	}
	if err := s.Store.CreateAPIKey(c.Request.Context(), req.Email, key); err != nil {
		s.abort(c, apperr.Wrap(err, apperr.ErrDatabase, "unable to store key"))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"apiKey": key})
}
