package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/backend/database"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/chain"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/common"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/core"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/social"

	"github.com/labstack/echo/v4"
)

// ContestService is what the HTTP layer needs from *core.CoreService.
type ContestService interface {
	PrepareUpload(ctx context.Context, upload core.Upload) (*core.UploadResult, error)
	ScorePreview(ctx context.Context, upload core.Upload) (*core.ScorePreview, error)

	PrepareSubmitTx(ctx context.Context, from, imageURL, ipfsHash string) (*core.TxRequest, error)
	PrepareVoteTx(ctx context.Context, from, imageURL string, score int) (*core.TxRequest, error)
	PrepareBatchVoteTx(ctx context.Context, from string, imageURLs []string, scores []int) (*core.TxRequest, error)
	PrepareProcessScoreTx(ctx context.Context, from, requestID string) (*core.TxRequest, error)
	TransactionStatus(ctx context.Context, hash string) (*chain.TxInfo, error)

	Gallery(page int) (*core.GalleryPage, error)
	IndexedSubmission(requestID string) (*core.GalleryItem, error)
	SubmitterHistory(address string) ([]*database.Submission, error)
	ChainSubmission(ctx context.Context, imageURL string) (*core.ChainSubmissionView, error)
	SubmissionVotes(ctx context.Context, imageURL string) ([]core.VoteView, error)
	UserStats(ctx context.Context, address string) (*core.UserStatsView, error)
	UserSubmissions(ctx context.Context, address string) ([]string, error)
	Stats(ctx context.Context) (*core.StatsView, error)

	SocialState(ctx context.Context, id string) (*social.SocialState, error)
	Like(ctx context.Context, id string) (*social.SocialState, error)
	Cheer(ctx context.Context, id string) (*social.SocialState, error)
	Comment(ctx context.Context, id, user, text string) (*social.SocialState, error)

	DistributeRewards(ctx context.Context, imageURLs []string) (*core.RewardsResult, error)
	Rescore(ctx context.Context, requestID string) (*database.Submission, error)
	ProcessScore(ctx context.Context, requestID string) (*database.Submission, error)
}

type APIService struct {
	config      *core.ServiceConfig
	coreService ContestService
	metrics     *Metrics
}

func NewAPIService(config *core.ServiceConfig, coreService ContestService) *APIService {
	return &APIService{
		config:      config,
		coreService: coreService,
		metrics:     NewMetrics(),
	}
}

type submitTxRequest struct {
	From     string `json:"from" validate:"omitempty,ethaddr"`
	ImageURL string `json:"imageUrl" validate:"required"`
	IPFSHash string `json:"ipfsHash" validate:"required"`
}

type voteTxRequest struct {
	From     string `json:"from" validate:"omitempty,ethaddr"`
	ImageURL string `json:"imageUrl" validate:"required"`
	Score    int    `json:"score" validate:"min=1,max=10"`
}

type processScoreTxRequest struct {
	From      string `json:"from" validate:"omitempty,ethaddr"`
	RequestID string `json:"requestId" validate:"required"`
}

type batchVoteTxRequest struct {
	From      string   `json:"from" validate:"omitempty,ethaddr"`
	ImageURLs []string `json:"imageUrls" validate:"required,min=1"`
	Scores    []int    `json:"scores" validate:"required,min=1"`
}

type commentRequest struct {
	User string `json:"user"`
	Text string `json:"text" validate:"required"`
}

type rewardsRequest struct {
	ImageURLs []string `json:"imageUrls" validate:"required,min=1"`
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	e.HTTPErrorHandler = jsonErrorHandler
	e.Validator = common.NewEchoValidator()
	e.Use(s.metrics.Middleware())

	e.GET("/probe", func(c echo.Context) error {
		return c.String(http.StatusOK, "API Service is running")
	})
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	api := e.Group("/api")

	uploadLimiter := rateLimiter(s.config.RateLimit)
	scoreLimiter := rateLimiter(s.config.RateLimit)
	api.POST("/uploads", s.uploadHandler, uploadLimiter)
	api.POST("/ai-score", s.aiScoreHandler, scoreLimiter)

	api.POST("/tx/submit", s.submitTxHandler)
	api.POST("/tx/vote", s.voteTxHandler)
	api.POST("/tx/batch-vote", s.batchVoteTxHandler)
	api.POST("/tx/process-score", s.processScoreTxHandler)
	api.GET("/tx/:hash", s.txStatusHandler)

	api.GET("/gallery", s.galleryHandler)
	api.GET("/submissions/:requestId", s.indexedSubmissionHandler)
	api.GET("/submission", s.chainSubmissionHandler)
	api.GET("/submission/votes", s.votesHandler)
	api.GET("/users/:address/stats", s.userStatsHandler)
	api.GET("/users/:address/submissions", s.userSubmissionsHandler)
	api.GET("/users/:address/history", s.userHistoryHandler)
	api.GET("/stats", s.statsHandler)

	api.GET("/social/:id", s.socialHandler)
	api.POST("/social/:id/like", s.likeHandler)
	api.POST("/social/:id/cheer", s.cheerHandler)
	api.POST("/social/:id/comments", s.commentHandler)

	admin := api.Group("/admin", adminAuth(s.config.Admin.TokenHash))
	admin.POST("/rewards", s.rewardsHandler)
	admin.POST("/submissions/:requestId/rescore", s.rescoreHandler)
	admin.POST("/submissions/:requestId/process-score", s.processScoreHandler)
}

// readUpload reads the multipart "image" field, refusing bodies larger than
// the configured limit before they are fully buffered.
func (s *APIService) readUpload(ctx echo.Context) (core.Upload, error) {
	file, err := ctx.FormFile("image")
	if err != nil {
		return core.Upload{}, fmt.Errorf("%w: missing image file", core.ErrInvalidInput)
	}
	src, err := file.Open()
	if err != nil {
		return core.Upload{}, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()

	limit := int64(s.config.Images.MaxSizeMB)*1024*1024 + 1
	data, err := io.ReadAll(io.LimitReader(src, limit))
	if err != nil {
		return core.Upload{}, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	contentType := file.Header.Get(echo.HeaderContentType)
	if contentType == "" || contentType == echo.MIMEOctetStream {
		contentType = http.DetectContentType(data)
	}
	return core.Upload{ContentType: contentType, Data: data}, nil
}

func (s *APIService) uploadHandler(ctx echo.Context) error {
	upload, err := s.readUpload(ctx)
	if err != nil {
		return err
	}
	result, err := s.coreService.PrepareUpload(ctx.Request().Context(), upload)
	if err != nil {
		return err
	}
	s.metrics.uploads.Inc()
	return ctx.JSON(http.StatusCreated, result)
}

func (s *APIService) aiScoreHandler(ctx echo.Context) error {
	upload, err := s.readUpload(ctx)
	if err != nil {
		return err
	}
	preview, err := s.coreService.ScorePreview(ctx.Request().Context(), upload)
	if err != nil {
		return err
	}
	s.metrics.scores.WithLabelValues(strconv.Itoa(preview.Score)).Inc()
	return ctx.JSON(http.StatusOK, preview)
}

func bindAndValidate(ctx echo.Context, req any) error {
	if err := ctx.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "received invalid request body")
	}
	return ctx.Validate(req)
}

func (s *APIService) submitTxHandler(ctx echo.Context) error {
	var req submitTxRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}
	tx, err := s.coreService.PrepareSubmitTx(ctx.Request().Context(), req.From, req.ImageURL, req.IPFSHash)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tx)
}

func (s *APIService) voteTxHandler(ctx echo.Context) error {
	var req voteTxRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}
	tx, err := s.coreService.PrepareVoteTx(ctx.Request().Context(), req.From, req.ImageURL, req.Score)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tx)
}

func (s *APIService) batchVoteTxHandler(ctx echo.Context) error {
	var req batchVoteTxRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}
	tx, err := s.coreService.PrepareBatchVoteTx(ctx.Request().Context(), req.From, req.ImageURLs, req.Scores)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tx)
}

func (s *APIService) processScoreTxHandler(ctx echo.Context) error {
	var req processScoreTxRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}
	tx, err := s.coreService.PrepareProcessScoreTx(ctx.Request().Context(), req.From, req.RequestID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tx)
}

func (s *APIService) txStatusHandler(ctx echo.Context) error {
	info, err := s.coreService.TransactionStatus(ctx.Request().Context(), ctx.Param("hash"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, info)
}

func (s *APIService) galleryHandler(ctx echo.Context) error {
	page := 1
	if raw := ctx.QueryParam("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "page must be a positive integer")
		}
		page = n
	}
	result, err := s.coreService.Gallery(page)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, result)
}

func (s *APIService) indexedSubmissionHandler(ctx echo.Context) error {
	sub, err := s.coreService.IndexedSubmission(ctx.Param("requestId"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (s *APIService) chainSubmissionHandler(ctx echo.Context) error {
	sub, err := s.coreService.ChainSubmission(ctx.Request().Context(), ctx.QueryParam("imageUrl"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (s *APIService) votesHandler(ctx echo.Context) error {
	votes, err := s.coreService.SubmissionVotes(ctx.Request().Context(), ctx.QueryParam("imageUrl"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, votes)
}

func (s *APIService) userStatsHandler(ctx echo.Context) error {
	stats, err := s.coreService.UserStats(ctx.Request().Context(), ctx.Param("address"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (s *APIService) userSubmissionsHandler(ctx echo.Context) error {
	urls, err := s.coreService.UserSubmissions(ctx.Request().Context(), ctx.Param("address"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, urls)
}

func (s *APIService) userHistoryHandler(ctx echo.Context) error {
	subs, err := s.coreService.SubmitterHistory(ctx.Param("address"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (s *APIService) statsHandler(ctx echo.Context) error {
	stats, err := s.coreService.Stats(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (s *APIService) socialHandler(ctx echo.Context) error {
	state, err := s.coreService.SocialState(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, state)
}

func (s *APIService) likeHandler(ctx echo.Context) error {
	state, err := s.coreService.Like(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	s.metrics.social.WithLabelValues("like").Inc()
	return ctx.JSON(http.StatusOK, state)
}

func (s *APIService) cheerHandler(ctx echo.Context) error {
	state, err := s.coreService.Cheer(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	s.metrics.social.WithLabelValues("cheer").Inc()
	return ctx.JSON(http.StatusOK, state)
}

func (s *APIService) commentHandler(ctx echo.Context) error {
	var req commentRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}
	state, err := s.coreService.Comment(ctx.Request().Context(), ctx.Param("id"), req.User, req.Text)
	if err != nil {
		return err
	}
	s.metrics.social.WithLabelValues("comment").Inc()
	return ctx.JSON(http.StatusCreated, state)
}

func (s *APIService) rewardsHandler(ctx echo.Context) error {
	var req rewardsRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}
	result, err := s.coreService.DistributeRewards(ctx.Request().Context(), req.ImageURLs)
	if err != nil {
		return err
	}
	slog.Info("admin distributed rewards", "image_count", len(req.ImageURLs), "tx", result.TxHash)
	return ctx.JSON(http.StatusOK, result)
}

func (s *APIService) rescoreHandler(ctx echo.Context) error {
	sub, err := s.coreService.Rescore(ctx.Request().Context(), ctx.Param("requestId"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (s *APIService) processScoreHandler(ctx echo.Context) error {
	sub, err := s.coreService.ProcessScore(ctx.Request().Context(), ctx.Param("requestId"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sub)
}
