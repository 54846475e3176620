package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cell-backend/internal/core"
	"cell-backend/internal/database"
	"cell-backend/internal/imaging"
	"cell-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const serviceName = "cell-segmentation-usecase"

// BackendService serves the classification endpoints. The classifier handle
// is constructed once at startup and shared read-only across requests.
type BackendService struct {
	model     core.Classifier
	modelName string
	db        *gorm.DB
	imageDir  string
	startTime time.Time
}

func NewBackendService(model core.Classifier, modelName string, db *gorm.DB, imageDir string) *BackendService {
	return &BackendService{
		model:     model,
		modelName: modelName,
		db:        db,
		imageDir:  imageDir,
		startTime: time.Now(),
	}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/", RestHandler(s.Index))
	r.Get("/api", RestHandler(s.Status))
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Post("/predict", RestHandler(s.Predict))
	r.Get("/predictions", RestHandler(s.ListPredictions))
}

func (s *BackendService) Index(r *http.Request) (any, error) {
	return api.MessageResponse{Message: "Your endpoint is running!"}, nil
}

func (s *BackendService) Status(r *http.Request) (any, error) {
	return api.StatusResponse{
		Service: serviceName,
		Uptime:  formatUptime(time.Since(s.startTime)),
	}, nil
}

// formatUptime renders a duration as H:MM:SS, with days broken out once the
// service has been up longer than a day.
func formatUptime(d time.Duration) string {
	secs := int64(d.Seconds())
	days := secs / 86400
	secs %= 86400
	h, m, s := secs/3600, (secs%3600)/60, secs%60

	switch {
	case days == 1:
		return fmt.Sprintf("1 day, %d:%02d:%02d", h, m, s)
	case days > 1:
		return fmt.Sprintf("%d days, %d:%02d:%02d", days, h, m, s)
	default:
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
}

// Predict decodes the uploaded cell image, persists a 16-bit TIFF audit
// copy, and runs the classifier. Every step failure surfaces to the caller
// as the same client error shape; save failures are deliberately not
// distinguished from prediction failures.
func (s *BackendService) Predict(r *http.Request) (any, error) {
	req, err := ParseRequest[api.PredictRequest](r)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	img, err := imaging.DecodeBase64Image(req.Cell)
	if err != nil {
		slog.Error("prediction error", "error", err)
		return nil, CodedError(http.StatusBadRequest, err)
	}

	savePath := imaging.SavedImagePath(s.imageDir, start)
	if err := imaging.SaveImageAsTIFF(img, savePath); err != nil {
		slog.Error("prediction error", "error", err)
		return nil, CodedError(http.StatusBadRequest, err)
	}
	slog.Info("image saved", "path", savePath)

	label, err := s.model.Predict(img)
	if err != nil {
		slog.Error("prediction error", "error", err)
		return nil, CodedError(http.StatusBadRequest, err)
	}

	if s.db != nil {
		record := &database.Prediction{
			Id:           uuid.New(),
			ModelName:    s.modelName,
			Label:        label,
			ImagePath:    savePath,
			LatencyMs:    time.Since(start).Milliseconds(),
			CreationTime: start,
		}
		if err := s.db.WithContext(r.Context()).Create(record).Error; err != nil {
			// The caller already has their label; losing an audit row is
			// logged, not fatal.
			slog.Error("error recording prediction", "error", err)
		}
	}

	return api.PredictResponse{IsHomogenous: label}, nil
}

type listPredictionsParams struct {
	Limit int  `schema:"limit"`
	Label *int `schema:"label"`
}

func (s *BackendService) ListPredictions(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[listPredictionsParams](r)
	if err != nil {
		return nil, err
	}
	if params.Limit <= 0 || params.Limit > 500 {
		params.Limit = 100
	}

	query := s.db.WithContext(r.Context()).Order("creation_time desc").Limit(params.Limit)
	if params.Label != nil {
		query = query.Where("label = ?", *params.Label)
	}

	var records []database.Prediction
	if err := query.Find(&records).Error; err != nil {
		slog.Error("error listing predictions", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving predictions")
	}

	out := make([]api.Prediction, len(records))
	for i, rec := range records {
		out[i] = api.Prediction{
			Id:           rec.Id,
			ModelName:    rec.ModelName,
			Label:        rec.Label,
			ImagePath:    rec.ImagePath,
			LatencyMs:    rec.LatencyMs,
			CreationTime: rec.CreationTime,
		}
	}
	return out, nil
}
