package api_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"testing"
	"time"

	backend "cell-backend/internal/api"
	"cell-backend/internal/database"
	"cell-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubClassifier struct {
	label int
	err   error
}

func (s *stubClassifier) Predict(img image.Image) (int, error) { return s.label, s.err }
func (s *stubClassifier) InputSize() int                       { return 224 }
func (s *stubClassifier) Release()                             {}

func createDB(t *testing.T, create ...any) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

func newRouter(t *testing.T, model *stubClassifier, db *gorm.DB) (chi.Router, string) {
	t.Helper()

	imageDir := t.TempDir()
	service := backend.NewBackendService(model, "ResNet50", db, imageDir)
	router := chi.NewRouter()
	service.AddRoutes(router)
	return router, imageDir
}

func grayPNGBase64(t *testing.T, size int) string {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = 127
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func postPredict(t *testing.T, router chi.Router, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPredict(t *testing.T) {
	db := createDB(t)
	router, imageDir := newRouter(t, &stubClassifier{label: 1}, db)

	rec := postPredict(t, router, api.PredictRequest{Cell: grayPNGBase64(t, 224)})

	assert.Equal(t, http.StatusOK, rec.Code)

	var response api.PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 1, response.IsHomogenous)

	// One audit row and one TIFF copy per request.
	var records []database.Prediction
	require.NoError(t, db.Find(&records).Error)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Label)
	assert.Equal(t, "ResNet50", records[0].ModelName)

	info, err := os.Stat(records[0].ImagePath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	entries, err := os.ReadDir(imageDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPredictInvalidBase64(t *testing.T) {
	router, _ := newRouter(t, &stubClassifier{}, createDB(t))

	rec := postPredict(t, router, api.PredictRequest{Cell: "this is not base64!!!"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var response api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Contains(t, response.Detail, "decode")
}

func TestPredictUndecodablePayload(t *testing.T) {
	router, _ := newRouter(t, &stubClassifier{}, createDB(t))

	payload := base64.StdEncoding.EncodeToString([]byte("not an image"))
	rec := postPredict(t, router, api.PredictRequest{Cell: payload})

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var response api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Contains(t, response.Detail, "decode")
}

func TestPredictModelFailure(t *testing.T) {
	router, _ := newRouter(t, &stubClassifier{err: assert.AnError}, createDB(t))

	rec := postPredict(t, router, api.PredictRequest{Cell: grayPNGBase64(t, 64)})

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var response api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.NotEmpty(t, response.Detail)
}

func TestPredictMalformedBody(t *testing.T) {
	router, _ := newRouter(t, &stubClassifier{}, createDB(t))

	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewReader([]byte("{broken")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIndex(t *testing.T) {
	router, _ := newRouter(t, &stubClassifier{}, createDB(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response api.MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "Your endpoint is running!", response.Message)
}

func TestStatus(t *testing.T) {
	router, _ := newRouter(t, &stubClassifier{}, createDB(t))

	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response api.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "cell-segmentation-usecase", response.Service)
	assert.Regexp(t, regexp.MustCompile(`^\d+:\d{2}:\d{2}$`), response.Uptime)
}

func TestListPredictions(t *testing.T) {
	now := time.Now()
	db := createDB(t,
		&database.Prediction{Id: uuid.New(), ModelName: "ResNet50", Label: 0, CreationTime: now.Add(-2 * time.Minute)},
		&database.Prediction{Id: uuid.New(), ModelName: "ResNet50", Label: 1, CreationTime: now.Add(-time.Minute)},
		&database.Prediction{Id: uuid.New(), ModelName: "ResNet50", Label: 1, CreationTime: now},
	)
	router, _ := newRouter(t, &stubClassifier{}, db)

	req := httptest.NewRequest(http.MethodGet, "/predictions?label=1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response []api.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response, 2)
	for _, p := range response {
		assert.Equal(t, 1, p.Label)
	}

	req = httptest.NewRequest(http.MethodGet, "/predictions?limit=1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Len(t, response, 1)
}
