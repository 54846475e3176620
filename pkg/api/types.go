package api

import (
	"time"

	"github.com/google/uuid"
)

// PredictRequest carries a base64 encoded cell image.
type PredictRequest struct {
	Cell string `json:"cell"`
}

type PredictResponse struct {
	IsHomogenous int `json:"is_homogenous"`
}

// ErrorResponse is the uniform error body returned for failed requests.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

type StatusResponse struct {
	Service string `json:"service"`
	Uptime  string `json:"uptime"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type Prediction struct {
	Id           uuid.UUID
	ModelName    string
	Label        int
	ImagePath    string
	LatencyMs    int64
	CreationTime time.Time
}
