package http

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/apperr"
	"github.com/fyrsmithlabs/ragd/internal/pipeline"
)

// IngestRequest is the request body for POST /ingest.
type IngestRequest struct {
	Files     []string `json:"files"`
	DatasetID string   `json:"datasetId"`
}

// ingestMessage is the fixed ingest acknowledgement clients match on.
const ingestMessage = "Files successfully ingested and stored in the vector database"

// IngestResponse is the response body for POST /ingest.
type IngestResponse struct {
	Message       string                 `json:"message"`
	IngestedFiles int                    `json:"ingestedFiles"`
	DatasetID     string                 `json:"datasetId"`
	FailedFiles   []pipeline.FileFailure `json:"failedFiles,omitempty"`
}

// RetrieveRequest is the request body for POST /retrieve.
type RetrieveRequest struct {
	Prompt    string `json:"prompt"`
	DatasetID string `json:"datasetId"`
}

// Chunk is one retrieved chunk.
type Chunk struct {
	Chunk string `json:"chunk"`
}

// RetrieveResponse is the response body for POST /retrieve.
type RetrieveResponse struct {
	Chunks []Chunk `json:"chunks"`
}

// MessageResponse carries a human readable confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// DatasetsResponse is the response body for GET /datasets.
type DatasetsResponse struct {
	Datasets []string `json:"datasets"`
}

// ChunksResponse is the response body for GET /datasets/:datasetId/chunks.
type ChunksResponse struct {
	DatasetID string                 `json:"datasetId"`
	Chunks    []pipeline.ChunkRecord `json:"chunks"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ErrorResponse wraps ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.svc.Health(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Invalid("invalid request body")
	}

	res, err := s.svc.Ingest(c.Request().Context(), req.Files, req.DatasetID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, IngestResponse{
		Message:       ingestMessage,
		IngestedFiles: res.IngestedFiles,
		DatasetID:     res.DatasetID,
		FailedFiles:   res.Failures,
	})
}

func (s *Server) handleRetrieve(c echo.Context) error {
	var req RetrieveRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Invalid("invalid request body")
	}

	texts, err := s.svc.Retrieve(c.Request().Context(), req.Prompt, req.DatasetID)
	if err != nil {
		return err
	}
	chunks := make([]Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = Chunk{Chunk: t}
	}
	return c.JSON(http.StatusOK, RetrieveResponse{Chunks: chunks})
}

func (s *Server) handleDelete(c echo.Context) error {
	id := c.Param("datasetId")
	if err := s.svc.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("All data associated with datasetId '%s' has been deleted.", id),
	})
}

func (s *Server) handleListDatasets(c echo.Context) error {
	ids, err := s.svc.ListDatasets(c.Request().Context())
	if err != nil {
		return err
	}
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(http.StatusOK, DatasetsResponse{Datasets: ids})
}

func (s *Server) handleListChunks(c echo.Context) error {
	id := c.Param("datasetId")
	chunks, err := s.svc.ListChunks(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if chunks == nil {
		chunks = []pipeline.ChunkRecord{}
	}
	return c.JSON(http.StatusOK, ChunksResponse{DatasetID: id, Chunks: chunks})
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindFetch, apperr.KindExtraction:
		return http.StatusUnprocessableEntity
	case apperr.KindEmbedding:
		return http.StatusBadGateway
	case apperr.KindIndex:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleError renders every error as an ErrorResponse.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		status int
		body   ErrorBody
	)
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		body = ErrorBody{Kind: "http", Message: fmt.Sprint(he.Message)}
		if status == http.StatusBadRequest || status == http.StatusRequestEntityTooLarge {
			body.Kind = string(apperr.KindValidation)
		}
	} else {
		kind := apperr.KindOf(err)
		status = statusFor(kind)
		body = ErrorBody{Kind: string(kind), Message: apperr.Message(err)}
	}

	ctx := c.Request().Context()
	if status >= http.StatusInternalServerError {
		s.logger.Error(ctx, "request failed", zap.String("kind", body.Kind), zap.Error(err))
	} else {
		s.logger.Debug(ctx, "request rejected", zap.String("kind", body.Kind), zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, ErrorResponse{Error: body})
	}
	if err != nil {
		s.logger.Warn(ctx, "failed to write error response", zap.Error(err))
	}
}
