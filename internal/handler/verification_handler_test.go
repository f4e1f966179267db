package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rec-workflow-api/internal/dto"
	"github.com/noah-isme/rec-workflow-api/internal/middleware"
	"github.com/noah-isme/rec-workflow-api/internal/models"
	"github.com/noah-isme/rec-workflow-api/pkg/jobs"
)

type verificationServiceMock struct {
	verifyResp     *models.Document
	verifyErr      error
	completeResp   *dto.ConsolidationResult
	completeErr    error
	verifyCalled   bool
	completeCalled bool
	lastDocID      string
}

func (m *verificationServiceMock) Verify(ctx context.Context, documentID string, req dto.VerifyDocumentRequest, actor *models.JWTClaims) (*models.Document, error) {
	m.verifyCalled = true
	m.lastDocID = documentID
	return m.verifyResp, m.verifyErr
}

func (m *verificationServiceMock) Undo(ctx context.Context, documentID string, actor *models.JWTClaims) (*models.Document, error) {
	return m.verifyResp, m.verifyErr
}

func (m *verificationServiceMock) Complete(ctx context.Context, submissionID string, actor *models.JWTClaims) (*dto.ConsolidationResult, error) {
	m.completeCalled = true
	return m.completeResp, m.completeErr
}

type enqueuerMock struct {
	jobs []jobs.Job
	err  error
}

func (m *enqueuerMock) Enqueue(job jobs.Job) error {
	m.jobs = append(m.jobs, job)
	return m.err
}

func staffClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff}
}

func TestVerificationHandlerVerify(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &verificationServiceMock{
		verifyResp: &models.Document{ID: "doc-1"},
	}
	handler := NewVerificationHandler(mockSvc, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/documents/doc-1/verify", bytes.NewBufferString(`{"approved":true}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}
	c.Set(middleware.ContextUserKey, staffClaims())

	handler.Verify(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.verifyCalled)
	assert.Equal(t, "doc-1", mockSvc.lastDocID)
}

func TestVerificationHandlerVerifyInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewVerificationHandler(&verificationServiceMock{}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/documents/doc-1/verify", bytes.NewBufferString(`{"approved":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, staffClaims())

	handler.Verify(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerificationHandlerComplete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &verificationServiceMock{
		completeResp: &dto.ConsolidationResult{DocumentID: "doc-c", PageCount: 9},
	}
	handler := NewVerificationHandler(mockSvc, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/submissions/sub-1/verification/complete", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	c.Set(middleware.ContextUserKey, staffClaims())

	handler.Complete(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.completeCalled)
}

func TestVerificationHandlerReconsolidateEnqueues(t *testing.T) {
	gin.SetMode(gin.TestMode)
	queue := &enqueuerMock{}
	handler := NewVerificationHandler(&verificationServiceMock{}, queue)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/submissions/sub-1/consolidate", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "sec-1", Role: models.RoleSecretariat})

	handler.Reconsolidate(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "sub-1", queue.jobs[0].Payload)
}
