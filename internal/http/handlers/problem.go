// Package handlers provides the HTTP API handlers for aura.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/auralabs/aura/internal/models"
	"github.com/auralabs/aura/internal/observability"
	"github.com/auralabs/aura/internal/queue"
	"github.com/auralabs/aura/internal/validate"
)

// problemTypeBase prefixes the error taxonomy code in problem responses.
const problemTypeBase = "https://auralabs.github.io/aura/errors"

// Problem is the uniform error response body. The Type fragment carries the
// taxonomy code so clients can switch on it without string-matching Detail.
type Problem struct {
	Type          string           `json:"type"`
	Title         string           `json:"title"`
	Status        int              `json:"status"`
	Detail        string           `json:"detail,omitempty"`
	CorrelationID string           `json:"correlationId,omitempty"`
	Issues        []validate.Issue `json:"issues,omitempty"`
}

// Error implements the error interface.
func (p *Problem) Error() string { return p.Detail }

// GetStatus lets huma use the problem as the response body directly.
func (p *Problem) GetStatus() int { return p.Status }

// ContentType returns the RFC 7807 media type.
func (p *Problem) ContentType(string) string { return "application/problem+json" }

// newProblem builds a problem with the taxonomy code in the type URI.
func newProblem(ctx context.Context, status int, code models.ErrorCode, detail string) *Problem {
	return &Problem{
		Type:          fmt.Sprintf("%s#%s", problemTypeBase, code),
		Title:         http.StatusText(status),
		Status:        status,
		Detail:        detail,
		CorrelationID: observability.CorrelationIDFromContext(ctx),
	}
}

// problemFromError maps service errors onto problem responses.
func problemFromError(ctx context.Context, err error) error {
	var admission *queue.AdmissionError
	if errors.As(err, &admission) {
		p := newProblem(ctx, http.StatusBadRequest, admissionCode(admission), admission.Error())
		p.Issues = admission.Result.Issues
		return p
	}

	if errors.Is(err, models.ErrJobNotFound) {
		return newProblem(ctx, http.StatusNotFound, models.ErrCodeValidation, "job not found")
	}
	if errors.Is(err, queue.ErrShuttingDown) {
		return newProblem(ctx, http.StatusServiceUnavailable, models.ErrCodeCancelled, queue.ErrShuttingDown.Error())
	}

	se := models.ClassifyError(err)
	status := http.StatusInternalServerError
	switch se.Code {
	case models.ErrCodeValidation, models.ErrCodeConfigConflict:
		status = http.StatusBadRequest
	case models.ErrCodeNoEncoder, models.ErrCodeProviderUnavailable:
		status = http.StatusFailedDependency
	}
	return newProblem(ctx, status, se.Code, se.Message)
}

// admissionCode picks the taxonomy code for a rejected submission: the first
// error-severity issue names the actual cause, validation otherwise.
func admissionCode(admission *queue.AdmissionError) models.ErrorCode {
	for _, issue := range admission.Result.Issues {
		if issue.Severity == validate.SeverityError {
			return issue.Code
		}
	}
	return models.ErrCodeValidation
}

// parseJobID turns a path parameter into a ULID or a 404 problem. Malformed
// ids are indistinguishable from unknown ones to the client.
func parseJobID(ctx context.Context, raw string) (models.ULID, error) {
	id, err := models.ParseULID(raw)
	if err != nil {
		return models.ULID{}, newProblem(ctx, http.StatusNotFound, models.ErrCodeValidation, "job not found")
	}
	return id, nil
}
