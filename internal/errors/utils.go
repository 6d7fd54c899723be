package errors

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// standard error codes
const (
	CodeUnauthorized       = "unauthorized"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not_found"
	CodeValidationError    = "validation_error"
	CodeServerError        = "server_error"
	CodeBadRequest         = "bad_request"
	CodeTooManyRequests    = "too_many_requests"
	CodeServiceUnavailable = "service_unavailable"
	CodeInvalidSignature   = "invalid_signature"
	CodeJobNotFound        = "job_not_found"
)

// error categories for classification
const (
	CategoryDatabase   = "database"
	CategoryNetwork    = "network"
	CategoryUpstream   = "upstream"
	CategoryValidation = "validation"
	CategoryAuth       = "auth"
	CategoryNotFound   = "not_found"
	CategoryTimeout    = "timeout"
	CategoryUnknown    = "unknown"
)

// production message per category
var sanitizedMessages = map[string]string{
	CategoryDatabase:   "database operation failed",
	CategoryNetwork:    "connection error occurred",
	CategoryUpstream:   "upstream service failed",
	CategoryValidation: "validation failed",
	CategoryAuth:       "permission denied",
	CategoryNotFound:   "resource not found",
	CategoryTimeout:    "request timed out",
	CategoryUnknown:    "an error occurred",
}

// message fragments for errors that carry no type; first match wins
var messageRules = []struct {
	category  string
	fragments []string
}{
	{CategoryTimeout, []string{"timeout", "deadline"}},
	{CategoryNotFound, []string{"not found", "no rows"}},
	{CategoryDatabase, []string{"database", "sql", "postgres", "pgx", "pgvector"}},
	{CategoryNetwork, []string{"connection", "network", "dial", "eof"}},
	{CategoryValidation, []string{"validation", "binding", "invalid", "required"}},
	{CategoryAuth, []string{"unauthorized", "forbidden", "permission", "auth", "signature"}},
}

// errors from remote services such as the embedding server
type retryableError interface {
	Retryable() bool
}

// Classify returns the error category used in logs and metric records
func Classify(err error) string {
	return classifyError(err).category
}

// analyzes an error and returns its category and sanitized message
func classifyError(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{CategoryUnknown, ""}
	}

	category := categoryOf(err)

	if os.Getenv("ENVIRONMENT") != "production" {
		return ErrorInfo{category, err.Error()}
	}

	return ErrorInfo{category, sanitizedMessages[category]}
}

func categoryOf(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return CategoryDatabase
	}

	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, redis.Nil) {
		return CategoryNotFound
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CategoryTimeout
	}

	var upstream retryableError
	if errors.As(err, &upstream) {
		return CategoryUpstream
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryNetwork
	}

	msg := strings.ToLower(err.Error())

	for _, rule := range messageRules {
		for _, fragment := range rule.fragments {
			if strings.Contains(msg, fragment) {
				return rule.category
			}
		}
	}

	return CategoryUnknown
}

// accepts only the canonical 36 character form
func IsValidUUID(id string) bool {
	if len(id) != 36 {
		return false
	}

	_, err := uuid.Parse(id)
	return err == nil
}
