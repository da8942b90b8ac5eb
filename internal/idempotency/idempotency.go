// Package idempotency records the outcome of mutating requests that carry
// an Idempotency-Key so a retried request is answered from the record
// instead of being executed twice.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ErrUnavailable wraps backend failures.
var ErrUnavailable = errors.New("idempotency store unavailable")

// Record is one reserved or completed request.
type Record struct {
	Key            string    `json:"key" dynamodbav:"key"`
	UserID         string    `json:"user_id" dynamodbav:"user_id"`
	RequestHash    string    `json:"request_hash" dynamodbav:"request_hash"`
	Status         Status    `json:"status" dynamodbav:"status"`
	ResponseStatus int       `json:"response_status,omitempty" dynamodbav:"response_status,omitempty"`
	ContentType    string    `json:"content_type,omitempty" dynamodbav:"content_type,omitempty"`
	ResponseBody   []byte    `json:"response_body,omitempty" dynamodbav:"response_body,omitempty"`
	CreatedAt      time.Time `json:"created_at" dynamodbav:"created_at"`
	ExpiresAt      time.Time `json:"expires_at" dynamodbav:"expires_at"`
	// TTL mirrors ExpiresAt as epoch seconds for DynamoDB TTL expiry.
	TTL int64 `json:"-" dynamodbav:"ttl"`
}

// Expired reports whether the record is past its lifetime at now.
func (r *Record) Expired(now time.Time) bool { return !r.ExpiresAt.After(now) }

// Store is implemented by the Redis and DynamoDB backends.
type Store interface {
	// Reserve stores rec as pending unless a live record with the same key
	// exists, in which case that record is returned and nothing is written.
	Reserve(ctx context.Context, rec Record) (existing *Record, err error)
	// Complete overwrites the record with its final response.
	Complete(ctx context.Context, rec Record) error
	// Release deletes the record so the request may be retried.
	Release(ctx context.Context, key string) error
}

// Key derives the storage key from the caller, the route and the client
// supplied key, so two users cannot collide on the same header value.
func Key(userID, method, path, clientKey string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s:%s", userID, method, path, clientKey)))
	return hex.EncodeToString(sum[:])
}

// RequestHash fingerprints a request body.
func RequestHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// NewPending builds a pending record expiring ttl after now.
func NewPending(key, userID, requestHash string, now time.Time, ttl time.Duration) Record {
	exp := now.Add(ttl)
	return Record{
		Key:         key,
		UserID:      userID,
		RequestHash: requestHash,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   exp,
		TTL:         exp.Unix(),
	}
}
