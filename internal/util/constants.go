package util

const (
	IdempotencyHeader    = "Idempotency-Key"
	MaxIdempotencyKeyLen = 64
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)
