package model

import "time"

// Blob is a stored binary asset referenced by Recommendation.ImageRef.
type Blob struct {
	Ref         string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}
