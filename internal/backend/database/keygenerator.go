package database

import "time"

// idLayout renders UTC timestamps with millisecond precision so that ids sort
// lexicographically in creation order.
const idLayout = "2006-01-02T15:04:05.000Z"

// GenerateID returns the image id for an image created at the given time.
func GenerateID(createdAt time.Time) string {
	return createdAt.UTC().Format(idLayout)
}
