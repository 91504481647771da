package database

// Image is a stored image record. Records are replaced as a whole on Put and
// never mutated in place.
type Image struct {
	ID     string `db:"id"`
	Binary []byte `db:"binary"` // original full-resolution image data
}
