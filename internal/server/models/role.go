package models

// Role is a plaintext access role referenced by identities.
type Role struct {
	ID   int64
	Name string
}
