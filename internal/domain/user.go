package domain

// User is a row in the users table. PasswordHash holds the bcrypt hash of
// the user's password; Image is nil when no image reference is stored.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Image        *string
}
