package user

// User is a shopper account. Carts are keyed by ID.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
}
