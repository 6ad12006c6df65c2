package model

// Identity is the authenticated caller handed over by the transport
// boundary. A nil *Identity means the caller is not signed in.
type Identity struct {
	UserID string
	Email  string
}
