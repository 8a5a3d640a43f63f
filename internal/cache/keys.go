package cache

// KeyCart returns the substrate key of a session's cart.
func KeyCart(sessionID string) string {
	return "cart:" + sessionID
}

// KeyConfig returns the substrate key of a session's configuration state.
func KeyConfig(sessionID string) string {
	return "config:" + sessionID
}

// KeyCartLock returns the lock key serialising cart mutations for a session.
func KeyCartLock(sessionID string) string {
	return "lock:cart:" + sessionID
}

// KeyConfigLock returns the lock key serialising configuration updates for a session.
func KeyConfigLock(sessionID string) string {
	return "lock:config:" + sessionID
}

// KeyCheckoutLock returns the guard key held while a session's checkout is in flight.
func KeyCheckoutLock(sessionID string) string {
	return "lock:checkout:" + sessionID
}
