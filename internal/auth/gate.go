// Package auth holds the single shared credential check and the signed
// session that proves a browser passed it.
package auth

import "crypto/subtle"

// Gate compares submitted credentials against the configured pair.
type Gate struct {
	username string
	password string
}

func NewGate(username, password string) *Gate {
	return &Gate{username: username, password: password}
}

// Configured reports whether both credentials are set.
func (g *Gate) Configured() bool {
	return g.username != "" && g.password != ""
}

// Check returns true only for an exact match. An unconfigured gate rejects
// every attempt.
func (g *Gate) Check(username, password string) bool {
	if !g.Configured() {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(g.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(g.password)) == 1
	return userOK && passOK
}
