//go:build !linux

package probe

// CheckRawPrivileges always succeeds off Linux; the socket open reports the
// real answer.
func CheckRawPrivileges() error { return nil }
