package util

import (
	"os"
	"os/user"
)

// CurrentUser is the login name used when an SSH target omits one.
func CurrentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "root"
}
