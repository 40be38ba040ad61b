// Package homedir locates the user's home directory.
package homedir

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

func Get() string {
	h := os.Getenv("HOME")
	if h != "" {
		return h
	}

	usr, err := user.Current()
	if err != nil {
		panic(err)
	}
	return usr.HomeDir
}

// Expand replaces a leading "~" path element with the home directory.
func Expand(path string) string {
	if path == "~" {
		return Get()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(Get(), path[2:])
	}
	return path
}
