// Package fileutil collects small filesystem helpers shared by the project
// loader, artifact cache, and sandbox: home directory resolution, a
// search-path file resolver, and filesystem-safe name derivation.
package fileutil

import (
	"log"
	"os"
)

// MustGetUserHomeDir returns the current user's home directory, exiting the
// process via log.Fatalf if it cannot be determined — called only during
// process startup, before any element is scheduled.
func MustGetUserHomeDir() string {
	hd, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("failed to get user home directory: %v", err)
	}
	return hd
}

// MustGetwd returns the current working directory, exiting the process via
// log.Fatalf on failure.
func MustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("failed to get working directory: %v", err)
	}
	return wd
}

// FileExists reports whether path names a file or directory that exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
