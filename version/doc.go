// Package version reports the taskflow build version.
//
// Version, commit, branch and build time are set at link time:
//
//	go build -ldflags "-X github.com/kbukum/taskflow/version.Version=1.0.0"
//
// Missing values fall back to the VCS stamps in the binary's build info.
package version
