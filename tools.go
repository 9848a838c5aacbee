//go:build tools
// +build tools

// Package tools pins build and lint tool dependencies into the module graph
// so that go generate and CI invocations resolve consistent versions.
package tools

import (
	_ "golang.org/x/lint/golint"
	_ "golang.org/x/tools/cmd/stringer"
)
