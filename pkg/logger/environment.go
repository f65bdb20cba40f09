package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

const sdkVersion = "1.0.0"

type processEnvironment struct {
	url       string
	userAgent string
}

// NewProcessEnvironment describes the running process. An empty url is
// replaced by app://<hostname>/<executable>.
func NewProcessEnvironment(url string) Environment {
	if url == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "localhost"
		}
		url = fmt.Sprintf("app://%s/%s", host, filepath.Base(os.Args[0]))
	}
	return &processEnvironment{
		url:       url,
		userAgent: fmt.Sprintf("clientlog/%s (%s; %s) %s", sdkVersion, runtime.GOOS, runtime.GOARCH, runtime.Version()),
	}
}

func (e *processEnvironment) Now() time.Time {
	return time.Now()
}

func (e *processEnvironment) URL() string {
	return e.url
}

func (e *processEnvironment) UserAgent() string {
	return e.userAgent
}

// StaticEnvironment returns fixed values. A zero Time falls back to time.Now.
type StaticEnvironment struct {
	Time    time.Time
	PageURL string
	Agent   string
}

func (e StaticEnvironment) Now() time.Time {
	if e.Time.IsZero() {
		return time.Now()
	}
	return e.Time
}

func (e StaticEnvironment) URL() string {
	return e.PageURL
}

func (e StaticEnvironment) UserAgent() string {
	return e.Agent
}
