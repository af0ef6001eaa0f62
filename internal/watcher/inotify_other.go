//go:build !linux

package watcher

import (
	"context"
	"errors"
)

func watchDirEvents(_ context.Context, _ string) (<-chan struct{}, error) {
	return nil, errors.New("inotify watching requires linux")
}
