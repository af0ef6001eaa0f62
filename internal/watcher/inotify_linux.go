//go:build linux

package watcher

import (
	"context"
	"os"

	"golang.org/x/sys/unix"
)

// watchDirEvents subscribes to close-write and move-in events on dir and
// signals on the returned channel whenever one arrives. The channel carries
// no payload; the poll loop rescans the directory and applies the usual
// stability checks, so a spurious wakeup costs one extra scan at most.
func watchDirEvents(ctx context.Context, dir string) (<-chan struct{}, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return nil, err
	}
	if _, err := unix.InotifyAddWatch(fd, dir, unix.IN_CLOSE_WRITE|unix.IN_MOVED_TO); err != nil {
		unix.Close(fd)
		return nil, err
	}

	events := make(chan struct{}, 1)
	file := os.NewFile(uintptr(fd), "inotify")

	go func() {
		<-ctx.Done()
		file.Close()
	}()

	go func() {
		defer close(events)
		buf := make([]byte, 4096)
		for {
			if _, err := file.Read(buf); err != nil {
				return
			}
			select {
			case events <- struct{}{}:
			default:
			}
		}
	}()

	return events, nil
}
