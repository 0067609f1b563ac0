package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/dshills/muxstorm/internal/muxerr"
)

// probeTimeout bounds a dial made only to see whether a server answers.
const probeTimeout = 500 * time.Millisecond

// listener is the server's socket and the lock that makes it the only
// server on that path.
type listener struct {
	net.Listener
	path string
	lock *flock.Flock
}

// lockPath returns the lock file guarding socket.
func lockPath(socket string) string {
	return socket + ".lock"
}

// listen takes the socket's lock, removes a stale socket left by a dead
// server and binds a fresh one.
func listen(path string) (*listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	lock := flock.New(lockPath(path))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire socket lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", path, muxerr.ErrServerRunning)
	}

	if st, err := os.Lstat(path); err == nil {
		if st.Mode()&os.ModeSocket == 0 {
			_ = lock.Unlock()
			return nil, fmt.Errorf("socket path exists and is not a unix socket: %s", path)
		}
		if err := os.Remove(path); err != nil {
			_ = lock.Unlock()
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		_ = lock.Unlock()
		return nil, fmt.Errorf("stat socket path: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("listen: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return &listener{Listener: ln, path: path, lock: lock}, nil
}

// Close stops accepting, removes the socket and releases the lock.
func (l *listener) Close() error {
	var errs muxerr.ErrorList
	if err := l.Listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs.Add(err)
	}
	// net.UnixListener unlinks the path on Close; this covers the rest.
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs.Add(err)
	}
	if err := l.lock.Unlock(); err != nil {
		errs.Add(fmt.Errorf("release socket lock: %w", err))
	}
	return errs.AsError()
}

// Dial connects to the server on path. It returns an error wrapping
// muxerr.ErrNoServer when nothing is listening there.
func Dial(path string) (net.Conn, error) {
	conn, err := net.DialTimeout("unix", path, probeTimeout)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, muxerr.ErrNoServer)
		}
		return nil, fmt.Errorf("dial %s: %w", path, err)
	}
	return conn, nil
}

// Probe reports whether a server answers on path.
func Probe(path string) bool {
	conn, err := Dial(path)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// ListSessions returns the sockets in dir that a live server answers on,
// sorted by name.
func ListSessions(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.sock"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	live := paths[:0]
	for _, p := range paths {
		if Probe(p) {
			live = append(live, p)
		}
	}
	return live, nil
}
