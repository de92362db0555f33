package session

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const lockName = ".session.lock"

// ErrLocked reports another console holding the session for the same state directory.
var ErrLocked = errors.New("session locked")

type Options struct {
	// StaleAfter lets a lock whose owner cannot be identified be reclaimed once it is this old.
	// Zero disables age based takeover.
	StaleAfter time.Duration
	Now        func() time.Time
}

// Lock is held for the lifetime of one operator console.
type Lock struct {
	path string
	file *os.File
}

type owner struct {
	pid      int
	exchange string
	started  time.Time
}

// Acquire claims dir/<exchange>/.session.lock. A lock left behind by a dead
// process, or one older than StaleAfter without a live owner, is taken over.
func Acquire(dir, exchange string, opts Options) (*Lock, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state dir required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	root := dir
	if exchange != "" {
		root = filepath.Join(dir, exchange)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, lockName)

	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			now := opts.Now().UTC()
			if _, werr := fmt.Fprintf(f, "pid=%d\nexchange=%s\nstarted_at=%s\n", os.Getpid(), exchange, now.Format(time.RFC3339)); werr != nil {
				_ = f.Close()
				_ = os.Remove(path)
				return nil, werr
			}
			return &Lock{path: path, file: f}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}

		held, rerr := readOwner(path)
		if rerr != nil {
			if errors.Is(rerr, os.ErrNotExist) {
				continue
			}
			return nil, rerr
		}
		stale, why := isStale(held, opts)
		if !stale {
			return nil, fmt.Errorf("%w: %s pid=%d exchange=%s (%s)", ErrLocked, path, held.pid, held.exchange, why)
		}
		log.Printf("level=WARN event=session_lock_takeover path=%q owner_pid=%d reason=%s", path, held.pid, why)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s (contended)", ErrLocked, path)
}

func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	var errs []error
	if l.file != nil {
		errs = append(errs, l.file.Close())
		l.file = nil
	}
	if l.path != "" {
		if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
		l.path = ""
	}
	return errors.Join(errs...)
}

func isStale(o owner, opts Options) (bool, string) {
	if o.pid > 0 {
		if processAlive(o.pid) {
			return false, "owner_running"
		}
		return true, "owner_gone"
	}
	if opts.StaleAfter <= 0 {
		return false, "unknown_owner"
	}
	if o.started.IsZero() {
		return true, "no_started_at"
	}
	if opts.Now().Sub(o.started) >= opts.StaleAfter {
		return true, "expired"
	}
	return false, "not_stale"
}

func readOwner(path string) (owner, error) {
	f, err := os.Open(path)
	if err != nil {
		return owner{}, err
	}
	defer f.Close()

	var o owner
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		k, v, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch k {
		case "pid":
			if pid, err := strconv.Atoi(v); err == nil {
				o.pid = pid
			}
		case "exchange":
			o.exchange = v
		case "started_at":
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				o.started = ts
			}
		}
	}
	return o, sc.Err()
}

func processAlive(pid int) bool {
	if pid == os.Getpid() {
		return true
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	if err == nil || errors.Is(err, syscall.EPERM) {
		return true
	}
	return false
}
