package sentinel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zeebo/blake3"
)

const (
	// GracePeriod is the time to wait after SIGTERM before sending SIGKILL.
	GracePeriod = 10 * time.Second

	// InitialBackoff is the initial delay before restarting after an abnormal exit.
	InitialBackoff = 5 * time.Second

	// MaxBackoff is the maximum delay between restarts.
	MaxBackoff = 10 * time.Minute

	BackoffFactor = 2.0

	// SuccessRunTime is how long the child must run before backoff resets.
	SuccessRunTime = 30 * time.Second

	// DebounceInterval is the delay after an fsnotify event before the file is
	// hashed again.
	DebounceInterval = 100 * time.Millisecond
)

// Digest is the blake3 sum of a watched file. A missing file has the zero
// digest.
type Digest [32]byte

func (d Digest) Short() string {
	return fmt.Sprintf("%x", d[:8])
}

// Config describes the child to supervise. Zero durations take the package
// defaults.
type Config struct {
	// Command and Args start the child, e.g. the current binary with "serve".
	Command string
	Args    []string
	// Watch lists files whose content change restarts the child. Files may
	// not exist yet.
	Watch []string

	GracePeriod    time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	SuccessRunTime time.Duration
	Debounce       time.Duration

	Stdout io.Writer
	Stderr io.Writer
}

func (c *Config) setDefaults() {
	if c.GracePeriod <= 0 {
		c.GracePeriod = GracePeriod
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = MaxBackoff
	}
	if c.SuccessRunTime <= 0 {
		c.SuccessRunTime = SuccessRunTime
	}
	if c.Debounce <= 0 {
		c.Debounce = DebounceInterval
	}
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}
}

// Sentinel restarts a child process when it exits, backing off on repeated
// crashes, and restarts it immediately when a watched file changes.
type Sentinel struct {
	cfg     Config
	watch   []string
	digests map[string]Digest
	backoff time.Duration
	logger  *slog.Logger
}

func New(cfg Config) (*Sentinel, error) {
	if cfg.Command == "" {
		return nil, errors.New("sentinel: command is required")
	}
	cfg.setDefaults()
	s := &Sentinel{
		cfg:     cfg,
		digests: make(map[string]Digest),
		backoff: cfg.InitialBackoff,
		logger:  slog.Default().With("component", "sentinel"),
	}
	for _, p := range cfg.Watch {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("sentinel: resolve %s: %w", p, err)
		}
		// Resolve symlinks so we watch the real file location.
		if real, err := filepath.EvalSymlinks(abs); err == nil {
			abs = real
		}
		d, err := HashFile(abs)
		if err != nil {
			return nil, err
		}
		s.watch = append(s.watch, abs)
		s.digests[abs] = d
		s.logger.Info("watching file", "path", abs, "digest", d.Short())
	}
	return s, nil
}

// Executable returns the path of the running binary with symlinks resolved.
func Executable() (string, error) {
	p, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable path: %w", err)
	}
	return filepath.EvalSymlinks(p)
}

// Run supervises the child until ctx is done, then stops it and returns.
func (s *Sentinel) Run(ctx context.Context) error {
	updateCh := make(chan string, 1)
	if len(s.watch) > 0 {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("sentinel: create watcher: %w", err)
		}
		defer watcher.Close()
		dirs := map[string]bool{}
		for _, p := range s.watch {
			// Watch the parent directory so atomic replaces (write temp file,
			// rename) are seen.
			dir := filepath.Dir(p)
			if dirs[dir] {
				continue
			}
			err := watcher.Add(dir)
			if errors.Is(err, os.ErrNotExist) {
				s.logger.Warn("directory of watched file does not exist, not watching", "dir", dir)
				continue
			}
			if err != nil {
				return fmt.Errorf("sentinel: watch %s: %w", dir, err)
			}
			dirs[dir] = true
		}
		go s.watchFiles(ctx, watcher, updateCh)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		child, err := s.startChild()
		if err != nil {
			s.logger.Error("failed to start child", "error", err)
			s.sleepBackoff(ctx)
			s.increaseBackoff()
			continue
		}
		startTime := time.Now()
		childDone := make(chan error, 1)
		go func() {
			childDone <- child.Wait()
		}()

		select {
		case err := <-childDone:
			elapsed := time.Since(startTime)
			if elapsed >= s.cfg.SuccessRunTime {
				s.backoff = s.cfg.InitialBackoff
			}
			if err != nil {
				s.logger.Warn("child exited with error", "elapsed", elapsed, "error", err)
			} else {
				// serve normally runs until signalled, so a clean exit still
				// gets restarted.
				s.logger.Info("child exited cleanly", "elapsed", elapsed)
			}
			s.sleepBackoff(ctx)
			s.increaseBackoff()

		case path := <-updateCh:
			s.logger.Info("watched file changed, restarting child", "path", path)
			s.stopChild(ctx, child, childDone)
			s.backoff = s.cfg.InitialBackoff

		case <-ctx.Done():
			s.logger.Info("stopping child and shutting down")
			s.stopChild(ctx, child, childDone)
			return nil
		}
	}
}

func (s *Sentinel) startChild() (*exec.Cmd, error) {
	cmd := exec.Command(s.cfg.Command, s.cfg.Args...)
	cmd.Stdout = s.cfg.Stdout
	cmd.Stderr = s.cfg.Stderr
	// Child inherits environment (TASKCREW_* and the capacity variables).
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("exec %s: %w", s.cfg.Command, err)
	}
	s.logger.Info("started child process", "pid", cmd.Process.Pid, "args", s.cfg.Args)
	return cmd, nil
}

// stopChild sends SIGTERM and escalates to SIGKILL after the grace period.
// It returns once the child has exited.
func (s *Sentinel) stopChild(_ context.Context, cmd *exec.Cmd, childDone <-chan error) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		s.logger.Warn("failed to send SIGTERM, child may have exited", "pid", pid, "error", err)
	}
	select {
	case <-childDone:
	case <-time.After(s.cfg.GracePeriod):
		s.logger.Warn("grace period expired, killing child", "pid", pid)
		if err := cmd.Process.Kill(); err != nil {
			s.logger.Error("failed to kill child", "pid", pid, "error", err)
		}
		<-childDone
	}
}

func (s *Sentinel) watchFiles(ctx context.Context, watcher *fsnotify.Watcher, updateCh chan<- string) {
	timers := map[string]*time.Timer{}
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()
	changed := make(chan string, len(s.watch))

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if _, watched := s.digests[event.Name]; !watched {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			// Let bursts of events (write + rename) settle before hashing.
			name := event.Name
			if t, ok := timers[name]; ok {
				t.Stop()
			}
			timers[name] = time.AfterFunc(s.cfg.Debounce, func() {
				select {
				case changed <- name:
				default:
				}
			})
		case path := <-changed:
			d, err := HashFile(path)
			if err != nil {
				s.logger.Warn("failed to hash watched file", "path", path, "error", err)
				continue
			}
			if d == s.digests[path] {
				s.logger.Debug("filesystem event but digest unchanged", "path", path)
				continue
			}
			s.logger.Info("digest changed", "path", path, "old", s.digests[path].Short(), "new", d.Short())
			s.digests[path] = d
			select {
			case updateCh <- path:
			default:
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("fsnotify error", "error", err)
		}
	}
}

// HashFile returns the blake3 digest of the file at path, or the zero
// digest when it does not exist.
func HashFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Digest{}, nil
	}
	if err != nil {
		return Digest{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return Digest{}, fmt.Errorf("hash %s: %w", path, err)
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

// sleepBackoff waits for the current backoff or until ctx is done.
func (s *Sentinel) sleepBackoff(ctx context.Context) {
	s.logger.Info("waiting before restart", "backoff", s.backoff)
	select {
	case <-time.After(s.backoff):
	case <-ctx.Done():
	}
}

func (s *Sentinel) increaseBackoff() {
	s.backoff = time.Duration(float64(s.backoff) * BackoffFactor)
	if s.backoff > s.cfg.MaxBackoff {
		s.backoff = s.cfg.MaxBackoff
	}
}
