package scheduler

import (
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"roommap/server/internal/viewport"
)

// CommandKind represents the different camera and sheet transitions
type CommandKind int

const (
	CommandCameraMove CommandKind = iota
	CommandSheetToggle
)

// String returns the string representation of a CommandKind
func (k CommandKind) String() string {
	switch k {
	case CommandCameraMove:
		return "camera_move"
	case CommandSheetToggle:
		return "sheet_toggle"
	default:
		return "unknown"
	}
}

// MarshalText lets CommandKind appear by name in JSON.
func (k CommandKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Default animation lengths.
const (
	DefaultCameraDuration = 500 * time.Millisecond
	DefaultSheetDuration  = 250 * time.Millisecond
)

// Command is a fire-and-forget visual transition with a fixed duration.
type Command struct {
	Seq      uint64             `json:"seq"`
	Kind     CommandKind        `json:"kind"`
	Target   *viewport.Viewport `json:"target,omitempty"` // camera moves only
	Open     bool               `json:"open"`             // sheet toggles only
	Duration time.Duration      `json:"duration"`
	IssuedAt time.Time          `json:"issuedAt"`
}

// Done reports whether the command has finished at now.
func (c Command) Done(now time.Time) bool {
	return !now.Before(c.IssuedAt.Add(c.Duration))
}

// Progress returns how far the transition is at now, in [0, 1].
func (c Command) Progress(now time.Time) float64 {
	if c.Duration <= 0 {
		return 1
	}
	p := float64(now.Sub(c.IssuedAt)) / float64(c.Duration)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// Scheduler tracks at most one in-flight command per kind. A new command of a kind
// replaces the running one; nothing is queued.
type Scheduler struct {
	logger     *logrus.Logger
	mu         sync.Mutex
	seq        uint64
	inFlight   map[CommandKind]Command
	onComplete func(Command)
	stopChan   chan struct{}
	wg         sync.WaitGroup
	running    bool
}

// NewScheduler creates a new scheduler
func NewScheduler(logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	return &Scheduler{
		logger:   logger,
		inFlight: make(map[CommandKind]Command),
	}
}

// OnComplete registers a function called once for every command that finishes.
// Superseded commands never complete.
func (s *Scheduler) OnComplete(fn func(Command)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onComplete = fn
}

// MoveCamera issues a camera move to target.
func (s *Scheduler) MoveCamera(target viewport.Viewport, duration time.Duration, now time.Time) Command {
	return s.Issue(Command{Kind: CommandCameraMove, Target: &target, Duration: duration}, now)
}

// ToggleSheet issues a sheet open or close animation.
func (s *Scheduler) ToggleSheet(open bool, duration time.Duration, now time.Time) Command {
	return s.Issue(Command{Kind: CommandSheetToggle, Open: open, Duration: duration}, now)
}

// Issue starts cmd at now, superseding any in-flight command of the same kind.
func (s *Scheduler) Issue(cmd Command, now time.Time) Command {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cmd.Duration < 0 {
		cmd.Duration = 0
	}
	s.seq++
	cmd.Seq = s.seq
	cmd.IssuedAt = now

	if prev, ok := s.inFlight[cmd.Kind]; ok {
		s.logger.WithFields(logrus.Fields{
			"kind":          cmd.Kind.String(),
			"superseded":    prev.Seq,
			"superseded_by": cmd.Seq,
		}).Debug("Command superseded")
	}
	s.inFlight[cmd.Kind] = cmd
	return cmd
}

// InFlight returns the running command of a kind.
func (s *Scheduler) InFlight(kind CommandKind) (Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.inFlight[kind]
	return cmd, ok
}

// Tick retires every command that has finished at now and returns them. Each
// command is reported by exactly one Tick.
func (s *Scheduler) Tick(now time.Time) []Command {
	s.mu.Lock()
	var done []Command
	for kind, cmd := range s.inFlight {
		if cmd.Done(now) {
			done = append(done, cmd)
			delete(s.inFlight, kind)
		}
	}
	onComplete := s.onComplete
	s.mu.Unlock()

	for _, cmd := range done {
		s.logger.WithFields(logrus.Fields{
			"kind": cmd.Kind.String(),
			"seq":  cmd.Seq,
		}).Debug("Command completed")
		if onComplete != nil {
			onComplete(cmd)
		}
	}
	return done
}

// Start drives Tick from a ticker until Stop is called.
func (s *Scheduler) Start(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.wg.Add(1)
	go s.run(interval, s.stopChan)
}

func (s *Scheduler) run(interval time.Duration, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case t := <-ticker.C:
			s.Tick(t)
		}
	}
}

// Stop gracefully stops the ticker loop
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()
	s.wg.Wait()
}
