package sysmem

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Errors
var (
	ErrNoProcess = errors.New("process handle unavailable")
)

// Signal samples system and process memory. One system reading is reused for
// the configured TTL.
type Signal struct {
	ttl    time.Duration
	logger *slog.Logger

	proc *process.Process

	mu        sync.Mutex
	sampledAt time.Time
	usedFrac  float64
}

// New creates a Signal. A zero TTL disables caching.
func New(ttl time.Duration, logger *slog.Logger) *Signal {
	if logger == nil {
		logger = slog.Default()
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn("process handle unavailable, RSS reporting disabled",
			"error", err,
		)
		proc = nil
	}

	return &Signal{
		ttl:    ttl,
		logger: logger,
		proc:   proc,
	}
}

// UsedFraction returns the system memory used fraction in [0, 1].
func (s *Signal) UsedFraction() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sampledAt.IsZero() && time.Since(s.sampledAt) < s.ttl {
		return s.usedFrac, nil
	}

	vmem, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("read system memory: %w", err)
	}

	s.usedFrac = vmem.UsedPercent / 100
	s.sampledAt = time.Now()
	return s.usedFrac, nil
}

// ProcessRSS returns the resident set size of this process in bytes.
func (s *Signal) ProcessRSS() (uint64, error) {
	if s.proc == nil {
		return 0, ErrNoProcess
	}

	info, err := s.proc.MemoryInfo()
	if err != nil {
		return 0, fmt.Errorf("read process memory: %w", err)
	}
	return info.RSS, nil
}
