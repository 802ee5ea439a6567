package stress

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type NetworkConfig struct {
	BandwidthLimitKbps int // 0 = unlimited
	LatencyMs          int
	PacketLossPercent  int
	Duration           time.Duration
	TargetInterface    string
}

// commandRunner abstracts the tc invocations so tests can record them.
type commandRunner interface {
	LookPath(name string) (string, error)
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %v: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// NetworkStressor degrades a network interface with tc: an HTB rate
// ceiling and/or a netem delay/loss discipline. Rules are static for
// the run's duration and always torn down afterwards.
type NetworkStressor struct {
	run

	mu     sync.Mutex
	config NetworkConfig

	runner       commandRunner
	rulesApplied atomic.Bool
}

func NewNetworkStressor() *NetworkStressor {
	return &NetworkStressor{runner: execRunner{}}
}

func (s *NetworkStressor) Kind() Kind { return KindNetwork }

func (s *NetworkStressor) Start(cfg NetworkConfig) error {
	if cfg.TargetInterface == "" {
		cfg.TargetInterface = "wlan0"
	}

	if s.isRunning() {
		return ErrAlreadyRunning
	}
	if _, err := s.runner.LookPath("tc"); err != nil {
		return fmt.Errorf("tc not available (requires privilege and the tc tool): %w", err)
	}

	if !s.begin(cfg.Duration) {
		return ErrAlreadyRunning
	}

	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()

	log.Printf("network stress on %s: bandwidth=%d kbps latency=%d ms loss=%d%% for %s",
		cfg.TargetInterface, cfg.BandwidthLimitKbps, cfg.LatencyMs, cfg.PacketLossPercent, cfg.Duration)

	s.wg.Add(1)
	go s.worker(cfg)
	return nil
}

func (s *NetworkStressor) Stop() {
	s.halt()
	s.removeRules()
}

func (s *NetworkStressor) IsRunning() bool { return s.isRunning() }

func (s *NetworkStressor) worker(cfg NetworkConfig) {
	defer s.wg.Done()

	if err := s.applyRules(cfg); err != nil {
		log.Printf("network stress: apply rules: %v", err)
		s.markStopped()
		return
	}

	// The rules are static; just wait out the duration.
	deadline := s.deadline()
	for !s.stopRequested() && nowMs() < deadline {
		if !s.sleepInterruptible(time.Second) {
			break
		}
	}

	s.markStopped()
	s.removeRules()
}

func (s *NetworkStressor) applyRules(cfg NetworkConfig) error {
	ctx := context.Background()
	iface := cfg.TargetInterface

	// Clear any pre-existing rule set so disciplines never stack.
	s.deleteRootQdisc(iface)

	if cfg.BandwidthLimitKbps == 0 && cfg.LatencyMs == 0 && cfg.PacketLossPercent == 0 {
		s.rulesApplied.Store(true)
		return nil
	}

	if cfg.BandwidthLimitKbps > 0 {
		if err := s.runner.Run(ctx, "tc",
			"qdisc", "add", "dev", iface, "root", "handle", "1:", "htb", "default", "12"); err != nil {
			return err
		}
		rate := strconv.Itoa(cfg.BandwidthLimitKbps) + "kbit"
		if err := s.runner.Run(ctx, "tc",
			"class", "add", "dev", iface, "parent", "1:", "classid", "1:12",
			"htb", "rate", rate, "ceil", rate); err != nil {
			s.deleteRootQdisc(iface)
			return err
		}
	}

	if cfg.LatencyMs > 0 || cfg.PacketLossPercent > 0 {
		args := []string{"qdisc", "add", "dev", iface}
		if cfg.BandwidthLimitKbps > 0 {
			args = append(args, "parent", "1:12", "handle", "10:", "netem")
		} else {
			args = append(args, "root", "netem")
		}
		if cfg.LatencyMs > 0 {
			args = append(args, "delay", strconv.Itoa(cfg.LatencyMs)+"ms")
		}
		if cfg.PacketLossPercent > 0 {
			args = append(args, "loss", strconv.Itoa(cfg.PacketLossPercent)+"%")
		}
		if err := s.runner.Run(ctx, "tc", args...); err != nil {
			s.deleteRootQdisc(iface)
			return err
		}
	}

	s.rulesApplied.Store(true)
	return nil
}

// deleteRootQdisc drops the interface's root discipline and everything
// under it. Deleting an absent qdisc errors at the tc level; that is
// expected and ignored.
func (s *NetworkStressor) deleteRootQdisc(iface string) {
	s.runner.Run(context.Background(), "tc", "qdisc", "del", "dev", iface, "root")
}

func (s *NetworkStressor) removeRules() {
	if !s.rulesApplied.Load() {
		return
	}

	s.mu.Lock()
	iface := s.config.TargetInterface
	s.mu.Unlock()

	s.deleteRootQdisc(iface)
	s.rulesApplied.Store(false)
	log.Printf("network stress: shaping rules removed from %s", iface)
}

func (s *NetworkStressor) Status() Status {
	status := Status{
		Kind:        KindNetwork,
		Running:     s.isRunning(),
		RemainingMs: s.remainingMs(),
		Data:        map[string]string{},
	}

	if status.Running {
		s.mu.Lock()
		cfg := s.config
		s.mu.Unlock()
		status.Data["interface"] = cfg.TargetInterface
		status.Data["bandwidthLimitKbps"] = strconv.Itoa(cfg.BandwidthLimitKbps)
		status.Data["latencyMs"] = strconv.Itoa(cfg.LatencyMs)
		status.Data["packetLossPercent"] = strconv.Itoa(cfg.PacketLossPercent)
		status.Data["rulesApplied"] = strconv.FormatBool(s.rulesApplied.Load())
	}

	return status
}
