package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// SessionCounter reports how many users are currently bound to a socket.
type SessionCounter interface {
	Len() int
}

// ProcessHealth is one sample of the relay process.
type ProcessHealth struct {
	PID            int32
	Status         string
	CPUPercent     float64
	MemoryPercent  float32
	OnlineSessions int
}

// ProcessHealthWorker periodically logs the relay's own cpu and memory usage
// next to the number of online sessions.
type ProcessHealthWorker struct {
	log            *slog.Logger
	sessions       SessionCounter
	metricInterval time.Duration
	pid            int32
}

func NewProcessHealthWorker(log *slog.Logger, sessions SessionCounter, metricInterval time.Duration) *ProcessHealthWorker {
	return &ProcessHealthWorker{
		log:            log,
		sessions:       sessions,
		metricInterval: metricInterval,
		pid:            int32(os.Getpid()),
	}
}

func (w *ProcessHealthWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping process health sampling")
			return nil
		case <-ticker.C:
			health, err := w.Sample()
			if err != nil {
				// Returning restarts the worker after the supervisor's interval
				return err
			}
			w.log.Info("Relay health",
				"pid", health.PID,
				"status", health.Status,
				"cpu", health.CPUPercent,
				"ram", health.MemoryPercent,
				"online_sessions", health.OnlineSessions)
		}
	}
}

func (w *ProcessHealthWorker) Sample() (ProcessHealth, error) {
	p, err := process.NewProcess(w.pid)
	if err != nil {
		return ProcessHealth{}, err
	}
	status, err := p.Status()
	if err != nil {
		return ProcessHealth{}, err
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		return ProcessHealth{}, err
	}
	ram, err := p.MemoryPercent()
	if err != nil {
		return ProcessHealth{}, err
	}
	return ProcessHealth{
		PID:            w.pid,
		Status:         status,
		CPUPercent:     cpu,
		MemoryPercent:  ram,
		OnlineSessions: w.sessions.Len(),
	}, nil
}
