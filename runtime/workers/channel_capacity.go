package workers

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"
)

type NamedChannel struct {
	Name    string
	Channel any
}

// ChannelCapacity is one sample of a buffered channel.
type ChannelCapacity struct {
	ChannelName string
	Capacity    int
	Length      int
}

// ChannelCapacityWorker periodically samples internal queues and warns when
// one of them is close to full. Reading len and cap never blocks.
type ChannelCapacityWorker struct {
	log                  *slog.Logger
	channels             []NamedChannel
	metricInterval       time.Duration
	lowCapacityThreshold int
}

func NewChannelCapacityWorker(log *slog.Logger, channels []NamedChannel,
	metricInterval time.Duration, lowCapacityThreshold int) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:                  log,
		channels:             channels,
		metricInterval:       metricInterval,
		lowCapacityThreshold: lowCapacityThreshold,
	}
}

func (w ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping capacity sampling")
			return nil
		case <-ticker.C:
			for _, sample := range w.Sample() {
				w.handle(sample)
			}
		}
	}
}

// Sample reads the current usage of every monitored channel.
func (w ChannelCapacityWorker) Sample() []ChannelCapacity {
	samples := make([]ChannelCapacity, 0, len(w.channels))
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		samples = append(samples, ChannelCapacity{ChannelName: nc.Name, Capacity: v.Cap(), Length: v.Len()})
	}
	return samples
}

// IsLow reports whether a buffered channel has at most threshold free slots.
func (c ChannelCapacity) IsLow(threshold int) bool {
	if c.Capacity <= 0 {
		// Unbuffered
		return false
	}
	return c.Capacity-c.Length <= threshold
}

func (w ChannelCapacityWorker) handle(sample ChannelCapacity) {
	w.log.Debug(fmt.Sprintf("Channel %s usage: %d / %d", sample.ChannelName, sample.Length, sample.Capacity))
	if sample.IsLow(w.lowCapacityThreshold) {
		w.log.Warn("Channel close to full", "name", sample.ChannelName,
			"capacity_left", sample.Capacity-sample.Length)
	}
}
