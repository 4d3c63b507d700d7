package metrics

import (
	"time"

	"github.com/cuemby/ecowatt/pkg/compression"
	"github.com/cuemby/ecowatt/pkg/storage"
	"github.com/cuemby/ecowatt/pkg/types"
)

// Collector periodically samples gauge-style state from the running
// subsystems and exports it to Prometheus. Counter-style events are not
// polled here; of those, only deadline misses, sample queue drops and
// register decode fallbacks are incremented anywhere (inline, where they
// occur).
type Collector struct {
	Compression *compression.Engine
	Store       storage.Store

	// QueueDepth and RingDepth are supplied by the polling pipeline and
	// uploader once they are wired up by the caller; either may be nil.
	QueueDepth func() int
	RingDepth  func() int

	// FirmwareState reports the current update phase; nil if no update
	// is in flight.
	FirmwareState func() (types.FirmwareUpdateState, bool)

	stopCh chan struct{}
}

// NewCollector creates a metrics collector for the given subsystems.
func NewCollector(engine *compression.Engine, store storage.Store) *Collector {
	return &Collector{
		Compression: engine,
		Store:       store,
		stopCh:      make(chan struct{}),
	}
}

// Start begins periodic collection on a 15-second interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectCompressionMetrics()
	c.collectQueueMetrics()
	c.collectFirmwareMetrics()
	c.collectSecurityMetrics()
}

func (c *Collector) collectCompressionMetrics() {
	if c.Compression == nil {
		return
	}
	for _, report := range c.Compression.Reports() {
		CompressionRatio.WithLabelValues(report.Name).Set(report.AvgRatio)
	}
}

func (c *Collector) collectQueueMetrics() {
	if c.QueueDepth != nil {
		SampleQueueDepth.Set(float64(c.QueueDepth()))
	}
	if c.RingDepth != nil {
		CompressedRingDepth.Set(float64(c.RingDepth()))
	}
}

func (c *Collector) collectFirmwareMetrics() {
	if c.FirmwareState == nil {
		return
	}
	for _, phase := range []types.FirmwarePhase{
		types.FirmwareIdle,
		types.FirmwareChecking,
		types.FirmwareDownloading,
		types.FirmwareVerifying,
		types.FirmwareApplying,
		types.FirmwareCompleted,
		types.FirmwareError,
		types.FirmwareRollback,
	} {
		FirmwarePhase.WithLabelValues(string(phase)).Set(0)
	}
	state, active := c.FirmwareState()
	if !active {
		return
	}
	FirmwarePhase.WithLabelValues(string(state.Phase)).Set(1)
}

func (c *Collector) collectSecurityMetrics() {
	if c.Store == nil {
		return
	}
	counter, err := c.Store.GetUint64(storage.NamespaceSecurity, storage.KeySecurityCounter, 0)
	if err != nil {
		return
	}
	SecurityCounter.Set(float64(counter))
}
