// Package progress samples scan counters into periodic snapshots and renders them.
package progress

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ivoronin/dupehound/internal/types"
)

const (
	tickInterval = 20 * time.Millisecond
	sendInterval = 200 * time.Millisecond
)

// Data is an immutable snapshot of a scan's position.
type Data struct {
	Tool            ToolType
	Method          types.CheckingMethod
	Stage           Stage
	CurrentStageIdx int
	MaxStageIdx     int
	EntriesChecked  int64
	EntriesToCheck  int64
	BytesChecked    int64
	BytesToCheck    int64
}

// Validate checks the hard invariants of a snapshot.
func (d Data) Validate() error {
	if d.MaxStageIdx != MaxStageIdx(d.Tool, d.Method) {
		return fmt.Errorf("max stage %d does not match %s/%s", d.MaxStageIdx, d.Tool, d.Method)
	}
	if idx := StageIdx(d.Tool, d.Method, d.Stage); idx < 0 || idx != d.CurrentStageIdx {
		return fmt.Errorf("stage %q is not stage %d of %s/%s", d.Stage, d.CurrentStageIdx, d.Tool, d.Method)
	}
	if d.CurrentStageIdx > d.MaxStageIdx {
		return fmt.Errorf("stage index %d exceeds max %d", d.CurrentStageIdx, d.MaxStageIdx)
	}
	if !d.Stage.Collecting() && d.EntriesChecked > d.EntriesToCheck {
		return fmt.Errorf("checked %d of %d entries", d.EntriesChecked, d.EntriesToCheck)
	}
	return nil
}

// BytesOverrun reports the soft invariant violation of more bytes checked
// than expected. Files may grow between being counted and being read.
func (d Data) BytesOverrun() bool {
	return !d.Stage.Collecting() && d.BytesToCheck > 0 && d.BytesChecked > d.BytesToCheck
}

// Handle owns the counters of one stage and the goroutine sampling them.
// All methods are no-ops on a nil Handle.
type Handle struct {
	desc       Descriptor
	itemsTotal int64
	bytesTotal int64
	items      atomic.Int64
	bytes      atomic.Int64

	sink     chan<- Data
	log      *zap.Logger
	stop     chan struct{}
	done     chan struct{}
	joinOnce sync.Once
}

// Start begins sampling a stage. With a nil sink the handle only counts.
// Join must be called once the stage ends.
func Start(sink chan<- Data, desc Descriptor, itemsTotal, bytesTotal int64, log *zap.Logger) *Handle {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handle{
		desc:       desc,
		itemsTotal: itemsTotal,
		bytesTotal: bytesTotal,
		sink:       sink,
		log:        log,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	if sink == nil {
		close(h.done)
		return h
	}
	go h.loop()
	return h
}

// IncreaseItems adds n to the entry counter.
func (h *Handle) IncreaseItems(n int64) {
	if h != nil {
		h.items.Add(n)
	}
}

// IncreaseSize adds n to the byte counter.
func (h *Handle) IncreaseSize(n int64) {
	if h != nil {
		h.bytes.Add(n)
	}
}

// Items returns the current entry counter.
func (h *Handle) Items() int64 {
	if h == nil {
		return 0
	}
	return h.items.Load()
}

// Bytes returns the current byte counter.
func (h *Handle) Bytes() int64 {
	if h == nil {
		return 0
	}
	return h.bytes.Load()
}

// Join stops the sampler, waits for it to exit and sends a final snapshot.
// Calls after the first return immediately.
func (h *Handle) Join() {
	if h == nil {
		return
	}
	h.joinOnce.Do(func() {
		close(h.stop)
		<-h.done
		if h.sink != nil {
			h.emit()
		}
	})
}

func (h *Handle) loop() {
	defer close(h.done)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	// Seeded in the past so the first snapshot goes out at once.
	lastSent := time.Now().Add(-sendInterval)
	for {
		if now := time.Now(); now.Sub(lastSent) >= sendInterval {
			h.emit()
			lastSent = now
		}
		select {
		case <-h.stop:
			return
		case <-ticker.C:
		}
	}
}

func (h *Handle) snapshot() Data {
	return Data{
		Tool:            h.desc.Tool,
		Method:          h.desc.Method,
		Stage:           h.desc.Stage,
		CurrentStageIdx: StageIdx(h.desc.Tool, h.desc.Method, h.desc.Stage),
		MaxStageIdx:     MaxStageIdx(h.desc.Tool, h.desc.Method),
		EntriesChecked:  h.items.Load(),
		EntriesToCheck:  h.itemsTotal,
		BytesChecked:    h.bytes.Load(),
		BytesToCheck:    h.bytesTotal,
	}
}

// emit sends without blocking; a full sink drops the snapshot and the next
// tick carries fresher counters.
func (h *Handle) emit() {
	d := h.snapshot()
	if err := d.Validate(); err != nil {
		h.log.Error("invalid progress snapshot", zap.Error(err))
		return
	}
	if d.BytesOverrun() {
		h.log.Debug("bytes checked exceed expected total",
			zap.Int64("checked", d.BytesChecked), zap.Int64("total", d.BytesToCheck))
	}
	select {
	case h.sink <- d:
	default:
	}
}
