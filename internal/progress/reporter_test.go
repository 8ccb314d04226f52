package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ivoronin/dupehound/internal/types"
)

// =============================================================================
// Section 1: Stage Tables
// =============================================================================

// TestMaxStageIdx tests that the stage count depends only on tool and method.
func TestMaxStageIdx(t *testing.T) {
	tests := []struct {
		tool   ToolType
		method types.CheckingMethod
		want   int
	}{
		{ToolDuplicates, types.MethodHash, 6},
		{ToolDuplicates, types.MethodName, 0},
		{ToolDuplicates, types.MethodSize, 0},
		{ToolDuplicates, types.MethodSizeName, 0},
		{ToolBrokenFiles, types.MethodNone, 3},
		{ToolBigFiles, types.MethodNone, 0},
		{ToolEmptyFiles, types.MethodNone, 0},
		{ToolInvalidSymlinks, types.MethodNone, 0},
	}
	for _, tt := range tests {
		if got := MaxStageIdx(tt.tool, tt.method); got != tt.want {
			t.Errorf("MaxStageIdx(%s, %s) = %d, want %d", tt.tool, tt.method, got, tt.want)
		}
	}
}

// TestValidate tests the hard snapshot invariants.
func TestValidate(t *testing.T) {
	valid := Data{
		Tool: ToolDuplicates, Method: types.MethodHash, Stage: StageHashing,
		CurrentStageIdx: 5, MaxStageIdx: 6, EntriesChecked: 3, EntriesToCheck: 3,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid snapshot rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Data)
	}{
		{"wrong max", func(d *Data) { d.MaxStageIdx = 3 }},
		{"stage not in tool", func(d *Data) { d.Stage = StageChecking }},
		{"index mismatch", func(d *Data) { d.CurrentStageIdx = 2 }},
		{"entries overrun", func(d *Data) { d.EntriesChecked = 4 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.mutate(&d)
			if err := d.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}

	collecting := Data{Tool: ToolBigFiles, Stage: StageCollectingFiles, EntriesChecked: 100}
	if err := collecting.Validate(); err != nil {
		t.Errorf("collection stage must waive entry bound: %v", err)
	}

	grown := valid
	grown.BytesChecked, grown.BytesToCheck = 11, 10
	if err := grown.Validate(); err != nil {
		t.Errorf("byte overrun must be soft: %v", err)
	}
	if !grown.BytesOverrun() {
		t.Error("BytesOverrun() = false")
	}
}

// =============================================================================
// Section 2: Reporter
// =============================================================================

// TestReporterFirstEmissionImmediate tests that a snapshot is sent at once.
func TestReporterFirstEmissionImmediate(t *testing.T) {
	sink := make(chan Data, 16)
	h := Start(sink, Descriptor{Tool: ToolBigFiles, Stage: StageCollectingFiles}, 0, 0, nil)
	defer h.Join()

	select {
	case d := <-sink:
		if d.Stage != StageCollectingFiles {
			t.Errorf("Stage = %v", d.Stage)
		}
	case <-time.After(150 * time.Millisecond):
		t.Fatal("no immediate snapshot")
	}
}

// TestReporterNilSink tests that counting works without a sink.
func TestReporterNilSink(t *testing.T) {
	h := Start(nil, Descriptor{Tool: ToolEmptyFiles, Stage: StageCollectingFiles}, 0, 0, nil)
	h.IncreaseItems(3)
	h.IncreaseSize(10)
	h.Join()
	h.Join()

	if h.Items() != 3 || h.Bytes() != 10 {
		t.Errorf("counters = %d/%d, want 3/10", h.Items(), h.Bytes())
	}
}

// TestReporterNilHandle tests nil safety.
func TestReporterNilHandle(t *testing.T) {
	var h *Handle
	h.IncreaseItems(1)
	h.IncreaseSize(1)
	h.Join()
	if h.Items() != 0 {
		t.Error("nil handle counted")
	}
}

// TestReporterMonotonic tests stage index and entry bounds over a full hash scan.
func TestReporterMonotonic(t *testing.T) {
	sink := make(chan Data, 4096)
	const items = 50

	for _, stage := range Stages(ToolDuplicates, types.MethodHash) {
		total := int64(items)
		if stage.Collecting() {
			total = 0
		}
		h := Start(sink, Descriptor{Tool: ToolDuplicates, Method: types.MethodHash, Stage: stage}, total, 0, nil)
		var wg sync.WaitGroup
		for range items {
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.IncreaseItems(1)
			}()
		}
		wg.Wait()
		h.Join()
	}
	close(sink)

	last := -1
	count := 0
	for d := range sink {
		count++
		if d.CurrentStageIdx < last {
			t.Fatalf("stage index went back from %d to %d", last, d.CurrentStageIdx)
		}
		last = d.CurrentStageIdx
		if d.CurrentStageIdx > d.MaxStageIdx {
			t.Fatalf("stage %d > max %d", d.CurrentStageIdx, d.MaxStageIdx)
		}
		if !d.Stage.Collecting() && d.EntriesChecked > d.EntriesToCheck {
			t.Fatalf("entries %d > %d at %s", d.EntriesChecked, d.EntriesToCheck, d.Stage)
		}
	}
	if count < len(hashStages) {
		t.Errorf("got %d snapshots, want at least one per stage", count)
	}
	if last != 6 {
		t.Errorf("last stage index = %d, want 6", last)
	}
}

// TestReporterJoinSendsFinal tests the final snapshot after Join.
func TestReporterJoinSendsFinal(t *testing.T) {
	sink := make(chan Data, 16)
	h := Start(sink, Descriptor{Tool: ToolBrokenFiles, Stage: StageChecking}, 5, 100, nil)
	h.IncreaseItems(5)
	h.IncreaseSize(100)
	h.Join()

	var final Data
	for len(sink) > 0 {
		final = <-sink
	}
	if final.EntriesChecked != 5 || final.BytesChecked != 100 {
		t.Errorf("final snapshot = %+v", final)
	}
	if final.CurrentStageIdx != 2 || final.MaxStageIdx != 3 {
		t.Errorf("stage idx = %d/%d, want 2/3", final.CurrentStageIdx, final.MaxStageIdx)
	}
}

// =============================================================================
// Section 3: Bar
// =============================================================================

// TestBarDisabled tests that a disabled bar writes nothing.
func TestBarDisabled(t *testing.T) {
	var buf bytes.Buffer
	b := &Bar{enabled: false, w: &buf}
	b.Update(Data{Tool: ToolBigFiles, Stage: StageCollectingFiles})
	b.Finish()
	if buf.Len() != 0 {
		t.Errorf("disabled bar wrote %q", buf.String())
	}
}

// TestBarRender tests that each stage is finished with its description.
func TestBarRender(t *testing.T) {
	var buf bytes.Buffer
	b := &Bar{enabled: true, w: &buf}

	ch := make(chan Data, 4)
	ch <- Data{Tool: ToolBrokenFiles, Stage: StageCollectingFiles, MaxStageIdx: 3, EntriesChecked: 7}
	ch <- Data{Tool: ToolBrokenFiles, Stage: StageChecking, CurrentStageIdx: 2, MaxStageIdx: 3, EntriesChecked: 1, EntriesToCheck: 2, BytesChecked: 5, BytesToCheck: 10}
	close(ch)
	<-b.Render(ch)

	out := buf.String()
	if !strings.Contains(out, "✔ [1/4] Collecting files: 7 files") {
		t.Errorf("missing collecting summary in %q", out)
	}
	if !strings.Contains(out, "✔ [3/4] Checking: 1/2 files") {
		t.Errorf("missing checking summary in %q", out)
	}
}
