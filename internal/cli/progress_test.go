package cli

import (
	"bytes"
	"testing"

	"github.com/Veraticus/tierkeeper/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counters(total, success, failed, skipped int) model.Counters {
	return model.Counters{
		Total:     total,
		Success:   success,
		Failed:    failed,
		Skipped:   skipped,
		Processed: success + failed,
	}
}

func TestProgressRenderer_Render(t *testing.T) {
	events := make(chan model.Event, 8)
	events <- model.Event{Type: model.EventStart, Seq: 1, Counters: counters(3, 0, 0, 0)}
	events <- model.Event{Type: model.EventSkipped, Seq: 2, Skipped: []model.SkippedItem{{ProductID: "a", Category: model.TierMilitaryArchive}}, Counters: counters(3, 0, 0, 1)}
	events <- model.Event{Type: model.EventResult, Seq: 3, ProductID: "b", Category: model.TierWorkwearArchive, Confidence: 72, Counters: counters(3, 1, 0, 1)}
	events <- model.Event{Type: model.EventError, Seq: 4, ProductID: "c", Cause: "timeout", Fallback: true, Category: model.TierArchive, Counters: counters(3, 1, 1, 1)}
	events <- model.Event{Type: model.EventComplete, Seq: 5, Counters: counters(3, 1, 1, 1)}
	close(events)

	var out bytes.Buffer
	last := NewProgressRenderer(&out, "Classifying", true).Render(events)

	assert.Equal(t, model.EventComplete, last.Type)
	s := out.String()
	assert.Contains(t, s, "skip a (MILITARY ARCHIVE)")
	assert.Contains(t, s, "b → WORKWEAR ARCHIVE (72%)")
	assert.Contains(t, s, "c failed: timeout (fallback ARCHIVE)")
	assert.Contains(t, s, "3/3")
}

func TestProgressRenderer_QuietHidesResults(t *testing.T) {
	events := make(chan model.Event, 3)
	events <- model.Event{Type: model.EventStart, Counters: counters(1, 0, 0, 0)}
	events <- model.Event{Type: model.EventResult, ProductID: "b", Category: model.TierWorkwearArchive, Counters: counters(1, 1, 0, 0)}
	events <- model.Event{Type: model.EventComplete, Counters: counters(1, 1, 0, 0)}
	close(events)

	var out bytes.Buffer
	NewProgressRenderer(&out, "Classifying", false).Render(events)
	assert.NotContains(t, out.String(), "WORKWEAR ARCHIVE")
}

func TestProgressRenderer_FatalError(t *testing.T) {
	events := make(chan model.Event, 2)
	events <- model.Event{Type: model.EventStart, Counters: counters(2, 0, 0, 0)}
	events <- model.Event{Type: model.EventError, Fatal: true, Message: "archive classification aborted: storage down"}
	close(events)

	var out bytes.Buffer
	last := NewProgressRenderer(&out, "Classifying", false).Render(events)

	require.True(t, last.Fatal)
	assert.Contains(t, out.String(), "archive classification aborted: storage down")
}

func TestProgressRenderer_EmptyStream(t *testing.T) {
	events := make(chan model.Event)
	close(events)

	var out bytes.Buffer
	last := NewProgressRenderer(&out, "Classifying", false).Render(events)
	assert.Empty(t, last.Type)
	assert.Empty(t, out.String())
}
