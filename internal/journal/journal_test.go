package journal

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sweeney/dose-dispenser/internal/alert"
)

func openTest(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordEventAndHistory(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 14, 5, 0, 0, time.UTC)

	require.NoError(t, j.RecordEvent(ctx, alert.Event{
		Type: alert.EventAlert, DoseID: "d-1", Name: "Aspirin", Dose: "1 tab", Time: "2:05 PM", Slot: 3, At: base,
	}))
	require.NoError(t, j.RecordEvent(ctx, alert.Event{
		Type: alert.EventPicked, DoseID: "d-1", Name: "Aspirin", Slot: 3, At: base.Add(30 * time.Second),
	}))

	got, err := j.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.Equal(t, "PICKED", got[0].Type, "newest first")
	require.Equal(t, KindEvent, got[0].Kind)
	require.Equal(t, "ALERT", got[1].Type)
	require.Equal(t, "1 tab", got[1].Dose)
	require.Equal(t, 3, got[1].Slot)
	require.True(t, got[1].At.Equal(base))
	require.NotEqual(t, got[0].ID, got[1].ID)
}

func TestRecordReport(t *testing.T) {
	j := openTest(t)
	j.now = func() time.Time { return time.Date(2026, 3, 1, 14, 6, 0, 0, time.UTC) }

	j.RecordReport("d-1", true, "key-1", nil)
	j.RecordReport("d-2", false, "key-2", errors.New("HTTP 500"))

	got, err := j.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	byDose := map[string]Entry{}
	for _, e := range got {
		require.Equal(t, KindReport, e.Kind)
		byDose[e.DoseID] = e
	}
	require.Equal(t, "taken", byDose["d-1"].Type)
	require.Equal(t, "ok", byDose["d-1"].Outcome)
	require.Equal(t, "key-1", byDose["d-1"].Key)
	require.Equal(t, "skipped", byDose["d-2"].Type)
	require.Equal(t, "HTTP 500", byDose["d-2"].Outcome)
}

func TestHistoryLimit(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, j.RecordEvent(ctx, alert.Event{Type: alert.EventAlert, Slot: i + 1, At: base.Add(time.Duration(i) * time.Minute)}))
	}

	got, err := j.History(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 5, got[0].Slot)
	require.Equal(t, 4, got[1].Slot)
}

func TestPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.RecordEvent(ctx, alert.Event{Type: alert.EventLidClosed, DoseID: "d-9", At: time.Now()}))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	got, err := j.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "d-9", got[0].DoseID)
}

func TestConcurrentRecords(t *testing.T) {
	j := openTest(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.RecordReport("d", true, "", nil)
			j.RecordEvent(context.Background(), alert.Event{Type: alert.EventSkipped, At: time.Now()})
		}()
	}
	wg.Wait()

	got, err := j.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 16)
}
