package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sweeney/dose-dispenser/internal/schedule"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/api/", Token: "secret", DeviceID: "dev 1"})
}

func TestFetchCategory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/hardware/upcoming", r.URL.Path)
		require.Equal(t, "dev 1", r.URL.Query().Get("deviceId"))
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		io.WriteString(w, `{"data":[
			{"medicineName":"Aspirin","dosage":"1 tab","scheduledTime":"2:05 PM","status":"pending","doseId":"d1","slot":3},
			{"medicineName":"Metformin","dosage":"500mg","scheduledTime":"20:00","status":"pending","id":42,"slot":"x"}
		]}`)
	})

	recs, err := c.FetchCategory(context.Background(), schedule.Upcoming)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, schedule.DoseRecord{
		Name: "Aspirin", Dose: "1 tab", ScheduledTime: "2:05 PM", Status: "pending", DoseID: "d1", Slot: 3,
	}, recs[0])
	// id falls back; a non-numeric slot defaults and is clamped.
	require.Equal(t, "42", recs[1].DoseID)
	require.Equal(t, 1, recs[1].Slot)
}

func TestFetchCategoryEmptyData(t *testing.T) {
	for _, body := range []string{`{"data":[]}`, `{}`, `{"data":null}`} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, body)
		})
		recs, err := c.FetchCategory(context.Background(), schedule.Taken)
		require.NoError(t, err, body)
		require.Empty(t, recs, body)
	}
}

func TestFetchCategoryTruncates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		items := make([]map[string]any, 15)
		for i := range items {
			items[i] = map[string]any{"medicineName": "m", "doseId": "d", "slot": 1}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": items})
	})
	recs, err := c.FetchCategory(context.Background(), schedule.Missed)
	require.NoError(t, err)
	require.Len(t, recs, schedule.MaxRecords)
}

func TestFetchCategoryErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		display string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, "HTTP 500"},
		{"not found", http.StatusNotFound, "", "HTTP 404"},
		{"empty", http.StatusOK, "", "Empty response"},
		{"malformed", http.StatusOK, `{"data":[`, "JSON parse failed"},
		{"bad item", http.StatusOK, `{"data":[{"medicineName":true}]}`, "JSON parse failed"},
	}
	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			io.WriteString(w, tt.body)
		})
		_, err := c.FetchCategory(context.Background(), schedule.Upcoming)
		require.Error(t, err, tt.name)
		require.Equal(t, tt.display, Describe(err), tt.name)
	}
}

func TestTimeoutIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})

	_, err := c.FetchCategory(context.Background(), schedule.Upcoming)
	require.Error(t, err)
	require.Equal(t, "Network error", Describe(err))
}

func TestMarkDose(t *testing.T) {
	var gotPath, gotKey, gotMethod string
	var gotBody map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.EscapedPath()
		gotKey = r.Header.Get("Idempotency-Key")
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.MarkDose(context.Background(), "d/1", true, "key-1"))
	require.Equal(t, http.MethodPatch, gotMethod)
	require.Equal(t, "/api/hardware/doses/d%2F1/mark-taken", gotPath)
	require.Equal(t, "key-1", gotKey)
	require.Equal(t, map[string]string{"deviceId": "dev 1"}, gotBody)

	require.NoError(t, c.MarkDose(context.Background(), "d2", false, ""))
	require.True(t, strings.HasSuffix(gotPath, "/d2/mark-skipped"))
	require.Empty(t, gotKey)
}

func TestMarkDoseStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	err := c.MarkDose(context.Background(), "d1", true, "")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusConflict, se.Code)
}

func TestSendHeartbeat(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/hardware/heartbeat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	})

	err := c.SendHeartbeat(context.Background(), Heartbeat{
		BatteryLevel: 87, WifiStrength: -61, Status: "online", FirmwareVersion: "1.2.3",
		UptimeSeconds: 3600, StorageFreeKb: 812, TemperatureC: 36.8, SlotCount: 5,
	})
	require.NoError(t, err)
	require.Equal(t, "dev 1", got["deviceId"])
	require.Equal(t, float64(87), got["batteryLevel"])
	require.Equal(t, 36.8, got["temperatureC"])
	require.Equal(t, "", got["lastError"])
	require.Equal(t, float64(5), got["slotCount"])
}

func TestTime(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/hardware/time", r.URL.Path)
		io.WriteString(w, `{"localTime24":"14:05","localTime12":"2:05 PM"}`)
	})
	st, err := c.Time(context.Background())
	require.NoError(t, err)
	require.Equal(t, ServerTime{Local12: "2:05 PM", Local24: "14:05"}, st)
}

func TestProfile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/device/dev%201/profile", r.URL.EscapedPath())
		io.WriteString(w, `{"name":"Ada"}`)
	})
	body, err := c.Profile(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"Ada"}`, string(body))

	bad := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html>`)
	})
	_, err = bad.Profile(context.Background())
	require.Equal(t, "JSON parse failed", Describe(err))
}

func TestDescribeNil(t *testing.T) {
	require.Equal(t, "", Describe(nil))
}
