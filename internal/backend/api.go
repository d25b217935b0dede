package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sweeney/dose-dispenser/internal/schedule"
)

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexInt accepts a JSON number; anything else reads as zero.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(v)
	return nil
}

type wireDose struct {
	MedicineName  flexString `json:"medicineName"`
	Dosage        flexString `json:"dosage"`
	ScheduledTime flexString `json:"scheduledTime"`
	Status        flexString `json:"status"`
	DoseID        flexString `json:"doseId"`
	ID            flexString `json:"id"`
	Slot          flexInt    `json:"slot"`
}

func (w wireDose) record() schedule.DoseRecord {
	id := string(w.DoseID)
	if id == "" {
		id = string(w.ID)
	}
	if id == "" {
		log.Printf("backend: dose missing doseId (name=%s, time=%s)", w.MedicineName, w.ScheduledTime)
	}
	return schedule.NewDoseRecord(string(w.MedicineName), string(w.Dosage), string(w.ScheduledTime),
		string(w.Status), id, int(w.Slot))
}

// FetchCategory returns a category's records in server order. A response
// with no data array is an empty list.
func (c *Client) FetchCategory(ctx context.Context, cat schedule.Category) ([]schedule.DoseRecord, error) {
	body, err := c.do(ctx, http.MethodGet, c.withDevice(cat.Path()), nil, nil)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyBody
	}

	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, cat, err)
	}

	var items []wireDose
	if len(resp.Data) > 0 && resp.Data[0] == '[' {
		if err := json.Unmarshal(resp.Data, &items); err != nil {
			return nil, fmt.Errorf("%w: %s items: %v", ErrDecode, cat, err)
		}
	}
	if len(items) > schedule.MaxRecords {
		items = items[:schedule.MaxRecords]
	}

	out := make([]schedule.DoseRecord, 0, len(items))
	for _, it := range items {
		out = append(out, it.record())
	}
	return out, nil
}

type deviceBody struct {
	DeviceID string `json:"deviceId"`
}

// MarkDose reports a dose taken or skipped. idempotencyKey, when set, lets
// the service recognise a duplicate delivery.
func (c *Client) MarkDose(ctx context.Context, doseID string, taken bool, idempotencyKey string) error {
	action := "mark-skipped"
	if taken {
		action = "mark-taken"
	}
	path := "/hardware/doses/" + url.PathEscape(doseID) + "/" + action

	var header http.Header
	if idempotencyKey != "" {
		header = http.Header{"Idempotency-Key": []string{idempotencyKey}}
	}
	_, err := c.do(ctx, http.MethodPatch, path, deviceBody{DeviceID: c.deviceID}, header)
	return err
}

// Heartbeat is the liveness report.
type Heartbeat struct {
	DeviceID        string  `json:"deviceId"`
	BatteryLevel    int     `json:"batteryLevel"`
	WifiStrength    int     `json:"wifiStrength"`
	Status          string  `json:"status"`
	FirmwareVersion string  `json:"firmwareVersion"`
	UptimeSeconds   int64   `json:"uptimeSeconds"`
	StorageFreeKb   int     `json:"storageFreeKb"`
	TemperatureC    float64 `json:"temperatureC"`
	LastError       string  `json:"lastError"`
	SlotCount       int     `json:"slotCount"`
}

// SendHeartbeat posts hb. An empty DeviceID is filled in.
func (c *Client) SendHeartbeat(ctx context.Context, hb Heartbeat) error {
	if hb.DeviceID == "" {
		hb.DeviceID = c.deviceID
	}
	_, err := c.do(ctx, http.MethodPost, "/hardware/heartbeat", hb, nil)
	return err
}

// ServerTime is the service's idea of local time.
type ServerTime struct {
	Local12 string `json:"localTime12"`
	Local24 string `json:"localTime24"`
}

// Time fetches the current local time.
func (c *Client) Time(ctx context.Context) (ServerTime, error) {
	body, err := c.do(ctx, http.MethodGet, "/hardware/time", nil, nil)
	if err != nil {
		return ServerTime{}, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return ServerTime{}, ErrEmptyBody
	}
	var st ServerTime
	if err := json.Unmarshal(body, &st); err != nil {
		return ServerTime{}, fmt.Errorf("%w: time: %v", ErrDecode, err)
	}
	return st, nil
}

// Profile fetches the patient profile as raw JSON.
func (c *Client) Profile(ctx context.Context) ([]byte, error) {
	body, err := c.do(ctx, http.MethodGet, "/device/"+url.PathEscape(c.deviceID)+"/profile", nil, nil)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyBody
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: profile", ErrDecode)
	}
	return body, nil
}
