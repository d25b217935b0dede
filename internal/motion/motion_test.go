package motion

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/dose-dispenser/internal/gpio"
	"github.com/sweeney/dose-dispenser/internal/kv"
	"github.com/sweeney/dose-dispenser/internal/loop"
)

type harness struct {
	now      time.Time
	loop     *loop.Loop
	stepper  *gpio.FakeStepper
	servo    *gpio.FakeServo
	presence *gpio.FakePresence
	store    *kv.FakeStore
	ctl      *Controller
	closed   int
}

func newHarness() *harness {
	h := &harness{
		now:      time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC),
		stepper:  &gpio.FakeStepper{},
		servo:    &gpio.FakeServo{},
		presence: gpio.NewFakePresence(false),
		store:    kv.NewFakeStore(),
	}
	h.loop = loop.New(func() time.Time { return h.now }, loop.NopLocker{})
	h.ctl = New(DefaultConfig(), h.stepper, h.servo, h.presence, h.store, h.loop)
	h.ctl.OnLidClosed = func() { h.closed++ }
	return h
}

// advance runs the loop in 10ms passes.
func (h *harness) advance(d time.Duration) {
	end := h.now.Add(d)
	for h.now.Before(end) {
		h.now = h.now.Add(10 * time.Millisecond)
		h.loop.RunDue(h.now)
	}
}

func TestStepsPerSlot(t *testing.T) {
	if got := DefaultConfig().StepsPerSlot(); got != 409 {
		t.Errorf("StepsPerSlot: got %d, want 409", got)
	}
}

func TestMoveToSlot(t *testing.T) {
	h := newHarness()

	h.ctl.MoveToSlot(3)
	if h.stepper.Steps() != 818 {
		t.Errorf("steps: got %d, want 818", h.stepper.Steps())
	}
	if got, _ := h.store.Get(SlotKey); string(got) != "3" {
		t.Errorf("persisted slot: got %q, want 3", got)
	}

	// Moving back drives the signed delta, never the shorter way round.
	h.ctl.MoveToSlot(1)
	if h.stepper.Moves[1] != -818 {
		t.Errorf("return move: got %d, want -818", h.stepper.Moves[1])
	}
}

func TestMoveToSlotTwiceIsNoop(t *testing.T) {
	h := newHarness()

	h.ctl.MoveToSlot(4)
	h.ctl.MoveToSlot(4)

	if h.stepper.MoveCount() != 1 {
		t.Errorf("moves: got %d, want 1", h.stepper.MoveCount())
	}
	if h.store.WriteCount(SlotKey) != 1 {
		t.Errorf("writes: got %d, want 1", h.store.WriteCount(SlotKey))
	}
}

func TestMoveToSlotClamps(t *testing.T) {
	tests := []struct {
		in, wantSlot, wantSteps int
	}{
		{0, 1, 0},
		{-3, 1, 0},
		{5, 5, 1636},
		{9, 5, 1636},
	}
	for _, tt := range tests {
		h := newHarness()
		h.ctl.MoveToSlot(tt.in)
		st := h.ctl.State()
		if st.Slot != tt.wantSlot || st.Steps != tt.wantSteps {
			t.Errorf("MoveToSlot(%d): got slot %d steps %d, want %d %d", tt.in, st.Slot, st.Steps, tt.wantSlot, tt.wantSteps)
		}
	}
}

func TestMoveToSlotHardwareErrorIsLogged(t *testing.T) {
	h := newHarness()
	h.stepper.MoveError = errors.New("stalled")

	h.ctl.MoveToSlot(2)
	if h.ctl.State().Slot != 2 {
		t.Errorf("slot model: got %d, want 2", h.ctl.State().Slot)
	}
}

func TestLoadPosition(t *testing.T) {
	h := newHarness()
	h.store.Set(SlotKey, []byte("4"))

	h.ctl.LoadPosition()
	if st := h.ctl.State(); st.Slot != 4 || st.Steps != 1227 {
		t.Errorf("restored: got slot %d steps %d", st.Slot, st.Steps)
	}
	h.ctl.MoveToSlot(4)
	if h.stepper.MoveCount() != 0 {
		t.Error("expected no motion after restoring the same slot")
	}
}

func TestLoadPositionIgnoresBadValues(t *testing.T) {
	for _, raw := range []string{"0", "6", "two", ""} {
		h := newHarness()
		h.store.Set(SlotKey, []byte(raw))
		h.ctl.LoadPosition()
		if h.ctl.State().Slot != 1 {
			t.Errorf("LoadPosition(%q): got slot %d, want 1", raw, h.ctl.State().Slot)
		}
	}
}

func TestJogLeavesModel(t *testing.T) {
	h := newHarness()
	h.ctl.MoveToSlot(2)
	h.ctl.Jog(-20)

	if h.stepper.Steps() != 389 {
		t.Errorf("hardware steps: got %d, want 389", h.stepper.Steps())
	}
	if h.ctl.State().Steps != 409 {
		t.Errorf("model steps: got %d, want 409", h.ctl.State().Steps)
	}
}

func TestPulseWidth(t *testing.T) {
	tests := []struct {
		deg  int
		want time.Duration
	}{
		{0, 1000 * time.Microsecond},
		{90, 1500 * time.Microsecond},
		{180, 2000 * time.Microsecond},
		{-10, 1000 * time.Microsecond},
		{270, 2000 * time.Microsecond},
	}
	for _, tt := range tests {
		if got := PulseWidth(tt.deg); got != tt.want {
			t.Errorf("PulseWidth(%d): got %v, want %v", tt.deg, got, tt.want)
		}
	}
}

func TestStartMoveTracksOneDegreePerTick(t *testing.T) {
	h := newHarness()
	h.ctl.SetAngle(90)
	h.ctl.StartMove(100, false)

	h.advance(100 * time.Millisecond)
	if got := h.ctl.State().ServoDeg; got != 95 {
		t.Errorf("after 5 ticks: got %d deg, want 95", got)
	}
	if !h.ctl.State().ServoMoving {
		t.Error("expected move in flight")
	}

	h.advance(200 * time.Millisecond)
	st := h.ctl.State()
	if st.ServoDeg != 100 || st.ServoMoving {
		t.Errorf("after arrival: got %+v", st)
	}
	if h.servo.Last() != PulseWidth(100) {
		t.Errorf("pulse: got %v", h.servo.Last())
	}
}

func TestRetargetCancelsPreviousMove(t *testing.T) {
	h := newHarness()
	h.ctl.SetAngle(90)
	h.ctl.StartMove(120, false)
	h.advance(60 * time.Millisecond)
	h.ctl.StartMove(0, false)

	servoTasks := 0
	for _, name := range h.loop.Pending() {
		if name == "servo" {
			servoTasks++
		}
	}
	if servoTasks != 1 {
		t.Errorf("servo tasks: got %d, want 1", servoTasks)
	}

	h.advance(40 * time.Millisecond)
	if got := h.ctl.State().ServoDeg; got != 91 {
		t.Errorf("got %d deg, want 91", got)
	}
}

func TestOpenLidSnapsThenOpensAndArms(t *testing.T) {
	h := newHarness()
	h.ctl.SetAngle(100)

	h.ctl.OpenLid()
	if h.servo.Last() != PulseWidth(180) {
		t.Errorf("snap: got %v, want closed pulse", h.servo.Last())
	}
	if h.ctl.State().IRArmed {
		t.Error("detector should not arm before the lid is open")
	}

	h.advance(2100 * time.Millisecond)
	st := h.ctl.State()
	if st.ServoDeg != 80 || st.ServoMoving {
		t.Errorf("open: got %+v", st)
	}
	if !st.IRArmed {
		t.Error("expected detector armed once open")
	}
	if h.closed != 0 {
		t.Errorf("lid-closed hook fired on open")
	}
}

func TestCloseLidFiresHookOnArrival(t *testing.T) {
	h := newHarness()
	h.ctl.SetAngle(170)
	h.ctl.CloseLid()

	h.advance(100 * time.Millisecond)
	if h.closed != 0 {
		t.Fatal("hook fired before arrival")
	}
	h.advance(200 * time.Millisecond)
	if h.closed != 1 {
		t.Errorf("hook: got %d calls, want 1", h.closed)
	}
}

func openAndArm(t *testing.T, h *harness) {
	t.Helper()
	h.ctl.OpenLid()
	h.advance(2100 * time.Millisecond)
	if !h.ctl.State().IRArmed {
		t.Fatal("detector not armed")
	}
}

func TestIRBriefAbsenceDoesNotClose(t *testing.T) {
	h := newHarness()
	openAndArm(t, h)

	h.presence.Set(true)
	h.advance(600 * time.Millisecond)
	h.presence.Set(false)
	h.advance(600 * time.Millisecond)
	if !h.ctl.State().SettlePending {
		t.Fatal("expected settle timer after removal")
	}

	h.presence.Set(true)
	h.advance(600 * time.Millisecond)
	if h.ctl.State().SettlePending {
		t.Error("settle timer should be cancelled when the object returns")
	}

	h.advance(3 * time.Second)
	st := h.ctl.State()
	if st.ServoTarget != 80 || !st.IRArmed {
		t.Errorf("lid closed on a brief absence: %+v", st)
	}
}

func TestIRSustainedAbsenceClosesOnce(t *testing.T) {
	h := newHarness()
	openAndArm(t, h)

	h.presence.Set(true)
	h.advance(600 * time.Millisecond)
	h.presence.Set(false)
	h.advance(3 * time.Second)

	st := h.ctl.State()
	if st.IRArmed {
		t.Error("detector should disarm once settled")
	}
	if st.ServoTarget != 180 {
		t.Errorf("target: got %d, want 180", st.ServoTarget)
	}

	h.advance(5 * time.Second)
	if h.closed != 1 {
		t.Errorf("lid-closed hook: got %d, want 1", h.closed)
	}
}

func TestIRAbsentWithoutPresenceDoesNothing(t *testing.T) {
	h := newHarness()
	openAndArm(t, h)

	h.advance(5 * time.Second)
	st := h.ctl.State()
	if st.SettlePending || !st.IRArmed || st.ServoTarget != 80 {
		t.Errorf("unexpected state: %+v", st)
	}
}

func TestIRReadErrorsAreSkipped(t *testing.T) {
	h := newHarness()
	openAndArm(t, h)
	h.presence.ReadError = errors.New("bus fault")

	h.advance(2 * time.Second)
	if !h.ctl.State().IRArmed {
		t.Error("read errors should not disarm")
	}

	h.presence.ReadError = nil
	h.presence.Set(true)
	h.advance(600 * time.Millisecond)
	if h.ctl.State().IRLevel != LevelPresent {
		t.Errorf("level: got %v, want present", h.ctl.State().IRLevel)
	}
}

func TestIRNotPolledWhileDisarmed(t *testing.T) {
	h := newHarness()
	h.advance(3 * time.Second)
	if h.presence.ReadCount() != 0 {
		t.Errorf("reads while disarmed: %d", h.presence.ReadCount())
	}
}

func TestOpenLidResetsDetector(t *testing.T) {
	h := newHarness()
	openAndArm(t, h)
	h.presence.Set(true)
	h.advance(600 * time.Millisecond)
	h.presence.Set(false)
	h.advance(600 * time.Millisecond)

	// Re-opening mid-settle starts over.
	h.ctl.OpenLid()
	st := h.ctl.State()
	if st.IRArmed || st.SettlePending {
		t.Errorf("detector not reset: %+v", st)
	}
	h.advance(4 * time.Second)
	if h.closed != 0 {
		t.Errorf("stale settle closed the lid")
	}
}

func TestStop(t *testing.T) {
	h := newHarness()
	openAndArm(t, h)
	h.ctl.CloseLid()
	h.ctl.Stop()

	if len(h.loop.Pending()) != 0 {
		t.Errorf("pending after Stop: %v", h.loop.Pending())
	}
}
