package status

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nestwatch/nestwatch/internal/core"
	"github.com/nestwatch/nestwatch/internal/errs"
	"go.uber.org/zap"
)

type fakeStore struct {
	cfgs        map[string]*core.ServiceCheckConfig
	statuses    map[string]*core.ServiceStatus
	stamps      map[string]int64
	maintenance map[string]bool
	saves       int
	failSaves   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cfgs:        map[string]*core.ServiceCheckConfig{},
		statuses:    map[string]*core.ServiceStatus{},
		stamps:      map[string]int64{},
		maintenance: map[string]bool{},
	}
}

func (s *fakeStore) GetServiceConfig(_ context.Context, serviceID string) (*core.ServiceCheckConfig, error) {
	cfg, ok := s.cfgs[serviceID]
	if !ok {
		return nil, errs.ErrServiceNotFound
	}
	return cfg, nil
}

func (s *fakeStore) ListServiceConfigs(context.Context) ([]*core.ServiceCheckConfig, error) {
	out := make([]*core.ServiceCheckConfig, 0, len(s.cfgs))
	for _, cfg := range s.cfgs {
		out = append(out, cfg)
	}
	return out, nil
}

func (s *fakeStore) GetServiceStatus(_ context.Context, serviceID string) (*core.ServiceStatus, error) {
	st, ok := s.statuses[serviceID]
	if !ok {
		return nil, errs.NotFound("no status for %s", serviceID)
	}
	cp := *st
	cp.Regions = append([]core.RegionStatus(nil), st.Regions...)
	return &cp, nil
}

func (s *fakeStore) SaveServiceStatus(_ context.Context, status *core.ServiceStatus) error {
	if s.failSaves > 0 {
		s.failSaves--
		return errs.Transient("redis", "set", errors.New("connection reset"))
	}
	s.saves++
	s.statuses[status.ServiceID] = status
	return nil
}

func (s *fakeStore) GetStamp(_ context.Context, key string) (int64, error) {
	return s.stamps[key], nil
}

func (s *fakeStore) CompareAndSetStamp(_ context.Context, key string, timestamp int64) (bool, error) {
	if timestamp <= s.stamps[key] {
		return false, nil
	}
	s.stamps[key] = timestamp
	return true, nil
}

func (s *fakeStore) SetMaintenance(_ context.Context, serviceID string, on bool) error {
	s.maintenance[serviceID] = on
	return nil
}

func (s *fakeStore) InMaintenance(_ context.Context, serviceID string) (bool, error) {
	return s.maintenance[serviceID], nil
}

type fakeSources struct {
	approved map[string]bool
}

func (f *fakeSources) IsApproved(_ context.Context, workerID string) (bool, error) {
	return f.approved[workerID], nil
}

type fakeDeltas struct {
	published []core.ServiceState
}

func (f *fakeDeltas) PublishStatusDelta(_ context.Context, status *core.ServiceStatus) {
	f.published = append(f.published, status.OverallStatus)
}

type transition struct {
	from, to core.ServiceState
}

type fakeTransitions struct {
	seen []transition
}

func (f *fakeTransitions) OnTransition(_ context.Context, _ *core.ServiceCheckConfig, _ *core.ServiceStatus, from, to core.ServiceState) {
	f.seen = append(f.seen, transition{from, to})
}

type fakePoints struct {
	applied []core.CheckResult
}

func (f *fakePoints) OnResultApplied(_ context.Context, _ *core.ServiceCheckConfig, result core.CheckResult) {
	f.applied = append(f.applied, result)
}

type fakeEngineMetrics struct {
	applied   int
	discarded map[string]int
	swept     int
}

func (m *fakeEngineMetrics) RecordResultApplied(_, _, _, _ string, _ int) { m.applied++ }
func (m *fakeEngineMetrics) RecordResultDiscarded(reason string) {
	if m.discarded == nil {
		m.discarded = map[string]int{}
	}
	m.discarded[reason]++
}
func (m *fakeEngineMetrics) RecordServiceState(_, _, _ string)        {}
func (m *fakeEngineMetrics) RecordStatusTransition(_, _, _, _ string) {}
func (m *fakeEngineMetrics) RecordRegionSweptStale()                  { m.swept++ }

type engineFixture struct {
	engine      *Engine
	store       *fakeStore
	deltas      *fakeDeltas
	transitions *fakeTransitions
	points      *fakePoints
	metrics     *fakeEngineMetrics
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	store := newFakeStore()
	store.cfgs["svc-1"] = &core.ServiceCheckConfig{
		ServiceID: "svc-1",
		NestID:    "nest-1",
		Type:      core.CheckHTTP,
		Interval:  60,
		Regions:   []string{"us-east-1", "eu-west-1"},
		Strategy:  core.StrategyAllSelected,
	}
	deltas := &fakeDeltas{}
	transitions := &fakeTransitions{}
	points := &fakePoints{}
	metrics := &fakeEngineMetrics{}
	sources := &fakeSources{approved: map[string]bool{"worker-1": true}}
	engine := NewEngine(store, sources, deltas, transitions, points, metrics, zap.NewNop())
	return &engineFixture{engine, store, deltas, transitions, points, metrics}
}

func result(region string, status core.CheckStatus, ts int64) core.CheckResult {
	return core.CheckResult{
		ServiceID:      "svc-1",
		NestID:         "nest-1",
		RegionID:       region,
		WorkerID:       "worker-1",
		Status:         status,
		ResponseTimeMs: 120,
		Timestamp:      ts,
	}
}

func TestApplyResult_UpdatesSlotAndNotifiesPoints(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	if err := f.engine.ApplyResult(ctx, result("us-east-1", core.StatusUp, 1000)); err != nil {
		t.Fatalf("ApplyResult failed: %v", err)
	}

	saved := f.store.statuses["svc-1"]
	if saved == nil {
		t.Fatal("status was not persisted")
	}
	slot := saved.Region("us-east-1")
	if slot == nil || slot.Status != core.StatusUp || slot.LastChecked != 1000 {
		t.Fatalf("unexpected slot: %+v", slot)
	}
	if saved.OverallStatus != core.StateDegraded {
		t.Errorf("one of two regions up should be degraded, got %q", saved.OverallStatus)
	}
	if len(f.points.applied) != 1 {
		t.Errorf("points sink called %d times, want 1", len(f.points.applied))
	}
	if f.metrics.applied != 1 {
		t.Errorf("applied metric recorded %d times, want 1", f.metrics.applied)
	}
}

func TestApplyResult_StaleTimestampIsSilentNoop(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	if err := f.engine.ApplyResult(ctx, result("us-east-1", core.StatusUp, 1000)); err != nil {
		t.Fatal(err)
	}
	saves := f.store.saves

	// An older result and a duplicate of the applied one are both
	// no-ops.
	if err := f.engine.ApplyResult(ctx, result("us-east-1", core.StatusDown, 500)); err != nil {
		t.Fatalf("stale result must not error: %v", err)
	}
	if err := f.engine.ApplyResult(ctx, result("us-east-1", core.StatusDown, 1000)); err != nil {
		t.Fatalf("duplicate result must not error: %v", err)
	}
	if f.store.saves != saves {
		t.Errorf("stale result persisted status %d more times", f.store.saves-saves)
	}
	if got := f.store.statuses["svc-1"].Region("us-east-1").Status; got != core.StatusUp {
		t.Errorf("slot overwritten by stale result: %q", got)
	}
	if len(f.points.applied) != 1 {
		t.Errorf("points awarded %d times, want 1", len(f.points.applied))
	}
	if f.metrics.discarded["stale"] != 2 {
		t.Errorf("discard reasons: %v", f.metrics.discarded)
	}
}

func TestApplyResult_FailedSaveStaysReplayable(t *testing.T) {
	f := newEngineFixture(t)
	f.store.failSaves = 1
	ctx := context.Background()

	r := result("us-east-1", core.StatusUp, 1000)
	if err := f.engine.ApplyResult(ctx, r); err == nil {
		t.Fatal("failed save must surface an error so the message stays pending")
	}
	if len(f.points.applied) != 0 {
		t.Error("points awarded for an unpersisted result")
	}

	// The redelivered identical result must still apply: the stamp only
	// advances once the aggregate is persisted.
	if err := f.engine.ApplyResult(ctx, r); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	slot := f.store.statuses["svc-1"].Region("us-east-1")
	if slot == nil || slot.Status != core.StatusUp || slot.LastChecked != 1000 {
		t.Fatalf("redelivered result not applied: %+v", slot)
	}
	if len(f.points.applied) != 1 {
		t.Errorf("points awarded %d times, want 1", len(f.points.applied))
	}
}

func TestApplyResult_UnknownServiceIsValidation(t *testing.T) {
	f := newEngineFixture(t)

	r := result("us-east-1", core.StatusUp, 1000)
	r.ServiceID = "no-such-service"
	err := f.engine.ApplyResult(context.Background(), r)
	if errs.KindOf(err) != errs.KindValidation {
		t.Fatalf("want validation error, got %v", err)
	}
	if f.metrics.discarded["unknown_service"] != 1 {
		t.Errorf("discard reasons: %v", f.metrics.discarded)
	}
}

func TestApplyResult_UnapprovedWorkerIsValidation(t *testing.T) {
	f := newEngineFixture(t)

	r := result("us-east-1", core.StatusUp, 1000)
	r.WorkerID = "rogue"
	err := f.engine.ApplyResult(context.Background(), r)
	if errs.KindOf(err) != errs.KindValidation {
		t.Fatalf("want validation error, got %v", err)
	}
	if f.metrics.discarded["unapproved_worker"] != 1 {
		t.Errorf("discard reasons: %v", f.metrics.discarded)
	}
}

func TestApplyResult_UnconfiguredRegionIsValidation(t *testing.T) {
	f := newEngineFixture(t)

	err := f.engine.ApplyResult(context.Background(), result("ap-se-1", core.StatusUp, 1000))
	if errs.KindOf(err) != errs.KindValidation {
		t.Fatalf("want validation error, got %v", err)
	}
	if f.metrics.discarded["unconfigured_region"] != 1 {
		t.Errorf("discard reasons: %v", f.metrics.discarded)
	}
}

func TestApplyResult_TransitionFiresOnceOnChange(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	if err := f.engine.ApplyResult(ctx, result("us-east-1", core.StatusUp, 1000)); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.ApplyResult(ctx, result("eu-west-1", core.StatusUp, 1001)); err != nil {
		t.Fatal(err)
	}
	// Both regions up now; a repeat up must not fire again.
	if err := f.engine.ApplyResult(ctx, result("us-east-1", core.StatusUp, 2000)); err != nil {
		t.Fatal(err)
	}

	want := []transition{
		{core.StateUnknown, core.StateDegraded},
		{core.StateDegraded, core.StateUp},
	}
	if len(f.transitions.seen) != len(want) {
		t.Fatalf("transitions %v, want %v", f.transitions.seen, want)
	}
	for i, tr := range want {
		if f.transitions.seen[i] != tr {
			t.Errorf("transition %d: got %v, want %v", i, f.transitions.seen[i], tr)
		}
	}
	if len(f.deltas.published) != 2 {
		t.Errorf("deltas published %d times, want 2", len(f.deltas.published))
	}
}

func TestApplyResult_RecoveryTransition(t *testing.T) {
	f := newEngineFixture(t)
	f.store.cfgs["svc-1"].Regions = []string{"us-east-1"}
	ctx := context.Background()

	if err := f.engine.ApplyResult(ctx, result("us-east-1", core.StatusDown, 1000)); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.ApplyResult(ctx, result("us-east-1", core.StatusUp, 2000)); err != nil {
		t.Fatal(err)
	}

	last := f.transitions.seen[len(f.transitions.seen)-1]
	if last.from != core.StateDown || last.to != core.StateUp {
		t.Errorf("last transition %v, want down->up", last)
	}
}

func TestSetMaintenance_OverridesImmediately(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	if err := f.engine.ApplyResult(ctx, result("us-east-1", core.StatusDown, 1000)); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.SetMaintenance(ctx, "svc-1", true); err != nil {
		t.Fatal(err)
	}

	if !f.store.maintenance["svc-1"] {
		t.Fatal("maintenance flag not persisted")
	}
	if got := f.store.statuses["svc-1"].OverallStatus; got != core.StateMaintenance {
		t.Fatalf("got %q, want maintenance", got)
	}
	// Results arriving during the window must not lift the override.
	if err := f.engine.ApplyResult(ctx, result("us-east-1", core.StatusUp, 2000)); err != nil {
		t.Fatal(err)
	}
	if got := f.store.statuses["svc-1"].OverallStatus; got != core.StateMaintenance {
		t.Errorf("result during maintenance flipped status to %q", got)
	}

	if err := f.engine.SetMaintenance(ctx, "svc-1", false); err != nil {
		t.Fatal(err)
	}
	if f.store.maintenance["svc-1"] {
		t.Error("maintenance flag not cleared")
	}
	if got := f.store.statuses["svc-1"].OverallStatus; got == core.StateMaintenance {
		t.Error("status stuck in maintenance after clearing")
	}
}

func TestGetStatus_InitializesUnknownSlots(t *testing.T) {
	f := newEngineFixture(t)

	status, err := f.engine.GetStatus(context.Background(), "svc-1")
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if status.OverallStatus != core.StateUnknown {
		t.Errorf("got %q, want unknown", status.OverallStatus)
	}
	if len(status.Regions) != 2 {
		t.Fatalf("got %d slots, want 2", len(status.Regions))
	}
	for _, slot := range status.Regions {
		if slot.Status != core.StatusUnknown {
			t.Errorf("slot %s initialized as %q", slot.RegionID, slot.Status)
		}
	}
}

func TestLoadOrInit_RealignsSlotsToConfig(t *testing.T) {
	f := newEngineFixture(t)
	// Stored status has a slot for a region no longer configured and is
	// missing one that is.
	f.store.statuses["svc-1"] = &core.ServiceStatus{
		ServiceID: "svc-1",
		NestID:    "nest-1",
		Regions: []core.RegionStatus{
			{RegionID: "ap-se-1", Status: core.StatusUp, LastChecked: 900},
			{RegionID: "us-east-1", Status: core.StatusUp, LastChecked: 900},
		},
	}

	status, err := f.engine.GetStatus(context.Background(), "svc-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(status.Regions) != 2 {
		t.Fatalf("got %d slots, want 2", len(status.Regions))
	}
	if status.Regions[0].RegionID != "us-east-1" || status.Regions[1].RegionID != "eu-west-1" {
		t.Errorf("slots not in config order: %+v", status.Regions)
	}
	if status.Regions[0].LastChecked != 900 {
		t.Error("kept slot lost its data")
	}
	if status.Regions[1].Status != core.StatusUnknown {
		t.Errorf("new slot should start unknown, got %q", status.Regions[1].Status)
	}
}

func TestSweepStale_MarksSilentRegionsUnknown(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	base := time.Now()
	f.engine.now = func() time.Time { return base }

	if err := f.engine.ApplyResult(ctx, result("us-east-1", core.StatusUp, base.UnixMilli())); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.ApplyResult(ctx, result("eu-west-1", core.StatusUp, base.UnixMilli())); err != nil {
		t.Fatal(err)
	}

	// Under the 3x interval threshold: nothing swept.
	f.engine.now = func() time.Time { return base.Add(2 * time.Minute) }
	f.engine.SweepStale(ctx)
	if f.metrics.swept != 0 {
		t.Fatalf("swept %d regions before threshold", f.metrics.swept)
	}

	// Past 3x the 60s interval: both slots go stale.
	f.engine.now = func() time.Time { return base.Add(4 * time.Minute) }
	f.engine.SweepStale(ctx)
	if f.metrics.swept != 2 {
		t.Fatalf("swept %d regions, want 2", f.metrics.swept)
	}

	status := f.store.statuses["svc-1"]
	if status.OverallStatus != core.StateUnknown {
		t.Errorf("got %q, want unknown after sweep", status.OverallStatus)
	}
	for _, slot := range status.Regions {
		if slot.Status != core.StatusUnknown {
			t.Errorf("slot %s still %q", slot.RegionID, slot.Status)
		}
	}
}

func TestSweepStale_SkipsNeverCheckedSlots(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.now = func() time.Time { return time.Now().Add(24 * time.Hour) }

	f.engine.SweepStale(context.Background())
	if f.metrics.swept != 0 {
		t.Errorf("swept %d never-checked regions", f.metrics.swept)
	}
}
