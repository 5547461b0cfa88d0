package incidents

import (
	"context"
	"testing"
	"time"

	"github.com/nestwatch/nestwatch/internal/core"
	"github.com/nestwatch/nestwatch/internal/db"
	"github.com/nestwatch/nestwatch/internal/errs"
	"go.uber.org/zap"
)

type fakeRepo struct {
	incidents map[string]*db.Incident
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{incidents: map[string]*db.Incident{}}
}

func (r *fakeRepo) CreateIncident(_ context.Context, inc *db.Incident) error {
	cp := *inc
	r.incidents[inc.ID] = &cp
	return nil
}

func (r *fakeRepo) GetActiveIncident(_ context.Context, serviceID string) (*db.Incident, error) {
	for _, inc := range r.incidents {
		if inc.ServiceID == serviceID && inc.ResolvedAt == nil {
			cp := *inc
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) UpdateIncident(_ context.Context, inc *db.Incident) error {
	cp := *inc
	r.incidents[inc.ID] = &cp
	return nil
}

func (r *fakeRepo) GetIncident(_ context.Context, incidentID string) (*db.Incident, error) {
	inc, ok := r.incidents[incidentID]
	if !ok {
		return nil, errs.NotFound("no incident %s", incidentID)
	}
	cp := *inc
	return &cp, nil
}

func (r *fakeRepo) ListIncidents(_ context.Context, nestID string, limit, _ int) ([]*db.Incident, error) {
	out := []*db.Incident{}
	for _, inc := range r.incidents {
		if inc.NestID == nestID && len(out) < limit {
			out = append(out, inc)
		}
	}
	return out, nil
}

func (r *fakeRepo) CountOpenIncidents(_ context.Context, nestID string) (int, error) {
	n := 0
	for _, inc := range r.incidents {
		if inc.NestID == nestID && inc.ResolvedAt == nil {
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) active(serviceID string) *db.Incident {
	inc, _ := r.GetActiveIncident(context.Background(), serviceID)
	return inc
}

func incidentFixture(t *testing.T) (*Service, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	return NewService(repo, nil, zap.NewNop()), repo
}

func svcConfig() *core.ServiceCheckConfig {
	return &core.ServiceCheckConfig{ServiceID: "svc-1", NestID: "nest-1"}
}

func downStatus() *core.ServiceStatus {
	return &core.ServiceStatus{
		ServiceID:     "svc-1",
		NestID:        "nest-1",
		OverallStatus: core.StateDown,
		Regions: []core.RegionStatus{
			{RegionID: "us-east-1", Status: core.StatusDown, LastChecked: 1000},
			{RegionID: "eu-west-1", Status: core.StatusTimeout, LastChecked: 1000},
		},
	}
}

func TestOnTransition_OpensCriticalOnDown(t *testing.T) {
	svc, repo := incidentFixture(t)

	svc.OnTransition(context.Background(), svcConfig(), downStatus(), core.StateUp, core.StateDown)

	inc := repo.active("svc-1")
	if inc == nil {
		t.Fatal("no incident opened")
	}
	if inc.Severity != "critical" {
		t.Errorf("severity %q, want critical", inc.Severity)
	}
	if inc.AffectedChecks != 1 {
		t.Errorf("affected checks %d, want 1", inc.AffectedChecks)
	}
	regions, ok := inc.Details["failing_regions"].(map[string]string)
	if !ok || regions["eu-west-1"] != "timeout" {
		t.Errorf("failing regions not captured: %v", inc.Details)
	}
}

func TestOnTransition_OpensWarningOnDegraded(t *testing.T) {
	svc, repo := incidentFixture(t)

	status := downStatus()
	status.OverallStatus = core.StateDegraded
	svc.OnTransition(context.Background(), svcConfig(), status, core.StateUp, core.StateDegraded)

	inc := repo.active("svc-1")
	if inc == nil || inc.Severity != "warning" {
		t.Fatalf("want a warning incident, got %+v", inc)
	}
}

func TestOnTransition_EscalatesDegradedToDown(t *testing.T) {
	svc, repo := incidentFixture(t)
	ctx := context.Background()

	status := downStatus()
	status.OverallStatus = core.StateDegraded
	svc.OnTransition(ctx, svcConfig(), status, core.StateUp, core.StateDegraded)
	svc.OnTransition(ctx, svcConfig(), downStatus(), core.StateDegraded, core.StateDown)

	if len(repo.incidents) != 1 {
		t.Fatalf("escalation opened a second incident: %d", len(repo.incidents))
	}
	inc := repo.active("svc-1")
	if inc.Severity != "critical" {
		t.Errorf("severity %q, want critical after escalation", inc.Severity)
	}
	if inc.AffectedChecks != 2 {
		t.Errorf("affected checks %d, want 2", inc.AffectedChecks)
	}
}

func TestOnTransition_NeverDeescalates(t *testing.T) {
	svc, repo := incidentFixture(t)
	ctx := context.Background()

	svc.OnTransition(ctx, svcConfig(), downStatus(), core.StateUp, core.StateDown)
	status := downStatus()
	status.OverallStatus = core.StateDegraded
	svc.OnTransition(ctx, svcConfig(), status, core.StateDown, core.StateDegraded)

	if got := repo.active("svc-1").Severity; got != "critical" {
		t.Errorf("partial recovery downgraded severity to %q", got)
	}
}

func TestOnTransition_ResolvesOnRecovery(t *testing.T) {
	svc, repo := incidentFixture(t)
	ctx := context.Background()

	opened := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return opened }
	svc.OnTransition(ctx, svcConfig(), downStatus(), core.StateUp, core.StateDown)

	svc.now = func() time.Time { return opened.Add(45 * time.Minute) }
	up := downStatus()
	up.OverallStatus = core.StateUp
	svc.OnTransition(ctx, svcConfig(), up, core.StateDown, core.StateUp)

	if repo.active("svc-1") != nil {
		t.Fatal("incident still active after recovery")
	}
	var inc *db.Incident
	for _, i := range repo.incidents {
		inc = i
	}
	if inc.ResolvedAt == nil {
		t.Fatal("resolved_at not set")
	}
	if inc.Details["resolution"] != "up" {
		t.Errorf("resolution detail: %v", inc.Details["resolution"])
	}
	if inc.Details["downtime_minutes"] != 45 {
		t.Errorf("downtime detail: %v", inc.Details["downtime_minutes"])
	}
}

func TestOnTransition_MaintenanceResolves(t *testing.T) {
	svc, repo := incidentFixture(t)
	ctx := context.Background()

	svc.OnTransition(ctx, svcConfig(), downStatus(), core.StateUp, core.StateDown)
	maint := downStatus()
	maint.OverallStatus = core.StateMaintenance
	svc.OnTransition(ctx, svcConfig(), maint, core.StateDown, core.StateMaintenance)

	if repo.active("svc-1") != nil {
		t.Error("maintenance did not resolve the incident")
	}
}

func TestOnTransition_RecoveryWithoutIncidentIsNoop(t *testing.T) {
	svc, repo := incidentFixture(t)

	up := downStatus()
	up.OverallStatus = core.StateUp
	svc.OnTransition(context.Background(), svcConfig(), up, core.StateUnknown, core.StateUp)

	if len(repo.incidents) != 0 {
		t.Errorf("recovery created %d incidents", len(repo.incidents))
	}
}

func TestAcknowledge(t *testing.T) {
	svc, repo := incidentFixture(t)
	ctx := context.Background()

	svc.OnTransition(ctx, svcConfig(), downStatus(), core.StateUp, core.StateDown)
	var id string
	for _, inc := range repo.incidents {
		id = inc.ID
	}

	if err := svc.Acknowledge(ctx, id, "oncall@example.com"); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	inc := repo.incidents[id]
	if inc.AcknowledgedAt == nil || inc.AcknowledgedBy == nil || *inc.AcknowledgedBy != "oncall@example.com" {
		t.Fatalf("acknowledgement not recorded: %+v", inc)
	}

	if err := svc.Acknowledge(ctx, id, "second@example.com"); errs.KindOf(err) != errs.KindValidation {
		t.Fatalf("double ack should be rejected, got %v", err)
	}
	if err := svc.Acknowledge(ctx, "ghost", "oncall@example.com"); !errs.IsNotFound(err) {
		t.Fatalf("want not-found, got %v", err)
	}
}
