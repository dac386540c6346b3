package registry

import (
	"context"
	"io"
	"testing"

	"log/slog"

	"github.com/hullhost/hullhost/internal/domain"
)

func newTestRegistry() *Registry {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type recordingObserver struct {
	created []string
	started []string
	stopped []string
	deleted []string
}

func (o *recordingObserver) InstanceCreated(inst domain.ContainerInstance) {
	o.created = append(o.created, inst.ID)
}
func (o *recordingObserver) InstanceStarted(id string) { o.started = append(o.started, id) }
func (o *recordingObserver) InstanceStopped(id string) { o.stopped = append(o.stopped, id) }
func (o *recordingObserver) InstanceDeleted(id string) { o.deleted = append(o.deleted, id) }

func TestCreateAppliesDefaultsAndOverrides(t *testing.T) {
	reg := newTestRegistry()

	inst := reg.Create("img-1", domain.ResourceLimits{})
	if inst.Resources != DefaultLimits {
		t.Fatalf("expected default limits, got %+v", inst.Resources)
	}
	if inst.Status != domain.InstanceStatusRunning {
		t.Fatalf("expected new instance to be running, got %s", inst.Status)
	}
	if inst.ID == "" || inst.Endpoint == "" {
		t.Fatalf("expected id and endpoint to be assigned, got %+v", inst)
	}

	custom := reg.Create("img-1", domain.ResourceLimits{MemoryLimit: "256MB"})
	if custom.Resources.MemoryLimit != "256MB" {
		t.Fatalf("override not applied: %+v", custom.Resources)
	}
	if custom.Resources.CPULimit != DefaultLimits.CPULimit || custom.Resources.DiskLimit != DefaultLimits.DiskLimit {
		t.Fatalf("unexpected defaults after override: %+v", custom.Resources)
	}
	if custom.ID == inst.ID {
		t.Fatalf("instance ids must be unique")
	}
}

func TestListByImageKeepsCreationOrder(t *testing.T) {
	reg := newTestRegistry()
	var want []string
	for i := 0; i < 4; i++ {
		want = append(want, reg.Create("img-1", domain.ResourceLimits{}).ID)
	}
	reg.Create("img-2", domain.ResourceLimits{})

	got, err := reg.ListByImage(context.Background(), "img-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d instances, got %d", len(want), len(got))
	}
	for i, inst := range got {
		if inst.ID != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], inst.ID)
		}
	}
}

func TestStopAndDeleteReportMissingInstances(t *testing.T) {
	reg := newTestRegistry()
	if reg.Stop("ghost") {
		t.Fatalf("stop of missing instance must return false")
	}
	if reg.Delete("ghost") {
		t.Fatalf("delete of missing instance must return false")
	}
	if reg.UpdateResources("ghost", domain.ResourceLimits{CPULimit: "2.0"}) {
		t.Fatalf("resource update of missing instance must return false")
	}

	inst := reg.Create("img-1", domain.ResourceLimits{})
	if !reg.Stop(inst.ID) {
		t.Fatalf("expected stop to succeed")
	}
	got, _ := reg.Get(inst.ID)
	if got.Status != domain.InstanceStatusStopped {
		t.Fatalf("expected stopped status, got %s", got.Status)
	}
	if !reg.Delete(inst.ID) {
		t.Fatalf("expected delete to succeed")
	}
	if _, ok := reg.Get(inst.ID); ok {
		t.Fatalf("instance still present after delete")
	}
	list, _ := reg.ListByImage(context.Background(), "img-1")
	if len(list) != 0 {
		t.Fatalf("expected empty image after delete, got %d", len(list))
	}
}

func TestUpdateResourcesMergesPartialLimits(t *testing.T) {
	reg := newTestRegistry()
	inst := reg.Create("img-1", domain.ResourceLimits{})
	if !reg.UpdateResources(inst.ID, domain.ResourceLimits{CPULimit: "2.0"}) {
		t.Fatalf("expected update to succeed")
	}
	got, _ := reg.Get(inst.ID)
	if got.Resources.CPULimit != "2.0" {
		t.Fatalf("cpu limit not updated: %+v", got.Resources)
	}
	if got.Resources.MemoryLimit != DefaultLimits.MemoryLimit {
		t.Fatalf("memory limit should be untouched: %+v", got.Resources)
	}
}

func TestObserversFollowLifecycle(t *testing.T) {
	reg := newTestRegistry()
	obs := &recordingObserver{}
	reg.Subscribe(obs)

	inst := reg.Create("img-1", domain.ResourceLimits{})
	reg.Stop(inst.ID)
	reg.Start(inst.ID)
	reg.Delete(inst.ID)

	if len(obs.created) != 1 || obs.created[0] != inst.ID {
		t.Fatalf("created notifications: %v", obs.created)
	}
	if len(obs.stopped) != 1 || len(obs.started) != 1 || len(obs.deleted) != 1 {
		t.Fatalf("lifecycle notifications incomplete: %+v", obs)
	}
}
