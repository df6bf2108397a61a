package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewDispatchMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDispatchMetrics(reg)

	m.ObserveDispatch("agendarCita", "success", 0.25)
	m.ObserveSlotCheck(false, "fuera_de_horario")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected registered metric families")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *DispatchMetrics
	m.ObserveDispatch("x", "y", 1)
	m.ObserveSlotCheck(true, "")
}
