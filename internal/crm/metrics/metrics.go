// Package metrics declares the Prometheus collectors of the CRM service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RecordsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_records_created_total",
		Help: "Records created, by entity",
	}, []string{"entity"})

	RecordsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_records_deleted_total",
		Help: "Records removed, by entity and mode (soft or hard)",
	}, []string{"entity", "mode"})

	LeadsConverted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crm_leads_converted_total",
		Help: "Leads converted into customers",
	})

	LeadsIntake = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_lead_intake_messages_total",
		Help: "Lead submissions read from Kafka, by result",
	}, []string{"result"})

	EventsProduced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_events_produced_total",
		Help: "Domain events written to Kafka, by type",
	}, []string{"type"})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crm_events_dropped_total",
		Help: "Domain events dropped because the producer queue was full or the write failed",
	})

	DocumentBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crm_contract_document_bytes_total",
		Help: "Bytes of contract documents uploaded",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
