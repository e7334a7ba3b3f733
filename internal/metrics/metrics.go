package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Colectores del gateway. Viven en un paquete propio para que rpc, lock,
// readthrough y coordinator puedan usarlos sin ciclos de import.

var (
	RPCRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_rpc_requests_total",
		Help: "Llamadas RPC por patrón y resultado (ok|transient|permanent)",
	}, []string{"pattern", "outcome"})

	RPCRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_rpc_retries_total",
		Help: "Reintentos RPC por patrón",
	}, []string{"pattern"})

	RPCDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_rpc_duration_seconds",
		Help:    "Latencia total de una llamada RPC (incluye reintentos y backoff)",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"pattern"})

	LockAcquire = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_lock_acquire_total",
		Help: "Intentos de adquirir locks de idempotencia (acquired|held|error)",
	}, []string{"scope", "result"})

	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_cache_lookups_total",
		Help: "Lecturas del cache read-through por recurso, tipo (entity|list) y resultado (hit|miss)",
	}, []string{"resource", "kind", "result"})

	SagaOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_saga_total",
		Help: "Sagas por resultado (completed|failed|compensated|compensation_failed)",
	}, []string{"saga", "result"})
)

// Register registra los colectores en el registry dado (o el default si es nil).
// Ignora duplicados para que tests y `serve` puedan llamarlo más de una vez.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{RPCRequests, RPCRetries, RPCDuration, LockAcquire, CacheLookups, SagaOutcomes} {
		if err := RegisterCollector(reg, c); err != nil {
			return err
		}
	}
	return nil
}

// RegisterCollector registra un collector ignorando AlreadyRegisteredError.
func RegisterCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}
