// Package saga ejecuta escrituras multi-servicio como una lista ordenada de
// pasos {acción, compensación}. Si un paso falla se compensan, en orden inverso,
// todos los pasos ya completados y se devuelve el error original del paso.
//
// El estado vive solo en memoria durante el request; no se persiste.
package saga

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/gateway/internal/metrics"
	"github.com/dropDatabas3/gateway/internal/observability/logger"
	"go.uber.org/zap"
)

// State es un estado de la máquina de la saga.
type State string

const (
	StateStart        State = "Start"
	StateCompensating State = "Compensating"
	StateFailed       State = "Failed"
)

// Resultados reportados en métricas.
const (
	ResultCompleted          = "completed"
	ResultFailed             = "failed"
	ResultCompensated        = "compensated"
	ResultCompensationFailed = "compensation_failed"
)

// Step es una unidad de trabajo. Reaches es el estado alcanzado al completarse.
// Compensate puede ser nil (paso sin efecto a deshacer).
type Step struct {
	Name       string
	Reaches    State
	Action     func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// CompensationError describe una compensación fallida.
type CompensationError struct {
	Step string
	Err  error
}

func (e CompensationError) Error() string {
	return fmt.Sprintf("saga: compensate %s: %v", e.Step, e.Err)
}

func (e CompensationError) Unwrap() error { return e.Err }

// Result es el registro de una ejecución.
type Result struct {
	History            []State
	FailedStep         string
	CompensationErrors []CompensationError
}

// Final devuelve el último estado alcanzado.
func (r *Result) Final() State {
	if len(r.History) == 0 {
		return StateStart
	}
	return r.History[len(r.History)-1]
}

// Saga es una definición reusable. Run no muta la Saga: seguro para uso concurrente.
type Saga struct {
	Name  string
	Steps []Step

	// OnCompensationFailure se llama por cada compensación fallida (además del log).
	OnCompensationFailure func(ctx context.Context, step string, err error)
}

// Run ejecuta los pasos en orden. Ningún paso arranca antes de observar el éxito
// del anterior. Las compensaciones corren con un contexto que ignora la
// cancelación de ctx: una vez iniciada, la vuelta atrás se completa.
//
// El error devuelto es siempre el del paso fallido, nunca uno de compensación.
func (s *Saga) Run(ctx context.Context) (*Result, error) {
	log := logger.From(ctx).With(logger.Saga(s.Name))
	res := &Result{History: []State{StateStart}}

	done := make([]Step, 0, len(s.Steps))
	for _, st := range s.Steps {
		if err := st.Action(ctx); err != nil {
			res.FailedStep = st.Name
			log.Info("saga step failed", logger.Step(st.Name), logger.Err(err))
			s.compensate(ctx, log, done, res)
			res.History = append(res.History, StateFailed)
			s.record(res)
			return res, err
		}
		done = append(done, st)
		if st.Reaches != "" {
			res.History = append(res.History, st.Reaches)
		}
		log.Debug("saga step done", logger.Step(st.Name), zap.String("state", string(res.Final())))
	}
	s.record(res)
	return res, nil
}

func (s *Saga) compensate(ctx context.Context, log *zap.Logger, done []Step, res *Result) {
	pending := 0
	for _, st := range done {
		if st.Compensate != nil {
			pending++
		}
	}
	if pending == 0 {
		return
	}
	res.History = append(res.History, StateCompensating)

	cctx := context.WithoutCancel(ctx)
	for i := len(done) - 1; i >= 0; i-- {
		st := done[i]
		if st.Compensate == nil {
			continue
		}
		if err := st.Compensate(cctx); err != nil {
			res.CompensationErrors = append(res.CompensationErrors, CompensationError{Step: st.Name, Err: err})
			log.Error("saga compensation failed", logger.Step(st.Name), logger.Err(err))
			if s.OnCompensationFailure != nil {
				s.OnCompensationFailure(cctx, st.Name, err)
			}
			continue
		}
		log.Info("saga step compensated", logger.Step(st.Name))
	}
}

func (s *Saga) record(res *Result) {
	result := ResultCompleted
	switch {
	case res.FailedStep == "":
	case len(res.CompensationErrors) > 0:
		result = ResultCompensationFailed
	case containsState(res.History, StateCompensating):
		result = ResultCompensated
	default:
		result = ResultFailed
	}
	metrics.SagaOutcomes.WithLabelValues(s.Name, result).Inc()
}

func containsState(h []State, s State) bool {
	for _, x := range h {
		if x == s {
			return true
		}
	}
	return false
}

// CompensationFailed reporta si la ejecución dejó compensaciones sin aplicar.
func (r *Result) CompensationFailed() bool { return len(r.CompensationErrors) > 0 }

// JoinCompensationErrors agrupa los errores de compensación (para logs/diagnóstico).
func (r *Result) JoinCompensationErrors() error {
	errs := make([]error, 0, len(r.CompensationErrors))
	for _, e := range r.CompensationErrors {
		errs = append(errs, e)
	}
	return errors.Join(errs...)
}
