package rpc

import "time"

// Policy es la configuración de reintentos de una llamada. Sin estado.
type Policy struct {
	Timeout     time.Duration // por intento
	MaxRetries  int           // reintentos después del primer intento
	BaseBackoff time.Duration
	JitterMax   time.Duration
}

// DefaultPolicy: 8s por intento, 1 reintento, 200ms base, jitter < 200ms.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:     8 * time.Second,
		MaxRetries:  1,
		BaseBackoff: 200 * time.Millisecond,
		JitterMax:   200 * time.Millisecond,
	}
}

// Option modifica la política para una llamada puntual.
type Option func(*Policy)

func WithTimeout(d time.Duration) Option { return func(p *Policy) { p.Timeout = d } }

func WithRetries(n int) Option { return func(p *Policy) { p.MaxRetries = n } }

func WithBackoff(base, jitter time.Duration) Option {
	return func(p *Policy) {
		p.BaseBackoff = base
		p.JitterMax = jitter
	}
}

// With aplica opciones sobre una copia.
func (p Policy) With(opts ...Option) Policy {
	for _, o := range opts {
		o(&p)
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultPolicy().Timeout
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseBackoff < 0 {
		p.BaseBackoff = 0
	}
	if p.JitterMax < 0 {
		p.JitterMax = 0
	}
	return p
}

// maxShift evita overflow de base<<i con políticas absurdas.
const maxShift = 20

// Delay calcula la espera antes del reintento i (0 = primer reintento):
// BaseBackoff*2^i + jitter uniforme en [0, JitterMax).
// randN(n) debe devolver un valor en [0, n).
func (p Policy) Delay(i int, randN func(n int64) int64) time.Duration {
	if i < 0 {
		i = 0
	}
	if i > maxShift {
		i = maxShift
	}
	d := p.BaseBackoff << uint(i)
	if p.JitterMax > 0 && randN != nil {
		d += time.Duration(randN(int64(p.JitterMax)))
	}
	return d
}
