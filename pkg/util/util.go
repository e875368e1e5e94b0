package util

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/prometheus/client_golang/prometheus"
)

func ConvertListE[A any, B any](listA []A, convert func(A) (B, error)) ([]B, error) {
	listB := make([]B, len(listA))
	for i, a := range listA {
		b, err := convert(a)
		if err != nil {
			return nil, err
		}
		listB[i] = b
	}

	return listB, nil
}

func ConvertList[A any, B any](listA []A, convert func(A) B) []B {
	listB := make([]B, len(listA))
	for i, a := range listA {
		listB[i] = convert(a)
	}

	return listB
}

type nopLogger struct{}

func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Debugf(string, ...interface{}) {}

func NewRestyClient(timeout time.Duration, retries int) *resty.Client {
	c := resty.
		New().
		SetRetryCount(retries).
		SetLogger(nopLogger{}).
		SetTimeout(timeout).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			retry, _ := retryablehttp.DefaultRetryPolicy(r.Request.Context(), r.RawResponse, err)
			return retry
		})
	c.JSONMarshal = json.Marshal
	c.JSONUnmarshal = json.Unmarshal
	return c
}

// Ptr returns pointer of any value.
func Ptr[T any](t T) *T {
	return &t
}

// Val returns value if pointer is not null, otherwise it returns zero.
func Val[T any](t *T) T {
	if t != nil {
		return *t
	}

	var def T
	return def
}

func GetHistogramVec(name string, labels ...string) (*prometheus.HistogramVec, error) {
	metrics := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: name,
		Buckets: []float64{
			0.0005,
			0.001, // 1ms
			0.002,
			0.005,
			0.01, // 10ms
			0.02,
			0.05,
			0.1, // 100 ms
			0.2,
			0.5,
			1.0, // 1s
			2.0,
			5.0,
			10.0, // 10s
		},
	}, labels)
	return registerOrExisting(metrics)
}

// RegisterHistogramVec is GetHistogramVec with caller supplied options.
func RegisterHistogramVec(opts prometheus.HistogramOpts, labels ...string) (*prometheus.HistogramVec, error) {
	return registerOrExisting(prometheus.NewHistogramVec(opts, labels))
}

func GetCounterVec(name, help string, labels ...string) (*prometheus.CounterVec, error) {
	return registerOrExisting(prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: help,
	}, labels))
}

func GetGauge(name, help string) (prometheus.Gauge, error) {
	return registerOrExisting(prometheus.NewGauge(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	}))
}

// registerOrExisting registers c, or returns the collector already registered
// under the same descriptor so repeated construction (tests, session reopen)
// keeps working.
func registerOrExisting[C prometheus.Collector](c C) (C, error) {
	if err := prometheus.Register(c); err != nil {
		var registeredErr prometheus.AlreadyRegisteredError
		if ok := errors.As(err, &registeredErr); ok {
			existing, ok := registeredErr.ExistingCollector.(C)
			if ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register: %w %T", err, err)
	}

	return c, nil
}
