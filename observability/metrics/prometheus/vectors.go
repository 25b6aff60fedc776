package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"langrpc/observability"
)

type vectors struct {
	summary *prometheus.SummaryVec
	errCnt  *prometheus.CounterVec
	active  *prometheus.GaugeVec
}

type opts struct {
	Namespace string
	Subsystem string
	Name      string
	Help      string
	Port      string
}

func newVectors(o opts, kind string, reg prometheus.Registerer) vectors {
	address := observability.GetOutboundIP()
	if o.Port != "" {
		address = address + ":" + o.Port
	}
	labels := map[string]string{
		"address": address,
		"kind":    kind,
	}
	res := vectors{
		summary: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Namespace:   o.Namespace,
			Subsystem:   o.Subsystem,
			Help:        o.Help,
			Name:        o.Name + "_response",
			ConstLabels: labels,
			Objectives: map[float64]float64{
				0.5:   0.01,
				0.75:  0.01,
				0.9:   0.01,
				0.99:  0.001,
				0.999: 0.0001,
			},
		}, []string{"route"}),
		errCnt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   o.Namespace,
			Subsystem:   o.Subsystem,
			Name:        o.Name + "_error_cnt",
			Help:        o.Help,
			ConstLabels: labels,
		}, []string{"route", "reason"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   o.Namespace,
			Subsystem:   o.Subsystem,
			Name:        o.Name + "_active_req_cnt",
			Help:        o.Help,
			ConstLabels: labels,
		}, []string{"route"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(res.summary, res.errCnt, res.active)
	return res
}
