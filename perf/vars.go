package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	RoundLatency           = metric.NewHistogram("1m1s")
	AdvertisementsPerRound = metric.NewHistogram("1m1s")
	WithdrawalsPerRound    = metric.NewHistogram("1m1s")
	RoundsPerSecond        = metric.NewCounter("10s1s")
	Computations           = metric.NewCounter("1h1m")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("spindle:RoundLatency (µs)", RoundLatency)
	expvar.Publish("spindle:AdvertisementsPerRound", AdvertisementsPerRound)
	expvar.Publish("spindle:WithdrawalsPerRound", WithdrawalsPerRound)
	expvar.Publish("spindle:Rounds/s", RoundsPerSecond)
	expvar.Publish("spindle:Computations", Computations)
}
