package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wirebot_events_dispatched_total",
	Help: "Number of inbound events resolved by the dispatcher",
}, []string{"name", "result"})

var outputsSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wirebot_outputs_sent_total",
	Help: "Number of rendered outputs handed to the transport",
}, []string{"kind"})

var watcherFilesAdded = promauto.NewCounter(prometheus.CounterOpts{
	Name: "wirebot_watcher_files_added_total",
	Help: "Number of files first observed by watchers",
})

var reloads = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wirebot_reloads_total",
	Help: "Number of dictionary reloads",
}, []string{"result"})
