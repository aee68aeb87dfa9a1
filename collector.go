package bookmark

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	labelTopic = "topic"
	labelSubID = "sub_id"
)

var (
	counterMessagesDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pubsub",
		Subsystem: "bookmark",
		Name:      "messages_delivered_count_total",
		Help:      "Number of messages delivered to the application for the subscription on the topic.",
	}, []string{
		labelTopic,
		labelSubID,
	})

	counterMessagesDiscarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pubsub",
		Subsystem: "bookmark",
		Name:      "messages_discarded_count_total",
		Help:      "Number of messages discarded after successful processing. Each discard has been durably recorded in the bookmark store before this counter advances.",
	}, []string{
		labelTopic,
		labelSubID,
	})

	counterDiscardFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pubsub",
		Subsystem: "bookmark",
		Name:      "discard_failures_count_total",
		Help:      "Number of discards that could not be written to the bookmark store. The affected messages will be redelivered after the next resume.",
	}, []string{
		labelTopic,
		labelSubID,
	})
)
