package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "expertly_chat_messages_total",
		Help: "Messages accepted by the pipeline.",
	})

	translationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "expertly_chat_translations_total",
		Help: "Pipeline translation outcomes.",
	}, []string{"outcome"})
)
