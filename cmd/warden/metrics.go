package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventPanics = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_event_panics",
	Help: "Number of gateway event handlers which panicked",
}, []string{"event"})

var commandDenied = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_commands_denied",
	Help: "Number of slash commands refused by the permission policy",
}, []string{"command"})
