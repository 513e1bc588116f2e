package moderation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var punishmentsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_punishments_applied",
	Help: "Number of punishments applied, by kind",
}, []string{"kind"})

var punishmentFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_punishment_failures",
	Help: "Number of failed platform moderation calls, by operation and failure class",
}, []string{"op", "class"})

var escalations = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_warning_escalations",
	Help: "Number of automatic timeouts applied for reaching the maximum warning count",
})

var commandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_commands_executed",
	Help: "Number of moderator commands executed, by command",
}, []string{"command"})
