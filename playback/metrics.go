package playback

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "player_state_transitions_total",
			Help: "Play state transitions, by target state",
		},
		[]string{"state"},
	)

	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "player_commands_total",
			Help: "Transport commands applied to the engine",
		},
		[]string{"command"},
	)
)
