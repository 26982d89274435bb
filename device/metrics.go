package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var resourceHeld = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "player_resource_held",
		Help: "Whether a playback resource is currently held (1) or released (0)",
	},
	[]string{"resource"},
)
