package lightmeter

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ztkent/tsl2561-meter/internal/tools"
)

// DefineRoutes mounts the dashboard and the JSON API on r. With localOnly
// the API refuses requests from outside the private networks.
func DefineRoutes(r chi.Router, meter *LightMeter, localOnly bool) {
	// Light Meter Dashboard Controls
	r.Get("/", meter.ServeDashboard())
	r.Route("/sunlightmeter", func(r chi.Router) {
		r.Get("/start", meter.Start())
		r.Get("/stop", meter.Stop())
		r.Post("/configure", meter.Configure())
		r.Get("/current-conditions", meter.CurrentConditions())
		r.Get("/export", meter.ServeResultsDB())
		r.Post("/graph", meter.ServeResultsGraph())
		r.Get("/controls", meter.ServeSunlightControls())
		r.Get("/status", meter.ServeSensorStatus())
		r.Post("/results", meter.ServeResultsTab())
		r.Get("/clear", meter.Clear())
	})

	// Light Meter API, these serve a JSON response
	r.Route("/api/v1", func(r chi.Router) {
		if localOnly {
			r.Use(tools.CheckInNetwork)
		}
		r.Get("/start", meter.Start())
		r.Get("/stop", meter.Stop())
		r.Post("/configure", meter.Configure())
		r.Get("/lux", meter.CurrentLux())
		r.Get("/raw", meter.RawChannels())
		r.Get("/current-conditions", meter.CurrentConditions())
		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			ServeJSON(w, http.StatusOK, meter.status())
		})
		r.Get("/export", meter.ServeResultsDB())
	})

	// Route for service identification
	r.Get("/id", func(w http.ResponseWriter, r *http.Request) {
		response := struct {
			ServiceName string `json:"service_name"`
			Pid         int    `json:"pid"`
		}{
			ServiceName: "TSL2561 Light Meter",
			Pid:         meter.Pid,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	})
}

// HandleServerPanic recovers from a panicking handler and reports a 500
func HandleServerPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				ServeJSON(w, http.StatusInternalServerError, map[string]interface{}{"message": err})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
