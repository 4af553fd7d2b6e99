package lightmeter

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ztkent/tsl2561-meter/internal/config"
	"github.com/ztkent/tsl2561-meter/tsl2561"
)

//go:embed html/*
var templateFiles embed.FS

type LightMeter struct {
	*tsl2561.TSL2561
	LuxResultsChan chan LuxResults
	ResultsDB      *sql.DB
	Publisher      Publisher
	Log            *logrus.Logger
	Location       *time.Location
	RecordInterval time.Duration
	MaxJobDuration time.Duration
	DBPath         string
	Pid            int

	mu     sync.Mutex
	cancel context.CancelFunc
	jobID  string
	jobs   sync.WaitGroup
}

type LuxResults struct {
	JobID        string  `json:"jobID"`
	Lux          float64 `json:"lux"`
	Saturated    bool    `json:"saturated"`
	RawFull      uint16  `json:"rawFull"`
	RawInfrared  uint16  `json:"rawInfrared"`
	FullSpectrum float64 `json:"fullSpectrum"`
	Visible      float64 `json:"visible"`
	Infrared     float64 `json:"infrared"`
	Gain         string  `json:"gain"`
	Timing       string  `json:"timing"`

	gain   tsl2561.Gain
	timing tsl2561.IntegrationTime
}

type Conditions struct {
	JobID                 string  `json:"jobID"`
	Lux                   float64 `json:"lux"`
	Saturated             bool    `json:"saturated"`
	FullSpectrum          float64 `json:"fullSpectrum"`
	Visible               float64 `json:"visible"`
	Infrared              float64 `json:"infrared"`
	DateRange             string  `json:"dateRange"`
	RecordedHoursInRange  float64 `json:"recordedHoursInRange"`
	FullSunlightInRange   float64 `json:"fullSunlightInRange"`
	LightConditionInRange string  `json:"lightConditionInRange"`
	AverageLuxInRange     float64 `json:"averageLuxInRange"`
}

// New builds a LightMeter from the loaded configuration.
func New(sensor *tsl2561.TSL2561, db *sql.DB, cfg *config.Config, l *logrus.Logger) *LightMeter {
	loc, err := time.LoadLocation(cfg.Location)
	if err != nil {
		loc = time.UTC
	}
	return &LightMeter{
		TSL2561:        sensor,
		LuxResultsChan: make(chan LuxResults),
		ResultsDB:      db,
		Log:            l,
		Location:       loc,
		RecordInterval: cfg.RecordInterval,
		MaxJobDuration: cfg.MaxJobDuration,
		DBPath:         cfg.DBPath,
	}
}

// Recording reports whether a measurement job is running.
func (m *LightMeter) Recording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// Start a measurement job, readings are recorded every RecordInterval
func (m *LightMeter) Start() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.Log.Info("It's going to be a bright day!")
		if m.TSL2561 == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		jobID, err := m.StartJob()
		if err != nil {
			ServeResponse(w, r, err.Error(), http.StatusBadRequest)
			return
		}
		ServeResponse(w, r, "Light Reading Started: "+jobID, http.StatusOK)
	}
}

// StartJob launches the measurement loop and returns its job ID.
func (m *LightMeter) StartJob() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return "", errors.New("The sensor is already started")
	}

	// The job stops itself after MaxJobDuration
	ctx, cancel := context.WithTimeout(context.Background(), m.MaxJobDuration)
	m.cancel = cancel
	m.jobID = uuid.New().String()

	jobID := m.jobID
	m.jobs.Add(1)
	go func() {
		defer m.jobs.Done()
		defer m.finishJob(jobID)
		m.runJob(ctx, jobID)
	}()
	return jobID, nil
}

// Stop the running measurement job
func (m *LightMeter) Stop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.TSL2561 == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		if !m.StopJob() {
			ServeResponse(w, r, "The sensor is already stopped", http.StatusBadRequest)
			return
		}
		ServeResponse(w, r, "Light Reading Stopped", http.StatusOK)
	}
}

// StopJob cancels the running job and waits for it to exit. It reports
// false when nothing was running.
func (m *LightMeter) StopJob() bool {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	m.jobs.Wait()
	return true
}

func (m *LightMeter) finishJob(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jobID == jobID && m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// Reads block in the driver until the integration started by the last
// configuration has completed, so the first tick can read right away
func (m *LightMeter) runJob(ctx context.Context, jobID string) {
	ticker := time.NewTicker(m.RecordInterval)
	defer ticker.Stop()
	for {
		m.takeReading(ctx, jobID)
		select {
		case <-ctx.Done():
			m.Log.WithField("job_id", jobID).Info("Job Cancelled, stopping readings")
			return
		case <-ticker.C:
		}
	}
}

func (m *LightMeter) takeReading(ctx context.Context, jobID string) {
	log := m.Log.WithField("job_id", jobID)

	result, err := m.Read(jobID)
	if err != nil {
		log.WithError(err).Error("The sensor failed to get luminosity")
		return
	}

	select {
	case m.LuxResultsChan <- result:
	case <-ctx.Done():
		return
	}

	if result.Saturated {
		log.Warn("The sensor is saturated, attempting to set new optimal sensor gain")
		changed, err := m.SetOptimalGain()
		if err != nil {
			log.WithError(err).Error("The sensor failed to determine new optimal gain")
		} else if changed {
			log.Info("The sensor has been reconfigured with a new optimal gain")
		}
	}
}

// Read both channels and convert them into a result for jobID.
func (m *LightMeter) Read(jobID string) (LuxResults, error) {
	reading, err := m.GetReading()
	if err != nil {
		return LuxResults{}, err
	}
	ch0, ch1 := reading.Full, reading.Infrared
	return LuxResults{
		JobID:        jobID,
		Lux:          reading.Lux,
		Saturated:    reading.Saturated,
		RawFull:      ch0,
		RawInfrared:  ch1,
		Visible:      tsl2561.GetNormalizedOutput(tsl2561.TSL2561_VISIBLE, ch0, ch1),
		Infrared:     tsl2561.GetNormalizedOutput(tsl2561.TSL2561_INFRARED, ch0, ch1),
		FullSpectrum: tsl2561.GetNormalizedOutput(tsl2561.TSL2561_FULLSPECTRUM, ch0, ch1),
		Gain:         reading.Gain.String(),
		Timing:       reading.Timing.String(),
		gain:         reading.Gain,
		timing:       reading.Timing,
	}, nil
}

// Configure the sensor gain, timing and package from the form values
// gain, timing and package. Missing values keep the current setting.
func (m *LightMeter) Configure() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.TSL2561 == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		if err := r.ParseForm(); err != nil {
			ServeResponse(w, r, err.Error(), http.StatusBadRequest)
			return
		}

		gain, timing, pack := m.Settings()
		var err error
		if v := r.FormValue("gain"); v != "" {
			if gain, err = config.ParseGain(v); err != nil {
				ServeResponse(w, r, err.Error(), http.StatusBadRequest)
				return
			}
		}
		if v := r.FormValue("timing"); v != "" {
			if timing, err = config.ParseTiming(v); err != nil {
				ServeResponse(w, r, err.Error(), http.StatusBadRequest)
				return
			}
		}
		if v := r.FormValue("package"); v != "" {
			if pack, err = config.ParsePackage(v); err != nil {
				ServeResponse(w, r, err.Error(), http.StatusBadRequest)
				return
			}
		}

		if err := m.Init(gain, timing, pack); err != nil {
			m.Log.WithError(err).Error("Failed to configure the sensor")
			ServeResponse(w, r, err.Error(), statusForError(err))
			return
		}
		ServeResponse(w, r, fmt.Sprintf("Sensor configured - Gain: %v, Integration Time: %v, Package: %v", gain, timing, pack), http.StatusOK)
	}
}

// Take a reading right now, outside of any job
func (m *LightMeter) CurrentLux() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.TSL2561 == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		reading, err := m.GetReading()
		if err != nil {
			m.Log.WithError(err).Error("The sensor failed to calculate lux")
			ServeResponse(w, r, err.Error(), statusForError(err))
			return
		}
		ServeJSON(w, http.StatusOK, map[string]interface{}{
			"lux":       reading.Lux,
			"saturated": reading.Saturated,
			"gain":      reading.Gain.String(),
			"timing":    reading.Timing.String(),
			"package":   reading.Package.String(),
		})
	}
}

// Serve the raw channel counts
func (m *LightMeter) RawChannels() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.TSL2561 == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		full, err := m.GetRawFullSpectrum()
		if err != nil {
			ServeResponse(w, r, err.Error(), statusForError(err))
			return
		}
		ir, err := m.GetRawInfrared()
		if err != nil {
			ServeResponse(w, r, err.Error(), statusForError(err))
			return
		}
		visible, err := m.GetRawVisible()
		if err != nil {
			ServeResponse(w, r, err.Error(), statusForError(err))
			return
		}
		ServeJSON(w, http.StatusOK, map[string]uint16{
			"fullSpectrum": full,
			"infrared":     ir,
			"visible":      visible,
		})
	}
}

// Serve data about the most recent entry saved to the db
func (m *LightMeter) CurrentConditions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.TSL2561 == nil {
			ServeResponse(w, r, "The sensor is not connected", http.StatusBadRequest)
			return
		}
		conditions, err := m.getCurrentConditions()
		if errors.Is(err, sql.ErrNoRows) {
			ServeResponse(w, r, "No readings recorded yet", http.StatusNotFound)
			return
		} else if err != nil {
			m.Log.WithError(err).Error("Failed to read current conditions")
			ServeResponse(w, r, err.Error(), http.StatusInternalServerError)
			return
		}
		ServeJSON(w, http.StatusOK, conditions)
	}
}

// Return the most recent entry saved to the db
func (m *LightMeter) getCurrentConditions() (Conditions, error) {
	conditions := Conditions{}
	row := m.ResultsDB.QueryRow("SELECT job_id, lux, saturated, full_spectrum, visible, infrared FROM lux_readings ORDER BY id DESC LIMIT 1")
	err := row.Scan(&conditions.JobID, &conditions.Lux, &conditions.Saturated, &conditions.FullSpectrum, &conditions.Visible, &conditions.Infrared)
	if err != nil {
		return Conditions{}, err
	}
	return conditions, nil
}

// Read from LuxResultsChan, write the results to sqlite and publish them
func (m *LightMeter) MonitorAndRecordResults(ctx context.Context) {
	m.Log.Info("Monitoring for new light readings...")
	for {
		select {
		case <-ctx.Done():
			return
		case result := <-m.LuxResultsChan:
			m.recordResult(result)
		}
	}
}

func (m *LightMeter) recordResult(result LuxResults) {
	log := m.Log.WithFields(logrus.Fields{"job_id": result.JobID, "lux": result.Lux, "saturated": result.Saturated})
	log.Info("Recording light reading")
	_, err := m.ResultsDB.Exec(
		`INSERT INTO lux_readings (job_id, lux, saturated, raw_full, raw_infrared, full_spectrum, visible, infrared, gain, timing)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.JobID,
		result.Lux,
		result.Saturated,
		result.RawFull,
		result.RawInfrared,
		result.FullSpectrum,
		result.Visible,
		result.Infrared,
		result.gain,
		result.timing,
	)
	if err != nil {
		log.WithError(err).Error("Failed to record light reading")
	}
	if m.Publisher != nil {
		if err := m.Publisher.Publish(result); err != nil {
			log.WithError(err).Error("Failed to publish light reading")
		}
	}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, tsl2561.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, tsl2561.ErrNotStarted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Populate the response div with a message, or reply with a JSON message
func ServeResponse(w http.ResponseWriter, r *http.Request, message string, status int) {
	if strings.Contains(r.URL.Path, "/api/v1/") {
		ServeJSON(w, status, map[string]string{"message": message})
		return
	}

	tmpl, err := parseTemplateFile("html/response.gohtml")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(status)
	tmpl.Execute(w, message)
}

func ServeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseTemplateFile(path string) (*template.Template, error) {
	content, err := templateFiles.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded template: %w", err)
	}
	tmpl, err := template.New(path).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return tmpl, nil
}
