package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ztkent/tsl2561-meter/tsl2561"
)

// Config holds all application configuration values.
type Config struct {
	// Logging
	LogLevel string
	LogFile  string

	// I2C
	I2CDriver string // "devfs" or "periph"
	I2CBus    string // /dev/i2c-1 for devfs, a periph bus name otherwise
	I2CClock  uint32 // Hz

	// Sensor
	SensorAddr    tsl2561.Address
	SensorGain    tsl2561.Gain
	SensorTiming  tsl2561.IntegrationTime
	SensorPackage tsl2561.Package

	// Recording
	DBPath         string
	RecordInterval time.Duration
	MaxJobDuration time.Duration
	Location       string // timezone used to read dashboard date ranges

	// Server
	Port      string
	SSL       bool
	LocalOnly bool

	// MQTT, disabled when the broker is empty
	MQTTBroker   string
	MQTTClientID string
	MQTTTopic    string
}

// Keys that can be set in the config file or the environment
var Keys = []string{
	"LOG_LEVEL", "LOG_FILE",
	"I2C_DRIVER", "I2C_BUS", "I2C_CLOCK_HZ",
	"TSL2561_ADDR", "TSL2561_GAIN", "TSL2561_TIMING", "TSL2561_PACKAGE",
	"DB_PATH", "RECORD_INTERVAL", "MAX_JOB_DURATION", "LOCATION",
	"PORT", "SSL", "LOCAL_ONLY",
	"MQTT_BROKER", "MQTT_CLIENT_ID", "MQTT_TOPIC",
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LogLevel:       "info",
		LogFile:        "slm.log",
		I2CDriver:      "devfs",
		I2CBus:         "/dev/i2c-1",
		I2CClock:       tsl2561.TSL2561_DEFAULT_CLOCK,
		SensorAddr:     tsl2561.TSL2561_ADDR_HIGH,
		SensorGain:     tsl2561.TSL2561_GAIN_16X,
		SensorTiming:   tsl2561.TSL2561_INTEGRATIONTIME_13MS,
		SensorPackage:  tsl2561.TSL2561_PACKAGE_T_FN_CL,
		DBPath:         "lightmeter.db",
		RecordInterval: 30 * time.Second,
		MaxJobDuration: 8 * time.Hour,
		Location:       "America/Indiana/Indianapolis",
		MQTTClientID:   "tsl2561-meter",
		MQTTTopic:      "lightmeter/lux",
	}
}

// Load reads an optional KEY=VALUE file, then applies environment
// overrides. An empty configPath skips the file.
func Load(configPath string) (*Config, error) {
	cfg := Default()
	if configPath != "" {
		if err := cfg.loadFile(configPath); err != nil {
			return nil, err
		}
	}
	for _, key := range Keys {
		if value, ok := os.LookupEnv(key); ok {
			if err := cfg.setValue(key, strings.TrimSpace(value)); err != nil {
				return nil, fmt.Errorf("env %s: %w", key, err)
			}
		}
	}
	return cfg, nil
}

// ListenPort is PORT when set, otherwise 443 with SSL and 80 without.
func (c *Config) ListenPort() string {
	if c.Port != "" {
		return c.Port
	}
	if c.SSL {
		return "443"
	}
	return "80"
}

func (c *Config) loadFile(configPath string) error {
	file, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}
		if err := c.setValue(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])); err != nil {
			return fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	case "LOG_LEVEL":
		c.LogLevel = strings.ToLower(value)
	case "LOG_FILE":
		c.LogFile = value

	case "I2C_DRIVER":
		value = strings.ToLower(value)
		if value != "devfs" && value != "periph" {
			return fmt.Errorf("I2C_DRIVER must be devfs or periph, got %q", value)
		}
		c.I2CDriver = value
	case "I2C_BUS":
		c.I2CBus = value
	case "I2C_CLOCK_HZ":
		var hz uint64
		hz, err = strconv.ParseUint(value, 10, 32)
		c.I2CClock = uint32(hz)

	case "TSL2561_ADDR":
		c.SensorAddr, err = ParseAddress(value)
	case "TSL2561_GAIN":
		c.SensorGain, err = ParseGain(value)
	case "TSL2561_TIMING":
		c.SensorTiming, err = ParseTiming(value)
	case "TSL2561_PACKAGE":
		c.SensorPackage, err = ParsePackage(value)

	case "DB_PATH":
		c.DBPath = value
	case "RECORD_INTERVAL":
		c.RecordInterval, err = parsePositiveDuration(value)
	case "MAX_JOB_DURATION":
		c.MaxJobDuration, err = parsePositiveDuration(value)
	case "LOCATION":
		if _, err = time.LoadLocation(value); err == nil {
			c.Location = value
		}

	case "PORT":
		c.Port = value
	case "SSL":
		c.SSL, err = strconv.ParseBool(value)
	case "LOCAL_ONLY":
		c.LocalOnly, err = strconv.ParseBool(value)

	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "MQTT_TOPIC":
		c.MQTTTopic = value

	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// ParseAddress accepts low, float, high or a hex address.
func ParseAddress(value string) (tsl2561.Address, error) {
	switch strings.ToLower(value) {
	case "low", "gnd":
		return tsl2561.TSL2561_ADDR_LOW, nil
	case "float", "normal":
		return tsl2561.TSL2561_ADDR_FLOAT, nil
	case "high", "vdd":
		return tsl2561.TSL2561_ADDR_HIGH, nil
	}
	n, err := strconv.ParseUint(value, 0, 16)
	if err != nil {
		return 0, err
	}
	addr := tsl2561.Address(n)
	if !addr.Valid() {
		return 0, tsl2561.ErrInvalidAddress
	}
	return addr, nil
}

// ParseGain accepts 0/1x or 1/16x.
func ParseGain(value string) (tsl2561.Gain, error) {
	switch strings.ToLower(value) {
	case "0", "1x":
		return tsl2561.TSL2561_GAIN_1X, nil
	case "1", "16x":
		return tsl2561.TSL2561_GAIN_16X, nil
	}
	return 0, tsl2561.ErrInvalidGain
}

// ParseTiming accepts 0/13ms, 1/101ms or 2/402ms.
func ParseTiming(value string) (tsl2561.IntegrationTime, error) {
	switch strings.ToLower(value) {
	case "0", "13ms":
		return tsl2561.TSL2561_INTEGRATIONTIME_13MS, nil
	case "1", "101ms":
		return tsl2561.TSL2561_INTEGRATIONTIME_101MS, nil
	case "2", "402ms":
		return tsl2561.TSL2561_INTEGRATIONTIME_402MS, nil
	}
	return 0, tsl2561.ErrInvalidTiming
}

// ParsePackage accepts 0/cs or 1/t.
func ParsePackage(value string) (tsl2561.Package, error) {
	switch strings.ToLower(value) {
	case "0", "cs":
		return tsl2561.TSL2561_PACKAGE_CS, nil
	case "1", "t", "fn", "cl", "t/fn/cl":
		return tsl2561.TSL2561_PACKAGE_T_FN_CL, nil
	}
	return 0, tsl2561.ErrInvalidPackage
}

// Job intervals feed time.NewTicker and context.WithTimeout, both need d > 0
func parsePositiveDuration(value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", value)
	}
	return d, nil
}
