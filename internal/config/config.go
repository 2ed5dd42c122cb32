// Package config loads the presence-node configuration from defaults, an
// optional YAML file, PRESENCE_* environment variables and command-line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sweeney/presence-node/internal/gpio"
	"github.com/sweeney/presence-node/internal/logic"
	"github.com/sweeney/presence-node/internal/mqtt"
	"github.com/sweeney/presence-node/internal/radio"
	"github.com/sweeney/presence-node/internal/scan"
	"github.com/sweeney/presence-node/internal/status"
)

// EnvPrefix prefixes every environment override, e.g. PRESENCE_MQTT_BROKER.
const EnvPrefix = "PRESENCE"

// Radio backends.
const (
	RadioBLE    = "ble"
	RadioSerial = "serial"
	RadioFake   = "fake"
)

// Viper keys.
const (
	KeyNodeID        = "node_id"
	KeyLogLevel      = "log_level"
	KeyLoop          = "loop"
	KeyHeartbeat     = "heartbeat"
	KeyScanDuration  = "scan.duration"
	KeyScanCycle     = "scan.cycle"
	KeyScanFailures  = "scan.max_failures"
	KeyDeviceTimeout = "devices.timeout"
	KeyMaxDevices    = "devices.max"
	KeyMaxKnown      = "devices.max_known"
	KeyMaxLog        = "devices.max_log"
	KeyRSSIThreshold = "devices.rssi_threshold"
	KeyGPIOEnabled   = "gpio.enabled"
	KeyGPIOChip      = "gpio.chip"
	KeyPinRelay      = "gpio.relay_pin"
	KeyPinLED        = "gpio.led_pin"
	KeyBroker        = "mqtt.broker"
	KeyTopicPrefix   = "mqtt.topic_prefix"
	KeyOutboxSize    = "mqtt.outbox_size"
	KeyHTTPAddr      = "http.addr"
	KeyDBPath        = "db.path"
	KeyRadio         = "radio.backend"
	KeySerialPort    = "radio.serial_port"
	KeySerialBaud    = "radio.baud"
	KeyQueueSize     = "radio.queue_size"
)

// Config is the resolved daemon configuration.
type Config struct {
	NodeID    string
	LogLevel  string
	Loop      time.Duration
	Heartbeat time.Duration

	ScanDuration   time.Duration
	CycleDuration  time.Duration
	MaxFailedScans int

	DeviceTimeout        time.Duration
	MaxDevices           int
	MaxKnown             int
	MaxLog               int
	DefaultRSSIThreshold int

	GPIOEnabled bool
	GPIOChip    string
	PinRelay    int
	PinLED      int

	Broker      string
	TopicPrefix string
	OutboxSize  int

	HTTPAddr string
	DBPath   string

	Radio      string
	SerialPort string
	SerialBaud int
	QueueSize  int
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyNodeID, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLoop, 100*time.Millisecond)
	v.SetDefault(KeyHeartbeat, 15*time.Minute)
	v.SetDefault(KeyScanDuration, scan.DefaultScanDuration)
	v.SetDefault(KeyScanCycle, scan.DefaultCycleDuration)
	v.SetDefault(KeyScanFailures, scan.DefaultMaxFailedScans)
	v.SetDefault(KeyDeviceTimeout, logic.DefaultDeviceTimeout)
	v.SetDefault(KeyMaxDevices, logic.DefaultMaxDevices)
	v.SetDefault(KeyMaxKnown, logic.DefaultMaxKnown)
	v.SetDefault(KeyMaxLog, logic.DefaultMaxLog)
	v.SetDefault(KeyRSSIThreshold, logic.DefaultRSSIThreshold)
	v.SetDefault(KeyGPIOEnabled, true)
	v.SetDefault(KeyGPIOChip, "gpiochip0")
	v.SetDefault(KeyPinRelay, gpio.PinRelay)
	v.SetDefault(KeyPinLED, gpio.PinLED)
	v.SetDefault(KeyBroker, "tcp://192.168.1.200:1883")
	v.SetDefault(KeyTopicPrefix, mqtt.DefaultTopicPrefix)
	v.SetDefault(KeyOutboxSize, mqtt.DefaultOutboxSize)
	v.SetDefault(KeyHTTPAddr, ":80")
	v.SetDefault(KeyDBPath, "/var/lib/presence-node/presence.db")
	v.SetDefault(KeyRadio, RadioBLE)
	v.SetDefault(KeySerialPort, "/dev/ttyUSB0")
	v.SetDefault(KeySerialBaud, 115200)
	v.SetDefault(KeyQueueSize, radio.DefaultQueueSize)
}

// BindFlags defines the daemon flags on fs and binds them to their keys.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.String("node-id", "", "node identity (generated and persisted when empty)")
	fs.Duration("loop", 100*time.Millisecond, "control loop period")
	fs.Duration("heartbeat", 15*time.Minute, "heartbeat interval (0 to disable)")
	fs.Duration("scan", scan.DefaultScanDuration, "scan window per cycle")
	fs.Duration("cycle", scan.DefaultCycleDuration, "scan cycle period")
	fs.Duration("timeout", logic.DefaultDeviceTimeout, "device expiry timeout")
	fs.Int("rssi-threshold", logic.DefaultRSSIThreshold, "default RSSI threshold in dBm")
	fs.Bool("gpio", true, "drive the relay and LED lines")
	fs.String("gpio-chip", "gpiochip0", "GPIO character device")
	fs.Int("pin-relay", gpio.PinRelay, "BCM pin number for the relay")
	fs.Int("pin-led", gpio.PinLED, "BCM pin number for the LED")
	fs.String("broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	fs.String("topic-prefix", mqtt.DefaultTopicPrefix, "MQTT topic prefix")
	fs.String("http", ":80", "HTTP address (empty to disable)")
	fs.String("radio", RadioBLE, "radio backend: ble, serial or fake")
	fs.String("serial-port", "/dev/ttyUSB0", "serial device of the BLE co-processor")
	fs.Int("baud", 115200, "serial baud rate")

	bind := map[string]string{
		"node-id":        KeyNodeID,
		"loop":           KeyLoop,
		"heartbeat":      KeyHeartbeat,
		"scan":           KeyScanDuration,
		"cycle":          KeyScanCycle,
		"timeout":        KeyDeviceTimeout,
		"rssi-threshold": KeyRSSIThreshold,
		"gpio":           KeyGPIOEnabled,
		"gpio-chip":      KeyGPIOChip,
		"pin-relay":      KeyPinRelay,
		"pin-led":        KeyPinLED,
		"broker":         KeyBroker,
		"topic-prefix":   KeyTopicPrefix,
		"http":           KeyHTTPAddr,
		"radio":          KeyRadio,
		"serial-port":    KeySerialPort,
		"baud":           KeySerialBaud,
	}
	for name, key := range bind {
		v.BindPFlag(key, fs.Lookup(name))
	}
}

// BindStoreFlags defines the flags shared by every command: the config file
// is handled by the caller, the database path and log level here.
func BindStoreFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.String("db", "/var/lib/presence-node/presence.db", "SQLite database path")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	v.BindPFlag(KeyDBPath, fs.Lookup("db"))
	v.BindPFlag(KeyLogLevel, fs.Lookup("log-level"))
}

// New returns a viper instance with defaults and environment lookup set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file (if not empty) into v and resolves the configuration.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
		log.WithFields(log.Fields{"component": "config", "file": v.ConfigFileUsed()}).Debug("config file loaded")
	}

	c := Config{
		NodeID:               v.GetString(KeyNodeID),
		LogLevel:             v.GetString(KeyLogLevel),
		Loop:                 v.GetDuration(KeyLoop),
		Heartbeat:            v.GetDuration(KeyHeartbeat),
		ScanDuration:         v.GetDuration(KeyScanDuration),
		CycleDuration:        v.GetDuration(KeyScanCycle),
		MaxFailedScans:       v.GetInt(KeyScanFailures),
		DeviceTimeout:        v.GetDuration(KeyDeviceTimeout),
		MaxDevices:           v.GetInt(KeyMaxDevices),
		MaxKnown:             v.GetInt(KeyMaxKnown),
		MaxLog:               v.GetInt(KeyMaxLog),
		DefaultRSSIThreshold: v.GetInt(KeyRSSIThreshold),
		GPIOEnabled:          v.GetBool(KeyGPIOEnabled),
		GPIOChip:             v.GetString(KeyGPIOChip),
		PinRelay:             v.GetInt(KeyPinRelay),
		PinLED:               v.GetInt(KeyPinLED),
		Broker:               v.GetString(KeyBroker),
		TopicPrefix:          v.GetString(KeyTopicPrefix),
		OutboxSize:           v.GetInt(KeyOutboxSize),
		HTTPAddr:             v.GetString(KeyHTTPAddr),
		DBPath:               v.GetString(KeyDBPath),
		Radio:                strings.ToLower(v.GetString(KeyRadio)),
		SerialPort:           v.GetString(KeySerialPort),
		SerialBaud:           v.GetInt(KeySerialBaud),
		QueueSize:            v.GetInt(KeyQueueSize),
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	if c.Loop <= 0 {
		errs = append(errs, errors.New("loop period must be positive"))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, errors.New("heartbeat must not be negative"))
	}
	if c.ScanDuration <= 0 {
		errs = append(errs, errors.New("scan duration must be positive"))
	}
	if c.CycleDuration < c.ScanDuration {
		errs = append(errs, fmt.Errorf("cycle %v is shorter than scan %v", c.CycleDuration, c.ScanDuration))
	}
	if c.MaxFailedScans <= 0 {
		errs = append(errs, errors.New("max failed scans must be positive"))
	}
	if c.DeviceTimeout <= 0 {
		errs = append(errs, errors.New("device timeout must be positive"))
	}
	if c.MaxDevices <= 0 || c.MaxKnown <= 0 || c.MaxLog <= 0 {
		errs = append(errs, errors.New("capacities must be positive"))
	}
	// 0 dBm would mean "unset" to the engine.
	if c.DefaultRSSIThreshold >= 0 || c.DefaultRSSIThreshold < -127 {
		errs = append(errs, fmt.Errorf("rssi threshold %d out of range [-127, -1]", c.DefaultRSSIThreshold))
	}
	if c.GPIOEnabled && (c.PinRelay < 0 || c.PinLED < 0 || c.PinRelay == c.PinLED) {
		errs = append(errs, fmt.Errorf("invalid gpio pins relay=%d led=%d", c.PinRelay, c.PinLED))
	}
	if c.Broker == "" {
		errs = append(errs, errors.New("mqtt broker not set"))
	}
	switch c.Radio {
	case RadioBLE, RadioFake:
	case RadioSerial:
		if c.SerialPort == "" {
			errs = append(errs, errors.New("serial radio needs a serial port"))
		}
		if c.SerialBaud <= 0 {
			errs = append(errs, errors.New("baud must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown radio backend %q", c.Radio))
	}
	return errors.Join(errs...)
}

// Limits returns the engine limits.
func (c Config) Limits() logic.Limits {
	return logic.Limits{
		MaxDevices:           c.MaxDevices,
		MaxKnown:             c.MaxKnown,
		MaxLog:               c.MaxLog,
		DefaultRSSIThreshold: c.DefaultRSSIThreshold,
		DeviceTimeout:        c.DeviceTimeout,
	}
}

// Scan returns the scan controller timing.
func (c Config) Scan() scan.Config {
	return scan.Config{
		ScanDuration:   c.ScanDuration,
		CycleDuration:  c.CycleDuration,
		MaxFailedScans: c.MaxFailedScans,
	}
}

// Status returns the display configuration for the status tracker.
func (c Config) Status(nodeID string) status.Config {
	return status.Config{
		NodeID:      nodeID,
		LoopMs:      c.Loop.Milliseconds(),
		ScanMs:      c.ScanDuration.Milliseconds(),
		CycleMs:     c.CycleDuration.Milliseconds(),
		TimeoutMs:   c.DeviceTimeout.Milliseconds(),
		HeartbeatMs: c.Heartbeat.Milliseconds(),
		Broker:      c.Broker,
		HTTPAddr:    c.HTTPAddr,
		Radio:       c.Radio,
	}
}
