package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"sentinel/internal/domain"
	"sentinel/internal/rules"
	"sentinel/internal/templatefmt"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultHTTPListen      = ":8080"
	defaultHealthPath      = "/healthz"
	defaultReadyPath       = "/readyz"
	defaultMetricsPath     = "/metrics"
	defaultStatePath       = "/state"
	defaultMaxBodyBytes    = 1 << 20
	defaultNATSURL         = "nats://127.0.0.1:4222"
	defaultIngestSubject   = "sentinel.reports"
	defaultIngestStream    = "SENTINEL_REPORTS"
	defaultIngestConsumer  = "sentinel-ingest"
	defaultIngestGroup     = "sentinel-workers"
	defaultQueueSubject    = "sentinel.notify"
	defaultQueueStream     = "SENTINEL_NOTIFY"
	defaultQueueConsumer   = "sentinel-notify"
	defaultQueueGroup      = "sentinel-notify-workers"
	defaultQueueDLQSubject = "sentinel.notify.dlq"
	defaultQueueDLQStream  = "SENTINEL_NOTIFY_DLQ"
	defaultWorkers         = 1
	defaultAckWaitSec      = 30
	defaultNackDelayMS     = 1000
	defaultMaxDeliver      = 5
	defaultMaxAckPending   = 2048
	defaultRedisAddr       = "127.0.0.1:6379"
	defaultRedisKeyPrefix  = "sentinel:"
	defaultAckDurationSec  = 4 * 60 * 60
	defaultNotifyTimeout   = 10

	// ServiceModeSingle runs ingest, routing, and delivery in one process
	// with the in-process queue.
	ServiceModeSingle = "single"
	// ServiceModeCluster runs the JetStream-backed ingest and delivery queue.
	ServiceModeCluster = "cluster"

	// StoreBackendMemory keeps history and windows in process memory.
	StoreBackendMemory = "memory"
	// StoreBackendRedis keeps history and windows in Redis.
	StoreBackendRedis = "redis"

	// TransportTelegram identifies the Telegram delivery channel.
	TransportTelegram = "telegram"
	// TransportWebhook identifies the generic HTTP delivery channel.
	TransportWebhook = "webhook"
	// TransportEmail identifies an email medium routed through the webhook channel.
	TransportEmail = "email"
	// TransportSMS identifies an SMS medium routed through the webhook channel.
	TransportSMS = "sms"
	// TransportPagerduty identifies a pager medium routed through the webhook channel.
	TransportPagerduty = "pagerduty"
)

var (
	knownTransports = map[string]struct{}{
		TransportTelegram:  {},
		TransportWebhook:   {},
		TransportEmail:     {},
		TransportSMS:       {},
		TransportPagerduty: {},
	}
	// Media on these transports repeat while a check stays failing and must
	// carry an interval. Pagerduty escalates on its own and must not.
	throttledTransports = map[string]struct{}{
		TransportEmail: {},
		TransportSMS:   {},
	}
	weekdayNames = map[string]time.Weekday{
		"sunday":    time.Sunday,
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
	}
)

// Config holds service runtime settings and contact routing data.
// Params: TOML sections from file or merged directory snapshot.
// Returns: validated runtime configuration.
type Config struct {
	Service ServiceConfig   `toml:"service"`
	Log     LogConfig       `toml:"log"`
	Store   StoreConfig     `toml:"store"`
	Ingest  IngestConfig    `toml:"ingest"`
	Queue   QueueConfig     `toml:"queue"`
	Notify  NotifyConfig    `toml:"notify"`
	Contact []ContactConfig `toml:"contact"`
}

// ServiceConfig contains process-level settings.
// Params: service name and runtime mode.
// Returns: service behavior defaults.
type ServiceConfig struct {
	Name string `toml:"name"`
	Mode string `toml:"mode"`
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// StoreConfig selects the history/window persistence backend.
// Params: backend selector and Redis connection settings.
// Returns: store backend options.
type StoreConfig struct {
	Backend string      `toml:"backend"`
	Redis   RedisConfig `toml:"redis"`
}

// RedisConfig defines the Redis connection for the redis backend.
// Params: address, database number, password, and key prefix.
// Returns: Redis client options.
type RedisConfig struct {
	Addr      string `toml:"addr"`
	DB        int    `toml:"db"`
	Password  string `toml:"password"`
	KeyPrefix string `toml:"key_prefix"`
}

// IngestConfig defines inbound state-report interfaces.
// Params: embedded HTTP and NATS subscription controls.
// Returns: ingestion runtime options.
type IngestConfig struct {
	HTTP HTTPIngestConfig `toml:"http"`
	NATS NATSIngestConfig `toml:"nats"`
}

// HTTPIngestConfig configures the HTTP boundary listener.
// Params: enable flag, listen address, fixed endpoint paths, and body limit.
// Returns: HTTP ingest behavior.
type HTTPIngestConfig struct {
	Enabled      bool   `toml:"enabled"`
	Listen       string `toml:"listen"`
	HealthPath   string `toml:"-"`
	ReadyPath    string `toml:"-"`
	MetricsPath  string `toml:"-"`
	StatePath    string `toml:"-"`
	MaxBodyBytes int64  `toml:"max_body_bytes"`
}

// NATSIngestConfig configures JetStream queue-consumer ingestion.
// Params: connection and worker/ack policy; stream routing keys are runtime-fixed.
// Returns: NATS ingest behavior.
type NATSIngestConfig struct {
	Enabled       bool     `toml:"enabled"`
	URL           []string `toml:"url"`
	Subject       string   `toml:"-"`
	Stream        string   `toml:"-"`
	ConsumerName  string   `toml:"-"`
	DeliverGroup  string   `toml:"-"`
	Workers       int      `toml:"workers"`
	AckWaitSec    int      `toml:"ack_wait_sec"`
	NackDelayMS   int      `toml:"nack_delay_ms"`
	MaxDeliver    int      `toml:"max_deliver"`
	MaxAckPending int      `toml:"max_ack_pending"`
}

// QueueConfig defines the asynchronous notification delivery queue.
// Params: worker/ack policy and DLQ toggle; URL and routing keys are runtime-fixed.
// Returns: delivery queue controls.
type QueueConfig struct {
	URL           string   `toml:"-"`
	Subject       string   `toml:"-"`
	Stream        string   `toml:"-"`
	ConsumerName  string   `toml:"-"`
	DeliverGroup  string   `toml:"-"`
	Workers       int      `toml:"workers"`
	AckWaitSec    int      `toml:"ack_wait_sec"`
	NackDelayMS   int      `toml:"nack_delay_ms"`
	MaxDeliver    int      `toml:"max_deliver"`
	MaxAckPending int      `toml:"max_ack_pending"`
	DLQ           QueueDLQ `toml:"-"`
	DLQEnabled    bool     `toml:"dlq"`
}

// QueueDLQ holds runtime-fixed dead-letter stream settings.
// Params: enable flag and fixed stream/subject names.
// Returns: DLQ routing for queue workers.
type QueueDLQ struct {
	Enabled bool
	Stream  string
	Subject string
}

// NotifyConfig defines outbound delivery behavior.
// Params: acknowledgement window, per-channel transports, and template overrides.
// Returns: notification controls.
type NotifyConfig struct {
	AckDurationSec int64             `toml:"ack_duration_sec"`
	Telegram       TelegramNotifier  `toml:"telegram"`
	Webhook        WebhookNotifier   `toml:"webhook"`
	Templates      map[string]string `toml:"templates"`
}

// NotifyRetry configures outbound delivery retries.
// Params: retry toggle, backoff, attempt limits, and logging.
// Returns: retry policy for one channel.
type NotifyRetry struct {
	Enabled        bool   `toml:"enabled"`
	Backoff        string `toml:"backoff"`
	InitialMS      int    `toml:"initial_ms"`
	MaxMS          int    `toml:"max_ms"`
	MaxAttempts    int    `toml:"max_attempts"`
	LogEachAttempt bool   `toml:"log_each_attempt"`
}

// TelegramNotifier defines the Telegram channel.
// Params: enabled flag, bot token, chat ID, API base URL, and retry policy.
// Returns: Telegram sender configuration.
type TelegramNotifier struct {
	Enabled  bool        `toml:"enabled"`
	BotToken string      `toml:"bot_token"`
	ChatID   string      `toml:"chat_id"`
	APIBase  string      `toml:"api_base"`
	Retry    NotifyRetry `toml:"retry"`
}

// WebhookNotifier defines the generic outbound HTTP channel.
// Params: URL, method, timeout, optional static headers, and retry policy.
// Returns: webhook sender configuration.
type WebhookNotifier struct {
	Enabled    bool              `toml:"enabled"`
	URL        string            `toml:"url"`
	Method     string            `toml:"method"`
	TimeoutSec int               `toml:"timeout_sec"`
	Headers    map[string]string `toml:"headers"`
	Retry      NotifyRetry       `toml:"retry"`
}

// ContactConfig describes one notification recipient.
// Params: identity, timezone, owned media, and notification rules.
// Returns: contact definition converted by ToContacts.
type ContactConfig struct {
	ID       string              `toml:"id"`
	Name     string              `toml:"name"`
	Timezone string              `toml:"timezone"`
	Medium   []MediumConfig      `toml:"medium"`
	Rule     []ContactRuleConfig `toml:"rule"`
}

// MediumConfig describes one delivery endpoint of a contact.
// Params: transport name, address, repeat interval, and rollup threshold.
// Returns: medium definition.
type MediumConfig struct {
	Transport       string `toml:"transport"`
	Address         string `toml:"address"`
	IntervalSec     int64  `toml:"interval_sec"`
	RollupThreshold int    `toml:"rollup_threshold"`
}

// ContactRuleConfig describes one notification rule of a contact.
// Params: entity/tag selectors, per-severity media and blackholes, and
// recurring time restrictions.
// Returns: rule definition.
type ContactRuleConfig struct {
	Entities          []string                `toml:"entities"`
	Tags              []string                `toml:"tags"`
	WarningMedia      []string                `toml:"warning_media"`
	CriticalMedia     []string                `toml:"critical_media"`
	BlackholeWarning  bool                    `toml:"blackhole_warning"`
	BlackholeCritical bool                    `toml:"blackhole_critical"`
	TimeRestriction   []TimeRestrictionConfig `toml:"time_restriction"`
}

// TimeRestrictionConfig describes one recurring rule activity window.
// Params: weekday names, start-of-day offset, and duration in seconds.
// Returns: restriction definition anchored in the contact's timezone.
type TimeRestrictionConfig struct {
	Weekdays    []string `toml:"weekdays"`
	StartSec    int64    `toml:"start_sec"`
	DurationSec int64    `toml:"duration_sec"`
}

// Source describes file or directory config source.
// Params: exactly one of file path or directory path.
// Returns: normalized source descriptor.
type Source struct {
	File string
	Dir  string
}

// FromCLI builds a normalized source from command-line paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (Source, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return Source{}, errors.New("either --config-file or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return Source{}, errors.New("config source must be either file or dir")
	}

	if filePath != "" {
		return Source{File: filePath}, nil
	}
	return Source{Dir: dirPath}, nil
}

// LoadSnapshot loads and validates configuration from one source.
// Params: source selects file or directory mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src Source) (Config, error) {
	var cfg Config
	var err error
	if src.File != "" {
		cfg, err = loadFile(src.File)
	} else {
		cfg, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile reads one TOML configuration file.
// Params: file path to config snapshot.
// Returns: decoded config or read/decode error.
func loadFile(path string) (Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(body, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	return cfg, nil
}

// loadFileForMerge reads one TOML file with merge hints.
// Params: file path to config fragment.
// Returns: decoded config plus explicit-bool hints for overlay merge.
func loadFileForMerge(path string) (Config, mergeHints, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, mergeHints{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(body, &cfg); err != nil {
		return Config{}, mergeHints{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	var hints mergeHints
	if err := toml.Unmarshal(body, &hints); err != nil {
		return Config{}, mergeHints{}, fmt.Errorf("decode merge hints %q: %w", path, err)
	}
	return cfg, hints, nil
}

// loadDir reads and merges TOML fragments from one directory in lexical order.
// Params: directory containing config fragments.
// Returns: merged config snapshot or load/decode error.
func loadDir(dir string) (Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Config{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return Config{}, fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	var merged Config
	for _, file := range files {
		fragment, hints, err := loadFileForMerge(file)
		if err != nil {
			return Config{}, err
		}
		mergeConfig(&merged, fragment, hints)
	}
	return merged, nil
}

// mergeHints carries explicit bool-presence markers used for directory overlays.
// Params: sparse bool fields decoded from one TOML fragment.
// Returns: merge behavior hints for zero-value bool overrides.
type mergeHints struct {
	Ingest ingestMergeHints `toml:"ingest"`
	Queue  queueMergeHints  `toml:"queue"`
	Notify notifyMergeHints `toml:"notify"`
}

// ingestMergeHints tracks explicit enabled flags in ingest sections.
type ingestMergeHints struct {
	HTTP sectionMergeHints `toml:"http"`
	NATS sectionMergeHints `toml:"nats"`
}

// queueMergeHints tracks explicit bool fields in the queue section.
type queueMergeHints struct {
	DLQ *bool `toml:"dlq"`
}

// notifyMergeHints tracks explicit enabled flags in notify channel sections.
type notifyMergeHints struct {
	Telegram sectionMergeHints `toml:"telegram"`
	Webhook  sectionMergeHints `toml:"webhook"`
}

// sectionMergeHints tracks one explicit enabled flag.
type sectionMergeHints struct {
	Enabled *bool `toml:"enabled"`
}

// mergeConfig overlays one fragment onto the destination snapshot.
// Params: destination config, next fragment, and bool-presence hints.
// Returns: merged configuration side-effect in dst.
func mergeConfig(dst *Config, src Config, hints mergeHints) {
	if src.Service != (ServiceConfig{}) {
		dst.Service = src.Service
	}
	if src.Log != (LogConfig{}) {
		dst.Log = src.Log
	}
	if src.Store != (StoreConfig{}) {
		dst.Store = src.Store
	}
	mergeIngestConfig(&dst.Ingest, src.Ingest, hints.Ingest)
	mergeQueueConfig(&dst.Queue, src.Queue, hints.Queue)
	mergeNotifyConfig(&dst.Notify, src.Notify, hints.Notify)
	if len(src.Contact) > 0 {
		dst.Contact = append(dst.Contact, src.Contact...)
	}
}

// mergeIngestConfig overlays ingest fragment preserving sibling sections.
// Params: destination ingest config, fragment, and enabled-flag hints.
// Returns: merged ingest configuration side-effect in dst.
func mergeIngestConfig(dst *IngestConfig, src IngestConfig, hints ingestMergeHints) {
	applyBoolMerge(&dst.HTTP.Enabled, src.HTTP.Enabled, hints.HTTP.Enabled)
	if strings.TrimSpace(src.HTTP.Listen) != "" {
		dst.HTTP.Listen = src.HTTP.Listen
	}
	if src.HTTP.MaxBodyBytes != 0 {
		dst.HTTP.MaxBodyBytes = src.HTTP.MaxBodyBytes
	}
	applyBoolMerge(&dst.NATS.Enabled, src.NATS.Enabled, hints.NATS.Enabled)
	if len(src.NATS.URL) > 0 {
		dst.NATS.URL = append([]string(nil), src.NATS.URL...)
	}
	if src.NATS.Workers != 0 {
		dst.NATS.Workers = src.NATS.Workers
	}
	if src.NATS.AckWaitSec != 0 {
		dst.NATS.AckWaitSec = src.NATS.AckWaitSec
	}
	if src.NATS.NackDelayMS != 0 {
		dst.NATS.NackDelayMS = src.NATS.NackDelayMS
	}
	if src.NATS.MaxDeliver != 0 {
		dst.NATS.MaxDeliver = src.NATS.MaxDeliver
	}
	if src.NATS.MaxAckPending != 0 {
		dst.NATS.MaxAckPending = src.NATS.MaxAckPending
	}
}

// mergeQueueConfig overlays delivery queue fragment.
// Params: destination queue config, fragment, and DLQ hint.
// Returns: merged queue config side-effect in dst.
func mergeQueueConfig(dst *QueueConfig, src QueueConfig, hints queueMergeHints) {
	if src.Workers != 0 {
		dst.Workers = src.Workers
	}
	if src.AckWaitSec != 0 {
		dst.AckWaitSec = src.AckWaitSec
	}
	if src.NackDelayMS != 0 {
		dst.NackDelayMS = src.NackDelayMS
	}
	if src.MaxDeliver != 0 {
		dst.MaxDeliver = src.MaxDeliver
	}
	if src.MaxAckPending != 0 {
		dst.MaxAckPending = src.MaxAckPending
	}
	applyBoolMerge(&dst.DLQEnabled, src.DLQEnabled, hints.DLQ)
}

// mergeNotifyConfig overlays notify fragment preserving sibling channels.
// Params: destination notify config, fragment, and enabled-flag hints.
// Returns: merged notify configuration side-effect in dst.
func mergeNotifyConfig(dst *NotifyConfig, src NotifyConfig, hints notifyMergeHints) {
	if src.AckDurationSec != 0 {
		dst.AckDurationSec = src.AckDurationSec
	}
	applyBoolMerge(&dst.Telegram.Enabled, src.Telegram.Enabled, hints.Telegram.Enabled)
	if strings.TrimSpace(src.Telegram.BotToken) != "" {
		dst.Telegram.BotToken = src.Telegram.BotToken
	}
	if strings.TrimSpace(src.Telegram.ChatID) != "" {
		dst.Telegram.ChatID = src.Telegram.ChatID
	}
	if strings.TrimSpace(src.Telegram.APIBase) != "" {
		dst.Telegram.APIBase = src.Telegram.APIBase
	}
	if src.Telegram.Retry != (NotifyRetry{}) {
		dst.Telegram.Retry = src.Telegram.Retry
	}
	applyBoolMerge(&dst.Webhook.Enabled, src.Webhook.Enabled, hints.Webhook.Enabled)
	if strings.TrimSpace(src.Webhook.URL) != "" {
		dst.Webhook.URL = src.Webhook.URL
	}
	if strings.TrimSpace(src.Webhook.Method) != "" {
		dst.Webhook.Method = src.Webhook.Method
	}
	if src.Webhook.TimeoutSec != 0 {
		dst.Webhook.TimeoutSec = src.Webhook.TimeoutSec
	}
	if len(src.Webhook.Headers) > 0 {
		if dst.Webhook.Headers == nil {
			dst.Webhook.Headers = make(map[string]string, len(src.Webhook.Headers))
		}
		for key, value := range src.Webhook.Headers {
			dst.Webhook.Headers[key] = value
		}
	}
	if src.Webhook.Retry != (NotifyRetry{}) {
		dst.Webhook.Retry = src.Webhook.Retry
	}
	if len(src.Templates) > 0 {
		if dst.Templates == nil {
			dst.Templates = make(map[string]string, len(src.Templates))
		}
		for name, body := range src.Templates {
			dst.Templates[name] = body
		}
	}
}

// applyBoolMerge merges bool with explicit-value awareness for directory overlays.
// Params: destination bool pointer, source decoded bool, and explicit source marker.
// Returns: merged bool side-effect in dst.
func applyBoolMerge(dst *bool, value bool, explicit *bool) {
	if explicit != nil {
		*dst = *explicit
		return
	}
	if value {
		*dst = true
	}
}

// applyDefaults fills omitted config fields with safe defaults and pins
// runtime-fixed stream routing keys.
// Params: cfg pointer to decoded snapshot.
// Returns: defaults applied in place.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = "sentinel"
	}
	cfg.Service.Mode = normalizeServiceMode(cfg.Service.Mode)

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}

	if strings.TrimSpace(cfg.Store.Backend) == "" {
		cfg.Store.Backend = StoreBackendMemory
	}
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if strings.TrimSpace(cfg.Store.Redis.Addr) == "" {
		cfg.Store.Redis.Addr = defaultRedisAddr
	}
	if strings.TrimSpace(cfg.Store.Redis.KeyPrefix) == "" {
		cfg.Store.Redis.KeyPrefix = defaultRedisKeyPrefix
	}

	if strings.TrimSpace(cfg.Ingest.HTTP.Listen) == "" {
		cfg.Ingest.HTTP.Listen = defaultHTTPListen
	}
	cfg.Ingest.HTTP.HealthPath = defaultHealthPath
	cfg.Ingest.HTTP.ReadyPath = defaultReadyPath
	cfg.Ingest.HTTP.MetricsPath = defaultMetricsPath
	cfg.Ingest.HTTP.StatePath = defaultStatePath
	if cfg.Ingest.HTTP.MaxBodyBytes <= 0 {
		cfg.Ingest.HTTP.MaxBodyBytes = defaultMaxBodyBytes
	}

	cfg.Ingest.NATS.URL = normalizeNATSURLs(cfg.Ingest.NATS.URL)
	if len(cfg.Ingest.NATS.URL) == 0 {
		cfg.Ingest.NATS.URL = []string{defaultNATSURL}
	}
	cfg.Ingest.NATS.Subject = defaultIngestSubject
	cfg.Ingest.NATS.Stream = defaultIngestStream
	cfg.Ingest.NATS.ConsumerName = defaultIngestConsumer
	cfg.Ingest.NATS.DeliverGroup = defaultIngestGroup
	applyConsumerDefaults(&cfg.Ingest.NATS.Workers, &cfg.Ingest.NATS.AckWaitSec, &cfg.Ingest.NATS.NackDelayMS, &cfg.Ingest.NATS.MaxDeliver, &cfg.Ingest.NATS.MaxAckPending)

	cfg.Queue.URL = strings.Join(cfg.Ingest.NATS.URL, ",")
	cfg.Queue.Subject = defaultQueueSubject
	cfg.Queue.Stream = defaultQueueStream
	cfg.Queue.ConsumerName = defaultQueueConsumer
	cfg.Queue.DeliverGroup = defaultQueueGroup
	applyConsumerDefaults(&cfg.Queue.Workers, &cfg.Queue.AckWaitSec, &cfg.Queue.NackDelayMS, &cfg.Queue.MaxDeliver, &cfg.Queue.MaxAckPending)
	cfg.Queue.DLQ = QueueDLQ{
		Enabled: cfg.Queue.DLQEnabled,
		Stream:  defaultQueueDLQStream,
		Subject: defaultQueueDLQSubject,
	}

	if cfg.Notify.AckDurationSec <= 0 {
		cfg.Notify.AckDurationSec = defaultAckDurationSec
	}
	if cfg.Notify.Webhook.TimeoutSec <= 0 {
		cfg.Notify.Webhook.TimeoutSec = defaultNotifyTimeout
	}
	if strings.TrimSpace(cfg.Notify.Webhook.Method) == "" {
		cfg.Notify.Webhook.Method = "POST"
	}
}

// applyConsumerDefaults fills one queue-consumer policy block.
// Params: pointers to worker/ack fields of one consumer section.
// Returns: defaults applied in place.
func applyConsumerDefaults(workers, ackWaitSec, nackDelayMS, maxDeliver, maxAckPending *int) {
	if *workers <= 0 {
		*workers = defaultWorkers
	}
	if *ackWaitSec <= 0 {
		*ackWaitSec = defaultAckWaitSec
	}
	if *nackDelayMS <= 0 {
		*nackDelayMS = defaultNackDelayMS
	}
	if *maxDeliver == 0 {
		*maxDeliver = defaultMaxDeliver
	}
	if *maxAckPending <= 0 {
		*maxAckPending = defaultMaxAckPending
	}
}

// normalizeServiceMode maps empty/any-case mode to a canonical value.
// Params: raw mode string from config.
// Returns: canonical mode string (validation rejects unknown values later).
func normalizeServiceMode(mode string) string {
	normalized := strings.ToLower(strings.TrimSpace(mode))
	if normalized == "" {
		return ServiceModeSingle
	}
	return normalized
}

// normalizeNATSURLs trims and drops empty URL entries.
// Params: raw URL list from config.
// Returns: cleaned URL list.
func normalizeNATSURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

// validateConfig checks the merged snapshot for structural errors.
// Params: config after defaults.
// Returns: first validation error with the offending key.
func validateConfig(cfg Config) error {
	switch cfg.Service.Mode {
	case ServiceModeSingle, ServiceModeCluster:
	default:
		return fmt.Errorf("service.mode %q is not supported (single|cluster)", cfg.Service.Mode)
	}
	switch cfg.Store.Backend {
	case StoreBackendMemory, StoreBackendRedis:
	default:
		return fmt.Errorf("store.backend %q is not supported (memory|redis)", cfg.Store.Backend)
	}
	if cfg.Service.Mode == ServiceModeCluster && !cfg.Ingest.NATS.Enabled {
		return errors.New("service.mode cluster requires ingest.nats.enabled = true")
	}
	if !cfg.Ingest.HTTP.Enabled && !cfg.Ingest.NATS.Enabled {
		return errors.New("at least one of ingest.http and ingest.nats must be enabled")
	}

	if _, err := templatefmt.NewRenderer(cfg.Notify.Templates); err != nil {
		return fmt.Errorf("notify.templates: %w", err)
	}
	if cfg.Notify.Telegram.Enabled {
		if strings.TrimSpace(cfg.Notify.Telegram.BotToken) == "" {
			return errors.New("notify.telegram.bot_token is required when telegram is enabled")
		}
		if strings.TrimSpace(cfg.Notify.Telegram.ChatID) == "" {
			return errors.New("notify.telegram.chat_id is required when telegram is enabled")
		}
	}
	if cfg.Notify.Webhook.Enabled && strings.TrimSpace(cfg.Notify.Webhook.URL) == "" {
		return errors.New("notify.webhook.url is required when webhook is enabled")
	}

	seenContacts := make(map[string]struct{}, len(cfg.Contact))
	for i, contact := range cfg.Contact {
		if err := validateContact(i, contact); err != nil {
			return err
		}
		if _, dup := seenContacts[contact.ID]; dup {
			return fmt.Errorf("contact %q is defined more than once", contact.ID)
		}
		seenContacts[contact.ID] = struct{}{}
	}
	return nil
}

// validateContact checks one contact body including media and rules.
// Params: contact index for error context and decoded contact.
// Returns: first contact-level validation error.
func validateContact(index int, contact ContactConfig) error {
	if strings.TrimSpace(contact.ID) == "" {
		return fmt.Errorf("contact[%d].id is required", index)
	}
	if contact.Timezone != "" {
		if _, err := time.LoadLocation(contact.Timezone); err != nil {
			return fmt.Errorf("contact %q timezone: %w", contact.ID, err)
		}
	}

	transports := make(map[string]struct{}, len(contact.Medium))
	for _, medium := range contact.Medium {
		transport := strings.ToLower(strings.TrimSpace(medium.Transport))
		if _, known := knownTransports[transport]; !known {
			return fmt.Errorf("contact %q medium transport %q is not supported", contact.ID, medium.Transport)
		}
		if _, dup := transports[transport]; dup {
			return fmt.Errorf("contact %q has duplicate medium transport %q", contact.ID, transport)
		}
		transports[transport] = struct{}{}
		if strings.TrimSpace(medium.Address) == "" {
			return fmt.Errorf("contact %q medium %q address is required", contact.ID, transport)
		}
		if _, throttled := throttledTransports[transport]; throttled && medium.IntervalSec <= 0 {
			return fmt.Errorf("contact %q medium %q requires interval_sec > 0", contact.ID, transport)
		}
		if transport == TransportPagerduty && medium.IntervalSec > 0 {
			return fmt.Errorf("contact %q medium pagerduty must not set interval_sec", contact.ID)
		}
		if medium.RollupThreshold < 0 {
			return fmt.Errorf("contact %q medium %q rollup_threshold must not be negative", contact.ID, transport)
		}
	}

	for ruleIndex, rule := range contact.Rule {
		for _, transport := range append(append([]string(nil), rule.WarningMedia...), rule.CriticalMedia...) {
			if _, owned := transports[strings.ToLower(strings.TrimSpace(transport))]; !owned {
				return fmt.Errorf("contact %q rule[%d] references medium %q the contact does not own", contact.ID, ruleIndex, transport)
			}
		}
		for _, restriction := range rule.TimeRestriction {
			if len(restriction.Weekdays) == 0 {
				return fmt.Errorf("contact %q rule[%d] time_restriction.weekdays is required", contact.ID, ruleIndex)
			}
			for _, day := range restriction.Weekdays {
				if _, known := weekdayNames[strings.ToLower(strings.TrimSpace(day))]; !known {
					return fmt.Errorf("contact %q rule[%d] unknown weekday %q", contact.ID, ruleIndex, day)
				}
			}
			if restriction.StartSec < 0 || restriction.StartSec >= 24*60*60 {
				return fmt.Errorf("contact %q rule[%d] start_sec must be within one day", contact.ID, ruleIndex)
			}
			if restriction.DurationSec <= 0 {
				return fmt.Errorf("contact %q rule[%d] duration_sec must be positive", contact.ID, ruleIndex)
			}
		}
	}
	return nil
}

// ToContacts converts contact config sections into matcher contacts.
// Params: none; operates on the validated snapshot.
// Returns: matcher-ready contact list or conversion error.
func (c Config) ToContacts() ([]rules.Contact, error) {
	contacts := make([]rules.Contact, 0, len(c.Contact))
	for _, raw := range c.Contact {
		location := time.UTC
		if raw.Timezone != "" {
			loaded, err := time.LoadLocation(raw.Timezone)
			if err != nil {
				return nil, fmt.Errorf("contact %q timezone: %w", raw.ID, err)
			}
			location = loaded
		}

		contact := rules.Contact{
			ID:       raw.ID,
			Name:     raw.Name,
			Location: location,
			Media:    make([]rules.Medium, 0, len(raw.Medium)),
			Rules:    make([]rules.Rule, 0, len(raw.Rule)),
		}
		for _, medium := range raw.Medium {
			contact.Media = append(contact.Media, rules.Medium{
				Transport:       strings.ToLower(strings.TrimSpace(medium.Transport)),
				Address:         medium.Address,
				IntervalSec:     medium.IntervalSec,
				RollupThreshold: medium.RollupThreshold,
			})
		}
		for ruleIndex, rawRule := range raw.Rule {
			rule := rules.Rule{
				ID:       fmt.Sprintf("%s:%d", raw.ID, ruleIndex),
				Entities: append([]string(nil), rawRule.Entities...),
				Tags:     append([]string(nil), rawRule.Tags...),
				Media: map[domain.Severity][]string{
					domain.SeverityWarning:  normalizeTransportList(rawRule.WarningMedia),
					domain.SeverityCritical: normalizeTransportList(rawRule.CriticalMedia),
				},
				Blackhole: map[domain.Severity]bool{
					domain.SeverityWarning:  rawRule.BlackholeWarning,
					domain.SeverityCritical: rawRule.BlackholeCritical,
				},
			}
			for _, restriction := range rawRule.TimeRestriction {
				weekdays := make(map[time.Weekday]bool, len(restriction.Weekdays))
				for _, day := range restriction.Weekdays {
					weekdays[weekdayNames[strings.ToLower(strings.TrimSpace(day))]] = true
				}
				rule.Restrictions = append(rule.Restrictions, rules.TimeRestriction{
					Weekdays:    weekdays,
					StartOffset: restriction.StartSec,
					Duration:    restriction.DurationSec,
				})
			}
			contact.Rules = append(contact.Rules, rule)
		}
		contacts = append(contacts, contact)
	}
	return contacts, nil
}

// normalizeTransportList lowercases and trims a media transport list.
// Params: raw transport names from config.
// Returns: normalized list.
func normalizeTransportList(transports []string) []string {
	out := make([]string, 0, len(transports))
	for _, transport := range transports {
		out = append(out, strings.ToLower(strings.TrimSpace(transport)))
	}
	return out
}
