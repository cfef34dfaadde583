// Package config loads worker configuration with the same precedence the
// Python agent used: environment variable, then JSON config file, then a
// hardcoded default. A mandatory setting with none of the three present is
// fatal.
package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
)

// Worker holds every tunable the agent reads at startup.
type Worker struct {
	NebulaManagerURL      string
	DeviceGroupName       string
	RegistryURL           string
	RegistryUser          string
	RegistryPassword      string
	KafkaBootstrapServers string
	ReportingFailHard     bool
	HTTPListenAddr        string
	AuditDatabaseURL      string
	MaxRestartWaitSeconds int
	PollIntervalSeconds   int
	HealthCheckIntervalS  int
}

// Raw is the parsed contents of config/conf.json, keyed exactly like the
// file on disk. Values are read through GetSetting so env vars always win.
type Raw map[string]json.RawMessage

// LoadRawFile reads and parses the JSON config file. A missing file is not
// an error — settings fall through to env vars and defaults — but a
// present, malformed file is fatal, matching the fail-fast posture of the
// rest of the agent.
func LoadRawFile(path string) Raw {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Raw{}
		}
		log.Printf("config: failed to read %s: %v", path, err)
		os.Exit(2)
	}
	var raw Raw
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Printf("config: failed to parse %s: %v", path, err)
		os.Exit(2)
	}
	return raw
}

// GetSetting resolves one setting: env var (named envKey) overrides the
// JSON file (keyed jsonKey), which overrides defaultValue. If defaultValue
// is nil, the setting is mandatory and the process exits with code 2 when
// neither source provides it.
func GetSetting(envKey, jsonKey string, raw Raw, defaultValue *string) string {
	if v, ok := os.LookupEnv(envKey); ok && v != "" {
		return v
	}
	if raw != nil {
		if rawVal, ok := raw[jsonKey]; ok {
			var s string
			if err := json.Unmarshal(rawVal, &s); err == nil {
				return s
			}
			// Not a JSON string (bool/number) — re-encode as text.
			return string(rawVal)
		}
	}
	if defaultValue == nil {
		log.Printf("config: mandatory setting %q (env %s) is not set", jsonKey, envKey)
		os.Exit(2)
	}
	return *defaultValue
}

func strPtr(s string) *string { return &s }

// Load builds the full Worker config from the environment and the JSON
// file at confPath, applying fatal exits for any mandatory key that's
// missing everywhere.
func Load(confPath string) Worker {
	raw := LoadRawFile(confPath)

	cfg := Worker{
		NebulaManagerURL: GetSetting("NEBULA_MANAGER_URL", "nebula_manager_url", raw, nil),
		DeviceGroupName:  GetSetting("DEVICE_GROUP_NAME", "device_group_name", raw, nil),
		RegistryURL:      GetSetting("REGISTRY_URL", "registry_url", raw, strPtr("registry.hub.docker.com/library")),
		RegistryUser:     GetSetting("REGISTRY_USER", "registry_user", raw, strPtr("")),
		RegistryPassword: GetSetting("REGISTRY_PASSWORD", "registry_password", raw, strPtr("")),
		HTTPListenAddr:   GetSetting("WORKER_HTTP_ADDR", "worker_http_addr", raw, strPtr("127.0.0.1:7780")),
		AuditDatabaseURL: GetSetting("AUDIT_DATABASE_URL", "audit_database_url", raw, strPtr("")),
	}

	// reporting_fail_hard is read from its own key, defaulting "true" when
	// absent; it does not depend on whether kafka_bootstrap_servers is set
	// (see DESIGN.md open-question decision).
	cfg.KafkaBootstrapServers = GetSetting("KAFKA_BOOTSTRAP_SERVERS", "kafka_bootstrap_servers", raw, strPtr(""))
	failHardDefault := "true"
	failHardStr := GetSetting("REPORTING_FAIL_HARD", "reporting_fail_hard", raw, &failHardDefault)
	failHard, err := strconv.ParseBool(failHardStr)
	if err != nil {
		log.Printf("config: reporting_fail_hard=%q is not a bool, defaulting to true", failHardStr)
		failHard = true
	}
	cfg.ReportingFailHard = failHard

	cfg.MaxRestartWaitSeconds = intSetting("MAX_RESTART_WAIT_SECONDS", "max_restart_wait_in_seconds", raw, 30)
	cfg.PollIntervalSeconds = intSetting("POLL_INTERVAL_SECONDS", "poll_interval_seconds", raw, 10)
	cfg.HealthCheckIntervalS = intSetting("HEALTH_CHECK_INTERVAL_SECONDS", "health_check_interval_seconds", raw, 10)

	return cfg
}

func intSetting(envKey, jsonKey string, raw Raw, defaultValue int) int {
	defStr := strconv.Itoa(defaultValue)
	s := GetSetting(envKey, jsonKey, raw, &defStr)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Printf("config: %s/%s must be an integer, got %q: %v", envKey, jsonKey, s, err)
		os.Exit(2)
	}
	return n
}
