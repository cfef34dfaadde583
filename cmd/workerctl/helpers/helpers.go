// Package helpers manages workerctl's own local config file — the
// address of the worker process it should talk to — adapted from
// cli_go/helpers/helpers.go's config load/save/service-check trio.
package helpers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is workerctl's on-disk connection config.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

var (
	appName    = "nebula-workerctl"
	ConfigFile string
)

func init() {
	dir, err := os.UserConfigDir()
	if err != nil {
		fmt.Println("Error getting config directory:", err)
		os.Exit(1)
	}
	ConfigFile = filepath.Join(dir, appName, "config.yaml")
}

// SaveConfig persists the worker's diagnostics address.
func SaveConfig(host string, port int) error {
	dir := filepath.Dir(ConfigFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	out, err := yaml.Marshal(&Config{Host: host, Port: port})
	if err != nil {
		return err
	}
	return os.WriteFile(ConfigFile, out, 0644)
}

// LoadConfig reads back the worker's diagnostics URL, or an error if
// workerctl has never been configured.
func LoadConfig() (string, error) {
	if _, err := os.Stat(ConfigFile); os.IsNotExist(err) {
		return "", errors.New("workerctl config file not found")
	}
	data, err := os.ReadFile(ConfigFile)
	if err != nil {
		return "", err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", err
	}
	if cfg.Host == "" || cfg.Port == 0 {
		return "", errors.New("invalid workerctl config")
	}
	return fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port), nil
}

// CheckWorkerRunning confirms the worker's /healthz responds before a
// command proceeds, exiting with a helpful message if it doesn't.
func CheckWorkerRunning(apiURL string) bool {
	if apiURL == "" {
		fmt.Fprintln(os.Stderr, "workerctl is not configured")
		fmt.Fprintln(os.Stderr, "Please run 'workerctl config' to set it up.")
		os.Exit(1)
	}
	client := http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(apiURL + "/healthz")
	if err != nil {
		fmt.Fprintln(os.Stderr, "worker is not reachable at", apiURL)
		os.Exit(1)
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
