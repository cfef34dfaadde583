// Command workerctl is a small read-only diagnostic CLI for operators: it
// queries a worker's /healthz and /statusz endpoints and prints the
// result. Adapted from cli_go/main.go's cobra command structure, narrowed
// from the teacher CLI's full app-management command set down to the
// handful of commands that make sense against a read-only agent.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nebulaorch/worker/cmd/workerctl/helpers"
)

var workerURL string

func main() {
	rootCmd := &cobra.Command{
		Use:   "workerctl",
		Short: "Diagnostic CLI for the nebula device-group worker",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "config" {
				return nil
			}
			url, err := helpers.LoadConfig()
			if err != nil || url == "" {
				return fmt.Errorf("workerctl is not configured; run 'workerctl config' first")
			}
			workerURL = url
			return nil
		},
	}

	rootCmd.AddCommand(configCmd, statusCmd, healthCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configure workerctl with the worker's diagnostics host/port",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("To configure workerctl, enter the worker's diagnostics address:")
		var host string
		var port int
		fmt.Print("Host (e.g., localhost or IP): ")
		fmt.Scanln(&host)
		fmt.Print("Port (e.g., 7780): ")
		fmt.Scanln(&port)

		apiURL := fmt.Sprintf("http://%s:%d", host, port)
		fmt.Printf("Connecting to worker at %s...\n", apiURL)

		if helpers.CheckWorkerRunning(apiURL) {
			if err := helpers.SaveConfig(host, port); err != nil {
				fmt.Fprintln(os.Stderr, "Failed to save config:", err)
				os.Exit(1)
			}
			fmt.Printf("Configuration saved to %s\n", helpers.ConfigFile)
		} else {
			fmt.Fprintln(os.Stderr, "Failed to connect. Please ensure the worker process is running.")
			os.Exit(1)
		}
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the worker's current reconciliation status as YAML",
	Run: func(cmd *cobra.Command, args []string) {
		helpers.CheckWorkerRunning(workerURL)
		resp, err := http.Get(workerURL + "/statusz")
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		printAsYAML(resp)
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show the worker's liveness status",
	Run: func(cmd *cobra.Command, args []string) {
		helpers.CheckWorkerRunning(workerURL)
		resp, err := http.Get(workerURL + "/healthz")
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		printAsYAML(resp)
	},
}

func printAsYAML(resp *http.Response) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error reading response:", err)
		os.Exit(1)
	}
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		fmt.Println(string(body))
		return
	}
	out, err := yaml.Marshal(data)
	if err != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Print(string(out))
}
