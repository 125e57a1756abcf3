package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/radarhq/radar/internal/config"
	"github.com/radarhq/radar/internal/interpret"
	"github.com/radarhq/radar/internal/radar"
)

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List radars",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/radars")
		if err != nil {
			return err
		}

		var list struct {
			Radars []radar.Radar `json:"radars"`
		}
		if err := decodeJSON(resp, &list); err != nil {
			return err
		}

		if len(list.Radars) == 0 {
			fmt.Println("No radars yet.")
			return nil
		}

		for _, r := range list.Radars {
			topic := r.Topic
			if len(topic) > 60 {
				topic = topic[:60] + "..."
			}
			fmt.Printf("%s  %-8s  %-7s  %s\n",
				colorize(colorCyan, r.ID[:8]),
				r.Cadence,
				r.Status,
				topic,
			)
		}
		return nil
	},
}

// --- create ---

var createCmd = &cobra.Command{
	Use:   "create <topic>",
	Short: "Create a radar directly, without the interpretation flow",
	Long: `Create a radar directly, without the interpretation flow.

Examples:
  radard create "AI chip startups" --cadence daily
  radard create "EU privacy rulings" --cadence weekly --intent "track compliance changes"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topic := strings.Join(args, " ")
		cadence, _ := cmd.Flags().GetString("cadence")
		description, _ := cmd.Flags().GetString("description")
		intent, _ := cmd.Flags().GetString("intent")

		if !radar.ValidCadence(cadence) {
			return fmt.Errorf("unknown cadence %q (expected hourly, daily, weekly, or monthly)", cadence)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/radars", radar.NewRadar{
			Topic:       topic,
			Description: description,
			Cadence:     cadence,
			Intent:      intent,
		})
		if err != nil {
			return err
		}

		var created radar.Radar
		if err := decodeJSON(resp, &created); err != nil {
			return err
		}

		printSuccess("Created radar %s tracking %q (%s)", created.ID, created.Topic, created.Cadence)
		return nil
	},
}

func init() {
	createCmd.Flags().String("cadence", radar.CadenceDaily, "monitoring cadence (hourly, daily, weekly, monthly)")
	createCmd.Flags().String("description", "", "longer description of what to watch")
	createCmd.Flags().String("intent", "", "why this topic matters to you")
}

// --- delete ---

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a radar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/v1/radars/"+args[0])
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		printSuccess("Deleted radar %s", args[0])
		return nil
	},
}

// --- pause / resume ---

func setStatusCommand(use, short, status, verb string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}

			resp, err := client.patch(cmd.Context(), "/v1/radars/"+args[0], map[string]string{"status": status})
			if err != nil {
				return err
			}

			var updated radar.Radar
			if err := decodeJSON(resp, &updated); err != nil {
				return err
			}

			printSuccess("%s radar %s (%q)", verb, updated.ID, updated.Topic)
			return nil
		},
	}
}

var pauseCmd = setStatusCommand("pause <id>", "Pause a radar's monitoring", radar.StatusPaused, "Paused")

var resumeCmd = setStatusCommand("resume <id>", "Resume a paused radar", radar.StatusActive, "Resumed")

// --- interpret ---

var interpretCmd = &cobra.Command{
	Use:   "interpret <text>",
	Short: "Interpret a monitoring request without creating anything",
	Long: `Interpret a free-text monitoring request into a structured proposal.

Streams the interpretation as it resolves and prints the final
proposal. Nothing is created; use "radard create" to act on it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		client := interpret.NewClientWithBaseURL(cfg.Interpreter.APIKey, cfg.Interpreter.BaseURL)
		call, err := client.Interpret(cmd.Context(), text)
		if err != nil {
			return err
		}
		defer call.Cancel()

		var prev interpret.Interpretation
		partial := call.Partial()
		for {
			select {
			case it, ok := <-partial:
				if !ok {
					partial = nil
					continue
				}
				if it.What.Topic != prev.What.Topic {
					printStep("topic: %s", it.What.Topic)
				}
				if it.When.Frequency != prev.When.Frequency {
					printStep("cadence: %s", it.When.Frequency)
				}
				prev = it
			case res := <-call.Final():
				if res.Err != nil {
					return res.Err
				}
				printProposal(res.Interpretation)
				return nil
			}
		}
	},
}

func printProposal(it interpret.Interpretation) {
	printStatus("Topic", "%s", it.What.Topic)
	if it.What.Description != "" {
		printStatus("Description", "%s", it.What.Description)
	}
	printStatus("Cadence", "%s", it.When.Frequency)
	if it.When.ScheduleDescription != "" {
		printStatus("Schedule", "%s", it.When.ScheduleDescription)
	}
	if it.Why.Intent != "" {
		printStatus("Intent", "%s", it.Why.Intent)
	}
	for _, insight := range it.Why.Insights {
		printStatus("Insight", "%s", insight)
	}
	if len(it.When.Options) > 0 {
		var opts []string
		for _, o := range it.When.Options {
			label := o.Value
			if o.IsRecommended {
				label += " (recommended)"
			}
			opts = append(opts, label)
		}
		printStatus("Cadence options", "%s", strings.Join(opts, ", "))
	}
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
