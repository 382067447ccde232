package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"docbreak/internal/config"
	"docbreak/internal/models"

	"github.com/spf13/cobra"
)

func newModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect model tiers, fallbacks and presets",
	}

	list := &cobra.Command{
		Use:   "list [task]",
		Short: "List candidate models per task in fallback order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			tasks := models.Tasks()
			if len(args) == 1 {
				t, err := models.ParseTask(args[0])
				if err != nil {
					return err
				}
				tasks = []models.Task{t}
			}
			for _, t := range tasks {
				colorCyan.Printf("%s (default %s)\n", t, rt.registry.DefaultModel(t))
				for _, info := range rt.registry.Info(t) {
					line := fmt.Sprintf("  %d. %-45s %s", info.Priority, info.Model, info.Tier)
					if info.Metadata != nil {
						line += fmt.Sprintf("  [%s, %s]", info.Metadata.Category, info.Metadata.Cost)
					}
					fmt.Println(line)
				}
			}
			return nil
		},
	}

	next := &cobra.Command{
		Use:   "next <task> <current> [excluded...]",
		Short: "Show which model the fallback chain picks after current",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			t, err := models.ParseTask(args[0])
			if err != nil {
				return err
			}
			excluded := map[string]bool{args[1]: true}
			for _, m := range args[2:] {
				excluded[m] = true
			}
			m, ok := rt.registry.NextModel(t, args[1], excluded)
			if !ok {
				colorYellow.Println("no further candidates")
				return nil
			}
			fmt.Println(m)
			return nil
		},
	}

	presets := &cobra.Command{
		Use:   "presets",
		Short: "List model presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range models.Presets() {
				colorCyan.Printf("%s: %s\n", p.Key, p.Name)
				vars := p.EnvVars()
				keys := make([]string, 0, len(vars))
				for k := range vars {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Printf("  %s=%s\n", k, vars[k])
				}
			}
			return nil
		},
	}

	var envPath string
	preset := &cobra.Command{
		Use:   "preset <key>",
		Short: "Write a preset's model variables into the .env file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, ok := models.LookupPreset(args[0])
			if !ok {
				return fmt.Errorf("preset %q not found", args[0])
			}
			if err := config.WritePreset(envPath, p); err != nil {
				return err
			}
			colorGreen.Printf("Applied %s to %s\n", p.Name, envPath)
			return nil
		},
	}
	preset.Flags().StringVar(&envPath, "env", ".env", "path of the .env file to update")

	cmd.AddCommand(list, next, presets, preset)
	return cmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify API access and that each task's default model is offered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			client, err := rt.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			ids, err := client.CheckModels(ctx)
			if err != nil {
				return err
			}
			offered := make(map[string]bool, len(ids))
			for _, id := range ids {
				offered[id] = true
			}
			colorGreen.Printf("API reachable, %d models offered\n", len(ids))
			printSeparator()
			missing := 0
			for _, t := range models.Tasks() {
				m := rt.registry.DefaultModel(t)
				if offered[m] {
					fmt.Printf("ok      %-11s %s\n", t, m)
					continue
				}
				missing++
				colorYellow.Printf("missing %-11s %s\n", t, m)
			}
			if missing > 0 {
				return fmt.Errorf("%d task default(s) not offered by the provider", missing)
			}
			return nil
		},
	}
}
