package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run a single screening cycle and print its outcome",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}

		a, err := newApplication(cmd.Context(), cfg, log)
		if err != nil {
			log.Error("initializing application", zap.Error(err))
			return err
		}
		defer a.Close()

		out, err := a.coordinator.RunCycle(cmd.Context())
		pretty, _ := json.MarshalIndent(out.Response(), "", "  ")
		fmt.Println(string(pretty))
		return err
	},
}

func init() {
	rootCmd.AddCommand(cycleCmd)
}
