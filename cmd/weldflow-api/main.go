package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "weldflow-api",
	Short: "WeldFlow API - multi-tenant welding quality management",
	Long: `Multi-tenant API for welding procedure records (WPS, PQR, pPQR), welders,
materials, equipment, production and quality data, with per-company approval
workflows and membership-tier quotas.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
