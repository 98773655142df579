package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/chainapsis/oko-tss/pkg/mpc"
)

// NewPreParamsCmd creates the generate-preparams command. Pre-parameters are
// expensive to compute, so operators generate them offline and ship the file
// alongside the deployment.
func NewPreParamsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate-preparams",
		Short: "Generate ECDSA pre-parameters and write them to a file",
		RunE:  runGeneratePreParams,
	}

	cmd.Flags().StringP("out", "o", "preparams.json", "Output file path")
	cmd.Flags().DurationP("timeout", "t", 10*time.Minute, "Generation timeout")

	return cmd
}

func runGeneratePreParams(cmd *cobra.Command, _ []string) error {
	out, _ := cmd.Flags().GetString("out")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	fmt.Printf("Generating ECDSA pre-parameters (timeout %s)...\n", timeout)
	start := time.Now()

	data, err := mpc.GeneratePreParams(timeout)
	if err != nil {
		return err
	}

	if err := os.WriteFile(out, data, 0600); err != nil {
		return fmt.Errorf("write pre-parameters: %w", err)
	}

	fmt.Printf("Wrote %d bytes to %s in %s\n", len(data), out, time.Since(start).Round(time.Second))
	return nil
}
