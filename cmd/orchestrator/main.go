package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "orchestrator",
		Short: "Wallet orchestrator",
		Long:  "Orchestrator coordinating keygen, presign and reshare across the key-share node quorum",
	}

	rootCmd.AddCommand(NewStartCmd())
	rootCmd.AddCommand(NewPreParamsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
