package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ksnode",
		Short: "Key-share node",
		Long:  "Key-share node holding one encrypted share per wallet for the distributed wallet core",
	}

	rootCmd.AddCommand(NewStartCmd())
	rootCmd.AddCommand(NewIdentityCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
