package cmd

import "github.com/spf13/cobra"

// Version is the application version.
// Set at build time with: go build -ldflags "-X github.com/xkilldash9x/mailpilot/cmd.Version=1.0.0"
var Version = "0.1.0"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the mailpilot version",
		Args:  cobra.NoArgs,
		// Skip config loading; printing the version must always work.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("mailpilot version %s\n", Version)
		},
	}
}
