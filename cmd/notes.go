package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dpcalib/dpcalib/notes"
)

var notesFormat string // Rendering format for notes list

// notesCmd groups the wish-list file operations
var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Work with model wish-list files",
}

// notesCheckCmd validates a wish-list file
var notesCheckCmd = &cobra.Command{
	Use:   "check FILE",
	Short: "Validate a wish-list file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		n, err := notes.Validate(f)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries ok\n", args[0], n)
		return nil
	},
}

// notesListCmd renders a wish-list file as JSON or YAML
var notesListCmd = &cobra.Command{
	Use:   "list FILE",
	Short: "Render a wish-list file as JSON or YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := notes.ParseFormat(notesFormat)
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		entries, err := notes.Parse(f)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		out, err := notes.Render(entries, format)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	notesListCmd.Flags().StringVar(&notesFormat, "format", "yaml", "Output format (json, yaml)")

	notesCmd.AddCommand(notesCheckCmd)
	notesCmd.AddCommand(notesListCmd)
	rootCmd.AddCommand(notesCmd)
}
