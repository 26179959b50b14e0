// Package main provides the quick_resume command line: capture a job posting,
// generate a tailored resume document and export it to the output archive.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "quick_resume",
	Short: "Generate tailored resumes from captured job postings",
	Long: `quick_resume turns a captured job posting into a tailored resume document.

Each capture is sent to the generation service, checked against the output
archive for an earlier resume for the same employer, and exported as a DOCX
document next to the source text it was generated from.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (.json or .toml); flags override its values")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print detailed debug information")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
