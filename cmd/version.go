package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/charoster/internal/version"
)

var (
	versionFormat   string
	versionShort    bool
	versionDetailed bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display the version, commit, build time, Go version and platform of
this charoster binary.

Examples:
  charoster version              # Show version
  charoster version --short      # Version only
  charoster version --detailed   # One field per line
  charoster version --format json`,
	Args: cobra.NoArgs,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json, yaml)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
	versionCmd.Flags().BoolVar(&versionDetailed, "detailed", false, "Show detailed version information")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	switch versionFormat {
	case "json", "yaml":
		info := version.GetBuildInfo()
		return writeDocument(out, versionFormat, map[string]interface{}{
			"version":    info.Version,
			"git_commit": info.GitCommit,
			"build_time": info.BuildTime,
			"modified":   info.Modified,
			"go_version": info.GoVersion,
			"platform":   info.Platform,
			"is_release": version.IsRelease(),
		})
	case "text":
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json, yaml)", versionFormat)
	}

	switch {
	case versionShort:
		fmt.Fprintln(out, version.GetShortVersion())
	case versionDetailed:
		fmt.Fprintln(out, version.GetDetailedVersion())
		if version.IsRelease() {
			fmt.Fprintln(out, "Build type: release")
		} else {
			fmt.Fprintln(out, "Build type: development")
		}
	default:
		info := version.GetBuildInfo()
		fmt.Fprintf(out, "charoster %s\n", version.GetShortVersion())
		fmt.Fprintf(out, "Go: %s\n", info.GoVersion)
		fmt.Fprintf(out, "Platform: %s\n", info.Platform)
	}
	return nil
}
