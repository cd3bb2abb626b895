package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// OutputFormats are the formats accepted by --format
var OutputFormats = []string{"table", "json", "yaml"}

// StandardFlags provides consistent flag definitions across commands
type StandardFlags struct {
	// Server flags
	Port int
	Host string

	// Output flags
	Format string

	// Image flags
	Size   string
	Theme  string
	Out    string
	Render bool
}

// AddStandardFlags adds the named groups of standard flags to a command
func AddStandardFlags(cmd *cobra.Command, flagTypes ...string) *StandardFlags {
	flags := &StandardFlags{}

	for _, flagType := range flagTypes {
		switch flagType {
		case "server":
			addServerFlags(cmd, flags)
		case "output":
			addOutputFlags(cmd, flags)
		case "image":
			addImageFlags(cmd, flags)
		}
	}

	return flags
}

func addServerFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().IntVarP(&flags.Port, "port", "p", 8180, "Port to serve on")
	cmd.Flags().StringVar(&flags.Host, "host", "localhost", "Host to bind to")
	AddFlagValidation(cmd, "port", ValidatePort)

	SetViperBindings(cmd, map[string]string{
		"port": "server.port",
		"host": "server.host",
	})
}

func addOutputFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVarP(&flags.Format, "format", "f", "table", "Output format (table|json|yaml)")
	AddFlagValidation(cmd, "format", ValidateFormat)
}

func addImageFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVarP(&flags.Size, "size", "s", "square", "Image size (square, portrait, landscape, banner or a design size)")
	cmd.Flags().StringVarP(&flags.Theme, "theme", "t", "", "Design theme (default design when empty)")
	cmd.Flags().StringVarP(&flags.Out, "out", "o", "", "Output file (stdout when empty)")
	cmd.Flags().BoolVar(&flags.Render, "render", false, "Render for a render target without caching or width caps")
}

// SetViperBindings binds flags to viper configuration keys so an explicit
// flag overrides the config file
func SetViperBindings(cmd *cobra.Command, bindings map[string]string) {
	for flagName, configKey := range bindings {
		if flag := cmd.Flags().Lookup(flagName); flag != nil {
			_ = viper.BindPFlag(configKey, flag)
		}
	}
}

// AddFlagValidation validates a flag's value as it is set
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidatePort checks a port number
func ValidatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}

	return nil
}

// ValidateFormat checks an output format
func ValidateFormat(format string) error {
	for _, valid := range OutputFormats {
		if strings.EqualFold(format, valid) {
			return nil
		}
	}
	return fmt.Errorf("invalid output format %s, must be one of: %s",
		format, strings.Join(OutputFormats, ", "))
}
