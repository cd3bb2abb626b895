package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/charoster/internal/errors"
	"github.com/conneroisu/charoster/internal/types"
	"github.com/conneroisu/charoster/internal/validation"
)

var showCmd = &cobra.Command{
	Use:   "show <type> <id>",
	Short: "Print one entity",
	Long: `Print one entity with its addons composed in. Ids are qualified by
their pack with ">".

Examples:
  charoster show characters "demo>hero"
  charoster show stages "demo>castle" -f json`,
	Args: cobra.ExactArgs(2),
	RunE: runShow,
}

var showFlags *StandardFlags

func init() {
	rootCmd.AddCommand(showCmd)
	showFlags = AddStandardFlags(showCmd, "output")
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	kind, err := types.ParseEntityType(args[0])
	if err != nil {
		return err
	}

	if err := validation.ValidateID(args[1]); err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	entity, err := a.GetEntity(ctx, kind, args[1])
	if err != nil {
		return err
	}
	if entity == nil {
		return errors.NewNotFoundError(errors.ErrCodeEntityNotFound,
			fmt.Sprintf("%s not found", kind), nil).WithEntity(args[1])
	}
	return writeDocument(cmd.OutOrStdout(), showFlags.Format, entity)
}
