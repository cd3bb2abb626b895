package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/charoster/internal/errors"
	"github.com/conneroisu/charoster/internal/types"
	"github.com/conneroisu/charoster/internal/validation"
)

var definitionCmd = &cobra.Command{
	Use:     "definition <id> [key [field]]",
	Aliases: []string{"def"},
	Short:   "Print a definition, one of its entities, or a field value",
	Long: `With only an id, print the definition. With a key, print the entity the
key resolves to. With a key and a field, print that field's value.

Keys are ids of the definition's entities, optionally qualified by pack with
">". Unqualified keys pick the first pack that has them, preferring --pack.

Examples:
  charoster definition franchise
  charoster definition franchise mario
  charoster definition franchise mario name --pack demo`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runDefinition,
}

var (
	definitionFlags *StandardFlags
	definitionPack  string
)

func init() {
	rootCmd.AddCommand(definitionCmd)
	definitionFlags = AddStandardFlags(definitionCmd, "output")
	definitionCmd.Flags().StringVar(&definitionPack, "pack", "", "Pack to prefer when a key is unqualified")
}

func runDefinition(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	if len(args) > 1 {
		if err := validation.ValidateID(args[1]); err != nil {
			return err
		}
	}
	if definitionPack != "" {
		if err := validation.ValidateSegment(definitionPack); err != nil {
			return err
		}
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	id := args[0]
	if !contains(a.Definitions(), id) {
		return errors.NewNotFoundError(errors.ErrCodeEntityNotFound, "definition not found", nil).WithEntity(id)
	}

	out := cmd.OutOrStdout()
	switch len(args) {
	case 1:
		def, err := a.GetDefinition(ctx, id)
		if err != nil {
			return err
		}
		return writeDocument(out, definitionFlags.Format, def)

	case 2:
		entity, err := a.GetDefinitionEntity(ctx, id, types.SplitID(args[1]), definitionPack)
		if err != nil {
			return err
		}
		if entity == nil {
			return errors.NewNotFoundError(errors.ErrCodeEntityNotFound, "definition entity not found", nil).
				WithEntity(args[1])
		}
		return writeDocument(out, definitionFlags.Format, entity)

	default:
		value, err := a.GetDefinitionValue(ctx, id, types.SplitID(args[1]), args[2], definitionPack)
		if err != nil {
			return err
		}
		if s, ok := value.(string); ok && isTable(definitionFlags.Format) {
			fmt.Fprintln(out, s)
			return nil
		}
		return writeDocument(out, definitionFlags.Format, value)
	}
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
