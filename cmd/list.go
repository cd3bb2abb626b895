package cmd

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/charoster/internal/app"
	"github.com/conneroisu/charoster/internal/types"
)

var listCmd = &cobra.Command{
	Use:     "list <characters|stages|items|packs|definitions>",
	Aliases: []string{"l"},
	Short:   "List entities, packs or definitions",
	Long: `List the loaded entities of a type, the discovered packs, or the
registered definitions.

Examples:
  charoster list characters            # Table of every character
  charoster list stages -f json        # Stages as JSON
  charoster list packs                 # Discovered packs and their entity types
  charoster list definitions -f yaml   # Registered definitions as YAML`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"characters", "stages", "items", "packs", "definitions"},
	RunE:      runList,
}

var listFlags *StandardFlags

func init() {
	rootCmd.AddCommand(listCmd)
	listFlags = AddStandardFlags(listCmd, "output")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	switch args[0] {
	case "packs":
		return listPacks(cmd, a.App)
	case "definitions":
		return listDefinitions(ctx, cmd, a.App)
	}

	kind, err := types.ParseEntityType(args[0])
	if err != nil {
		return err
	}
	entities, err := a.GetEntityList(ctx, kind, nil)
	if err != nil {
		return err
	}

	if !isTable(listFlags.Format) {
		return writeDocument(cmd.OutOrStdout(), listFlags.Format, entities)
	}
	if len(entities) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No %s found.\n", kind)
		return nil
	}

	ids := make([]string, 0, len(entities))
	for id := range entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		entity := entities[id]
		rows = append(rows, []string{
			id,
			cell(entity["name"]),
			entity.Pack(),
			strconv.Itoa(len(entity.Images())),
			strconv.Itoa(len(entitySlice(entity[types.KeyAddons]))),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"ID", "Name", "Pack", "Alts", "Addons"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	))
	return nil
}

func listPacks(cmd *cobra.Command, a *app.App) error {
	manifests := a.Packs()
	if !isTable(listFlags.Format) {
		return writeDocument(cmd.OutOrStdout(), listFlags.Format, manifests)
	}
	if len(manifests) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No packs found.")
		return nil
	}

	rows := make([][]string, 0, len(manifests))
	for _, manifest := range manifests {
		var enabled []string
		for _, kind := range types.EntityTypes() {
			if manifest.Enabled(string(kind)) {
				enabled = append(enabled, string(kind))
			}
		}
		rows = append(rows, []string{manifest.ID, manifest.Name, strings.Join(enabled, ", "), manifest.Path})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Name", "Types", "Path"}, rows, nil))
	return nil
}

func listDefinitions(ctx context.Context, cmd *cobra.Command, a *app.App) error {
	ids := a.Definitions()
	definitions := make([]*types.Definition, 0, len(ids))
	for _, id := range ids {
		def, err := a.GetDefinition(ctx, id)
		if err != nil {
			return err
		}
		definitions = append(definitions, def)
	}

	if !isTable(listFlags.Format) {
		return writeDocument(cmd.OutOrStdout(), listFlags.Format, definitions)
	}

	rows := make([][]string, 0, len(definitions))
	for _, def := range definitions {
		rows = append(rows, []string{
			def.ID,
			def.Folder,
			string(def.Merge),
			strings.Join(def.FieldNames(), ", "),
			strings.Join(def.Packs, ", "),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Folder", "Merge", "Fields", "Packs"}, rows, nil))
	return nil
}

func entitySlice(v interface{}) []interface{} {
	if list, ok := v.([]interface{}); ok {
		return list
	}
	return nil
}
