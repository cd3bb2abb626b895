package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/charoster/internal/errors"
	"github.com/conneroisu/charoster/internal/imagecache"
	"github.com/conneroisu/charoster/internal/types"
	"github.com/conneroisu/charoster/internal/validation"
)

var imageCmd = &cobra.Command{
	Use:   "image <type> <imageId>",
	Short: "Derive a sized and themed alt image",
	Long: `Derive the PNG of an alt image. Image ids are <pack>>entity>alt with an
optional >index; the first image of the alt is used without one.

Examples:
  charoster image characters "demo>hero>alt1" --out hero.png
  charoster image characters "demo>hero>alt1>2" --size banner --theme neon -o banner.png
  charoster image stages "demo>castle>day" --render > castle.png`,
	Args: cobra.ExactArgs(2),
	RunE: runImage,
}

var imageFlags *StandardFlags

func init() {
	rootCmd.AddCommand(imageCmd)
	imageFlags = AddStandardFlags(imageCmd, "image")
}

func runImage(cmd *cobra.Command, args []string) error {
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

	data, err := a.GetAltImage(ctx, imagecache.Request{
		Type:         kind,
		ImageID:      args[1],
		Size:         imageFlags.Size,
		Theme:        imageFlags.Theme,
		RenderTarget: imageFlags.Render,
	})
	if err != nil {
		return err
	}
	if data == nil {
		return errors.NewNotFoundError(errors.ErrCodeEntityNotFound, "image not found", nil).WithEntity(args[1])
	}

	if imageFlags.Out == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(imageFlags.Out, data, 0644); err != nil {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, "failed to write image").WithPath(imageFlags.Out)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%d bytes)\n", imageFlags.Out, len(data))
	return nil
}
