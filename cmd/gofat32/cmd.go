package main

import (
	"fmt"
	"time"

	"github.com/aligator/gofat32"
	"github.com/aligator/gofat32/blockdev"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	flagImage       string
	flagPartition   int
	flagStrictNames bool
	flagVerbose     bool

	// imageFs is the filesystem the image is opened from.
	imageFs = afero.NewOsFs()
)

func newCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "gofat32",
		Short:        "inspect and append to FAT32 images",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
			if flagVerbose {
				log.SetLevel(log.DebugLevel)
			}
			if flagImage == "" {
				return fmt.Errorf("no image given, use --image")
			}
			return nil
		},
	}

	cmd.AddCommand(infoCmd())
	cmd.AddCommand(lsCmd())
	cmd.AddCommand(treeCmd())
	cmd.AddCommand(catCmd())
	cmd.AddCommand(appendCmd())
	cmd.AddCommand(mkdirCmd())
	cmd.AddCommand(touchCmd())

	cmd.PersistentFlags().StringVarP(&flagImage, "image", "i", "", "FAT32 image file")
	cmd.PersistentFlags().IntVarP(&flagPartition, "partition", "p", 0, "partition to mount if the image has an MBR")
	cmd.PersistentFlags().BoolVar(&flagStrictNames, "strict-names", false, "compare names exactly")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log debug output")

	return cmd
}

// withVolume mounts the image, runs fn and closes the image again.
func withVolume(readOnly bool, fn func(v *gofat32.Volume) error) error {
	dev, err := blockdev.Open(imageFs, flagImage, readOnly)
	if err != nil {
		return fmt.Errorf("unable to open image %s: %w", flagImage, err)
	}
	defer dev.Close()

	v, err := gofat32.MountWithConfig(dev, gofat32.Config{
		Partition:   flagPartition,
		StrictNames: flagStrictNames,
		Now:         time.Now,
		Logger:      log.StandardLogger(),
	})
	if err != nil {
		return fmt.Errorf("unable to mount %s: %w", flagImage, err)
	}

	if err := fn(v); err != nil {
		return err
	}

	if !readOnly {
		return dev.Sync()
	}
	return nil
}
