package main

import (
	"errors"
	"io"

	"github.com/aligator/gofat32"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func appendCmd() *cobra.Command {
	var create bool
	cmd := &cobra.Command{
		Use:   "append <file>",
		Short: "append stdin to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVolume(false, func(v *gofat32.Volume) error {
				d := v.Drive(0)
				if create {
					err := d.CreateFile(args[0])
					if err != nil && !errors.Is(err, gofat32.ErrAlreadyExists) {
						return err
					}
				}

				f, err := d.Open(args[0])
				if err != nil {
					return err
				}

				n, err := io.Copy(f, cmd.InOrStdin())
				if err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}

				log.Infof("appended %d bytes to %s", n, args[0])
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&create, "create", false, "create the file if it does not exist")
	return cmd
}

func mkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <dir>",
		Short: "create a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVolume(false, func(v *gofat32.Volume) error {
				return v.CreateDirectory(args[0])
			})
		},
	}
}

func touchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "touch <file>",
		Short: "create an empty file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVolume(false, func(v *gofat32.Volume) error {
				return v.CreateFile(args[0])
			})
		},
	}
}
