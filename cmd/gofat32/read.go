package main

import (
	"fmt"
	"io"
	"os"

	"github.com/aligator/gofat32"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "show the geometry of the volume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVolume(true, func(v *gofat32.Volume) error {
				g := v.Geometry()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "label:               %s\n", v.Label())
				fmt.Fprintf(out, "partitions:          %v\n", v.Partitions())
				fmt.Fprintf(out, "partition start:     %d\n", g.PartitionStart)
				fmt.Fprintf(out, "sectors per cluster: %d\n", g.SectorsPerCluster)
				fmt.Fprintf(out, "reserved sectors:    %d\n", g.ReservedSectors)
				fmt.Fprintf(out, "FATs:                %d x %d sectors\n", g.NumFATs, g.SectorsPerFAT)
				fmt.Fprintf(out, "FAT start:           %d\n", g.FATStart)
				fmt.Fprintf(out, "first data sector:   %d\n", g.FirstDataSector)
				fmt.Fprintf(out, "clusters:            %d\n", g.ClusterCount())
				fmt.Fprintf(out, "free clusters:       %d\n", v.FreeClusters())
				return nil
			})
		},
	}
}

func lsCmd() *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "ls [dir]",
		Short: "list a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "/"
			if len(args) > 0 {
				dir = args[0]
			}

			return withVolume(true, func(v *gofat32.Volume) error {
				infos, err := v.Drive(0).Glob(dir, pattern)
				if err != nil {
					return err
				}
				for _, info := range infos {
					kind := "-"
					if info.IsDir() {
						kind = "d"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %10d %s %s\n", kind, info.Size(), info.ModTime().Format("2006-01-02 15:04:05"), info.Name())
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&pattern, "pattern", "*", "only list names matching the wildcard pattern")
	return cmd
}

func treeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "list all files of the volume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVolume(true, func(v *gofat32.Volume) error {
				return afero.Walk(gofat32.NewFs(v), "/", func(path string, info os.FileInfo, err error) error {
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), path, info.IsDir(), info.Size())
					return nil
				})
			})
		},
	}
}

func catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <file>",
		Short: "print a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVolume(true, func(v *gofat32.Volume) error {
				f, err := v.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()

				_, err = io.Copy(cmd.OutOrStdout(), f)
				return err
			})
		},
	}
}
