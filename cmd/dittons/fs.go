package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/marmos91/dittons/pkg/client"
	"github.com/marmos91/dittons/pkg/config"
	"github.com/marmos91/dittons/pkg/namespace"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type fsFlags struct {
	server string
	user   string
}

func (f *fsFlags) client() (*client.Client, error) {
	return client.New(f.server, client.WithUser(f.user))
}

func newFSCmd() *cobra.Command {
	flags := &fsFlags{}

	cmd := &cobra.Command{
		Use:   "fs",
		Short: "Operate on the namespace of a running server",
	}

	defaultServer := os.Getenv("DITTONS_SERVER")
	if defaultServer == "" {
		defaultServer = fmt.Sprintf("http://localhost:%d", config.DefaultRESTPort)
	}
	cmd.PersistentFlags().StringVarP(&flags.server, "server", "s", defaultServer, "server URL (env DITTONS_SERVER)")
	cmd.PersistentFlags().StringVarP(&flags.user, "user", "u", os.Getenv("USER"), "owner recorded for created entries")

	cmd.AddCommand(
		newMkdirCmd(flags),
		newPutCmd(flags),
		newCatCmd(flags),
		newLsCmd(flags),
		newStatCmd(flags),
		newRmCmd(flags),
	)
	return cmd
}

func newMkdirCmd(flags *fsFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir PATH...",
		Short: "Create directories and their missing parents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			for _, p := range args {
				if _, err := c.Mkdirs(cmd.Context(), p); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newPutCmd(flags *fsFlags) *cobra.Command {
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "put LOCAL REMOTE",
		Short: "Upload a local file or directory; existing files are never replaced",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}

			ctx, stop := exitOnSignal(cmd.Context())
			defer stop()

			var opts []client.CopyOption
			if !noProgress {
				bar := progressbar.DefaultBytes(localSize(args[0]), "uploading")
				defer func() { _ = bar.Finish() }()
				opts = append(opts, client.WithProgress(bar))
			}
			return c.CopyFromLocal(ctx, args[0], args[1], opts...)
		},
	}

	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "hide the progress bar")
	return cmd
}

// localSize sums the regular files under p, or returns -1 (unknown size)
// when p cannot be walked.
func localSize(p string) int64 {
	var total int64
	err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return -1
	}
	return total
}

func newCatCmd(flags *fsFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cat PATH...",
		Short: "Print file content",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			for _, p := range args {
				if err := catFile(cmd.Context(), c, p, cmd.OutOrStdout()); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func catFile(ctx context.Context, c *client.Client, p string, w io.Writer) error {
	r, err := c.Open(ctx, p)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	_, err = io.Copy(w, r)
	return err
}

func newLsCmd(flags *fsFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ls PATH",
		Short: "List a directory, or show a single file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			list, err := c.ListStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintf(cmd.OutOrStdout(), "Found %d items\n", len(list))
			for _, st := range list {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t\n",
					modeString(st), st.Owner, st.Size, st.ModTime.Format("2006-01-02 15:04"), st.Path)
			}
			return tw.Flush()
		},
	}
}

func newStatCmd(flags *fsFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stat PATH",
		Short: "Show the status of one entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			st, err := c.GetFileStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			kind := "file"
			if st.IsDir() {
				kind = "directory"
			}
			fmt.Fprintf(out, "Path:       %s\n", st.Path)
			fmt.Fprintf(out, "Type:       %s\n", kind)
			fmt.Fprintf(out, "Size:       %d\n", st.Size)
			fmt.Fprintf(out, "Block size: %d\n", st.BlockSize)
			fmt.Fprintf(out, "Owner:      %s\n", st.Owner)
			fmt.Fprintf(out, "Mode:       %s\n", modeString(*st))
			fmt.Fprintf(out, "Modified:   %s\n", st.ModTime.Format(time.RFC3339))
			return nil
		},
	}
}

func newRmCmd(flags *fsFlags) *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "rm PATH...",
		Short: "Delete files or directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			for _, p := range args {
				deleted, err := c.Delete(cmd.Context(), p, recursive)
				if err != nil {
					return err
				}
				if !deleted {
					return fmt.Errorf("%s: No such file or directory", path.Clean(p))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "delete directories and their content")
	return cmd
}

func modeString(st namespace.FileStatus) string {
	mode := fs.FileMode(st.Mode) & fs.ModePerm
	if st.IsDir() {
		mode |= fs.ModeDir
	}
	return mode.String()
}
