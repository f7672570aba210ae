package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/ndb/internal/output"
)

func (a *app) newCASCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cas",
		Short: "Content-addressed store commands",
	}
	cmd.AddCommand(a.newCASPutCmd(), a.newCASGetCmd(), a.newCASIngestCmd())
	return cmd
}

func (a *app) newCASPutCmd() *cobra.Command {
	var (
		text string
		file string
	)

	cmd := &cobra.Command{
		Use:   "put",
		Short: "Store content and print its hash",
		Long: `Store content and print its SHA-256 hash.

Content comes from --text, --file, or stdin when neither is given.
Storing content that is already present prints the existing hash.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(cmd.Context(), func(s *services) error {
				var (
					hash string
					err  error
				)
				if cmd.Flags().Changed("text") {
					hash, err = s.store.Put(cmd.Context(), text)
				} else {
					var data []byte
					data, err = a.readInput(file)
					if err != nil {
						return err
					}
					hash, err = s.store.PutBytes(cmd.Context(), data)
				}
				if err != nil {
					return err
				}
				a.println(hash)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "content to store")
	cmd.Flags().StringVar(&file, "file", "", "read content from file")
	cmd.MarkFlagsMutuallyExclusive("text", "file")
	return cmd
}

func (a *app) newCASGetCmd() *cobra.Command {
	var showHash bool

	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print entries whose hash starts with KEY",
		Long: `Print every entry whose hash starts with KEY. A leading "@" is ignored.

With --show-hash each entry is preceded by "@hash" and entries are
separated by "---".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(cmd.Context(), func(s *services) error {
				entries, err := s.store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					return notFound(args[0])
				}
				return output.WriteEntries(a.stdout, entries, showHash)
			})
		},
	}

	cmd.Flags().BoolVar(&showHash, "show-hash", false, "print @hash before each entry")
	return cmd
}

func (a *app) newCASIngestCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ingest FILE",
		Short: "Store every line of a .ndb file",
		Long: `Store each non-blank line of FILE as its own entry. Lines starting
with "#" are comments. Use "-" to read stdin.

The import is all-or-nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = a.stdin
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return failure(fmt.Errorf("opening %s: %w", args[0], err))
				}
				defer f.Close()
				r = f
			}

			return a.withServices(cmd.Context(), func(s *services) error {
				res, err := s.store.Ingest(cmd.Context(), r)
				if err != nil {
					return err
				}
				if asJSON {
					return output.WriteJSON(a.stdout, res)
				}
				fmt.Fprintf(a.stdout, "Stored %d new entries (%d already present)\n", res.Stored, res.Duplicates)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON instead of text")
	return cmd
}

// readInput returns the contents of path, or of stdin when path is empty.
func (a *app) readInput(path string) ([]byte, error) {
	if path == "" {
		data, err := io.ReadAll(a.stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
