package main

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/favbox/chainkit/components/prompt"
	"github.com/favbox/chainkit/serde"
	"github.com/favbox/chainkit/store"
)

// errNotFixedPoint 再次序列化的结果与原文不一致。
var errNotFixedPoint = errors.New("re-serialized text differs from input")

func (a *app) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Load a serialized pipeline and check it re-serializes to the same text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(args[0])
			if err != nil {
				return err
			}
			v, err := serde.Load(cmd.Context(), text, envSecrets())
			if err != nil {
				return err
			}
			again, err := serde.Serialize(v)
			if err != nil {
				return err
			}
			if again != text {
				return fmt.Errorf("%w:\n  input:  %s\n  output: %s", errNotFixedPoint, text, again)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok %s\n", v.SerdeID().Key())
			return nil
		},
	}
}

func (a *app) putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <name> <file>",
		Short: "Validate a serialized pipeline and write it to the store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(args[1])
			if err != nil {
				return err
			}
			v, err := serde.Load(cmd.Context(), text, nil)
			if err != nil {
				return err
			}
			return a.withStore(cmd.Context(), func(s store.Store) error {
				rev, err := store.Save(cmd.Context(), s, args[0], v)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], rev)
				return nil
			})
		},
	}
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Print a stored serialized pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(s store.Store) error {
				text, err := s.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
}

func (a *app) lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List stored names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd.Context(), func(s store.Store) error {
				names, err := s.List(cmd.Context())
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
}

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>...",
		Short: "Remove stored entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(s store.Store) error {
				var errs []error
				for _, name := range args {
					if err := s.Delete(cmd.Context(), name); err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", name, err))
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", name)
				}
				return errors.Join(errs...)
			})
		},
	}
}

func (a *app) schemaCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "schema [name]",
		Short: "Print the JSON schema of a prompt template's input variables",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			switch {
			case file != "":
				t, err := readText(file)
				if err != nil {
					return err
				}
				text = t
			case len(args) == 1:
				err := a.withStore(cmd.Context(), func(s store.Store) error {
					t, err := s.Get(cmd.Context(), args[0])
					text = t
					return err
				})
				if err != nil {
					return err
				}
			default:
				return errors.New("either a stored name or --file is required")
			}

			p, err := serde.LoadAs[*prompt.PromptTemplate](cmd.Context(), text, nil)
			if err != nil {
				return err
			}
			out, err := sonic.ConfigStd.MarshalIndent(p.InputSchema(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the serialized prompt from a file")
	return cmd
}

func (a *app) typesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the constructor ids known to the loader",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, id := range serde.Default().IDs() {
				fmt.Fprintln(cmd.OutOrStdout(), id.Key())
			}
			return nil
		},
	}
}
