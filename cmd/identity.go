package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/transition-cli/internal/identity"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Inspect the vendor identity graph",
	Long:  "Commands for reviewing resolved vendor identities, alias cycles, and likely duplicates.",
}

// -- identity resolve --

var identityResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Build the identity snapshot and report its state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		snapshot, err := loadSnapshot(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("version %d: %d canonical vendors, %d minted\n",
			snapshot.Version(), len(snapshot.Canonicals()), snapshot.MintedCount())
		for _, cerr := range snapshot.CycleErrors() {
			fmt.Fprintf(os.Stderr, "cycle: %s\n", cerr.Error())
		}
		return nil
	},
}

// -- identity dupes --

var identityDupesCmd = &cobra.Command{
	Use:   "dupes",
	Short: "List vendors whose normalized names collide",
	Long:  "Groups vendors by normalized legal name so an operator can review and merge duplicates.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		vendors, err := st.LoadVendors(ctx)
		if err != nil {
			return err
		}

		groups := identity.DuplicateGroups(vendors)
		if len(groups) == 0 {
			fmt.Fprintln(os.Stderr, "No duplicate groups found.")
			return nil
		}

		names := make([]string, 0, len(groups))
		for name := range groups {
			names = append(names, name)
		}
		sort.Strings(names)

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NORMALIZED\tVENDOR ID\tNAME")
		for _, name := range names {
			for _, v := range groups[name] {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", name, v.ID, v.Name)
			}
		}
		return tw.Flush()
	},
}

func init() {
	identityCmd.AddCommand(identityResolveCmd)
	identityCmd.AddCommand(identityDupesCmd)
	rootCmd.AddCommand(identityCmd)
}
