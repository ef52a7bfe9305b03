package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/transition-cli/internal/idv"
)

var chainsCmd = &cobra.Command{
	Use:   "chains [piid]",
	Short: "Inspect IDV contract chains",
	Long: `Builds parent/child chains over the loaded contract vehicles. With no
argument, lists integrity flags. With a PIID, prints that contract's
chain from root to leaf with the rolled-up aggregate.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		contracts, err := st.LoadContracts(ctx)
		if err != nil {
			return err
		}

		tracker, flags := idv.NewTracker(contracts)

		if len(args) == 0 {
			if len(flags) == 0 {
				fmt.Fprintln(os.Stderr, "No chain integrity flags.")
				return nil
			}
			for _, ferr := range flags {
				fmt.Println(ferr.Error())
			}
			return nil
		}

		piid := args[0]
		chain, err := tracker.ChainOf(piid)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PIID\tPARENT\tSTART\tOBLIGATED")
		for _, c := range chain {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\n",
				c.PIID, c.ParentPIID, c.StartDate.Format("2006-01-02"), c.ObligatedUSD)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		root, err := tracker.Root(piid)
		if err != nil {
			return err
		}
		agg, err := tracker.Aggregate(root)
		if err != nil {
			return err
		}
		fmt.Printf("\nroot %s: %.2f USD over %d children, %s span\n",
			agg.RootPIID, agg.TotalValue, agg.ChildCount, agg.Duration())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chainsCmd)
}
