package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/benvon/pasfoto/internal/config"
	"github.com/benvon/pasfoto/internal/database"
	"github.com/benvon/pasfoto/internal/models"
	"github.com/spf13/cobra"
)

// NewOrdersCmd creates the orders command
func NewOrdersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect pas foto orders",
	}
	cmd.AddCommand(newOrdersListCmd())
	return cmd
}

func newOrdersListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}

			db, err := database.New(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer func() {
				if err := db.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
				}
			}()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			orders, err := database.NewOrderRepository(db).List(ctx, limit)
			if err != nil {
				return err
			}
			return printOrders(cmd.OutOrStdout(), orders)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", database.DefaultListLimit,
		fmt.Sprintf("Number of orders to show (max %d)", database.MaxListLimit))
	return cmd
}

func printOrders(out io.Writer, orders []*models.Order) error {
	if len(orders) == 0 {
		_, err := fmt.Fprintln(out, "No orders found")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tID\tSTATUS\tBRANCH\tCUSTOMER\tWHATSAPP\tSIZE\tBACKGROUND\tQTY")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			o.CreatedAt.UTC().Format(time.RFC3339),
			o.ID,
			o.Status,
			o.BranchID,
			o.CustomerName,
			o.CustomerWhatsApp,
			o.Details.Size,
			o.Details.Background,
			o.Details.Quantity,
		)
	}
	return tw.Flush()
}
