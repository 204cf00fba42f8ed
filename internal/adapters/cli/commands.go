package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/app"
	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/core"
)

func newPartyCmd(backend Backend) *cobra.Command {
	cmd := &cobra.Command{Use: "party", Short: "Manage customers and vendors"}

	add := &cobra.Command{
		Use:     "add <name>",
		Short:   "Add a customer or vendor",
		Example: `  billflow party add "Rahim Traders" --role vendor`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := backend.Service(cmd.Context())
			if err != nil {
				return err
			}
			role, _ := cmd.Flags().GetString("role")
			party, err := svc.CreateParty(cmd.Context(), app.CreatePartyRequest{Name: args[0], Role: role})
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), party)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s #%d: %s\n", party.Role, party.ID, party.Name)
			return nil
		},
	}
	add.Flags().String("role", "customer", "customer or vendor")

	list := &cobra.Command{
		Use:   "list",
		Short: "List parties with their balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := backend.Service(cmd.Context())
			if err != nil {
				return err
			}
			role, _ := cmd.Flags().GetString("role")
			result, err := svc.ListParties(cmd.Context(), role)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), result.Parties)
			}
			printParties(cmd.OutOrStdout(), result.Parties)
			return nil
		},
	}
	list.Flags().String("role", "", "Only list customer or vendor parties")

	cmd.AddCommand(add, list)
	return cmd
}

func newItemCmd(backend Backend) *cobra.Command {
	cmd := &cobra.Command{Use: "item", Short: "Manage tradable items"}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Register an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := backend.Service(cmd.Context())
			if err != nil {
				return err
			}
			item, err := svc.CreateItem(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), item)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created item #%d: %s\n", item.ID, item.Name)
			return nil
		},
	})
	return cmd
}

func newStockCmd(backend Backend) *cobra.Command {
	cmd := &cobra.Command{Use: "stock", Short: "Receive and inspect inventory batches"}

	receive := &cobra.Command{
		Use:     "receive <item>",
		Short:   "Record a vendor delivery as a new batch",
		Example: `  billflow stock receive Apples --vendor 3 --quantity 120 --date 2024-01-03`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := backend.Service(cmd.Context())
			if err != nil {
				return err
			}
			qty, err := decimalFlag(cmd, "quantity")
			if err != nil {
				return err
			}
			vendorID, _ := cmd.Flags().GetInt("vendor")
			date, _ := cmd.Flags().GetString("date")
			batch, err := svc.ReceiveStock(cmd.Context(), app.ReceiveStockRequest{
				VendorID:     vendorID,
				ItemRef:      args[0],
				DateReceived: date,
				Quantity:     qty,
			})
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), batch)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Received batch #%d: %s units on %s\n", batch.ID, batch.QuantityReceived, batch.DateReceived)
			return nil
		},
	}
	receive.Flags().Int("vendor", 0, "Vendor party id (required)")
	receive.Flags().String("quantity", "", "Quantity received (required)")
	receive.Flags().String("date", "", "Date received, YYYY-MM-DD (default: today)")
	_ = receive.MarkFlagRequired("vendor")
	_ = receive.MarkFlagRequired("quantity")

	list := &cobra.Command{
		Use:   "list <item>",
		Short: "List batches with stock left, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := backend.Service(cmd.Context())
			if err != nil {
				return err
			}
			result, err := svc.GetStock(cmd.Context(), args[0], optionalIntFlag(cmd, "vendor"))
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), result)
			}
			printStock(cmd.OutOrStdout(), result)
			return nil
		},
	}
	list.Flags().Int("vendor", 0, "Only list this vendor's batches")

	cmd.AddCommand(receive, list)
	return cmd
}

func newInvoiceCmd(backend Backend) *cobra.Command {
	cmd := &cobra.Command{Use: "invoice", Short: "Create, inspect and reverse invoices"}

	create := &cobra.Command{
		Use:   "create [draft.json]",
		Short: "Post a draft invoice",
		Long: `Post a draft invoice read from a JSON file (or stdin).

Each line either names a batch_id, in which case only that batch is used, or
is allocated first-in-first-out across the item's batches (optionally limited
to one vendor_id). If any line cannot be allocated nothing is saved.`,
		Example: `  echo '{"party_id":1,"lines":[{"item_id":2,"quantity":"60","weight":"0","rate":"12.5"}]}' | billflow invoice create`,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var draft core.DraftInvoice
			if err := readJSON(cmd, firstArg(args), &draft); err != nil {
				return err
			}
			svc, err := backend.Service(cmd.Context())
			if err != nil {
				return err
			}
			result, err := svc.CreateInvoice(cmd.Context(), draft)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), result.Invoice)
			}
			printInvoice(cmd.OutOrStdout(), result.Invoice)
			return nil
		},
	}

	update := &cobra.Command{
		Use:   "update <id|number> [draft.json]",
		Short: "Replace an invoice with a new draft, keeping its number",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var draft core.DraftInvoice
			if err := readJSON(cmd, firstArg(args[1:]), &draft); err != nil {
				return err
			}
			svc, err := backend.Service(cmd.Context())
			if err != nil {
				return err
			}
			result, err := svc.UpdateInvoice(cmd.Context(), args[0], draft)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), result.Invoice)
			}
			printInvoice(cmd.OutOrStdout(), result.Invoice)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <id|number>",
		Short: "Reverse an invoice's stock and balance effects and delete it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := backend.Service(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.DeleteInvoice(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Invoice %s deleted.\n", args[0])
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <id|number>",
		Short: "Show an invoice with its batch allocations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := backend.Service(cmd.Context())
			if err != nil {
				return err
			}
			result, err := svc.GetInvoice(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), result.Invoice)
			}
			printInvoice(cmd.OutOrStdout(), result.Invoice)
			return nil
		},
	}

	cmd.AddCommand(create, update, del, show)
	return cmd
}

func newPaymentCmd(backend Backend) *cobra.Command {
	cmd := &cobra.Command{Use: "payment", Short: "Record and delete payments"}

	record := &cobra.Command{
		Use:     "record <party-id>",
		Short:   "Record a payment received from or paid to a party",
		Example: `  billflow payment record 1 --amount 150 --discount 50 --mode cash --date 2024-02-05`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			partyID, err := parseID(args[0], "party")
			if err != nil {
				return err
			}
			amount, err := decimalFlag(cmd, "amount")
			if err != nil {
				return err
			}
			discount, err := decimalFlag(cmd, "discount")
			if err != nil {
				return err
			}
			mode, _ := cmd.Flags().GetString("mode")
			date, _ := cmd.Flags().GetString("date")
			input := core.PaymentInput{PartyID: partyID, Amount: amount, Discount: discount, Mode: mode, Date: date}
			if cmd.Flags().Changed("receipt") {
				receipt, _ := cmd.Flags().GetString("receipt")
				input.ReceiptNo = &receipt
			}

			svc, err := backend.Service(cmd.Context())
			if err != nil {
				return err
			}
			result, err := svc.RecordPayment(cmd.Context(), input)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Payment #%d recorded. %s balance: %s (%s)\n",
				result.Payment.ID, result.Party.Name, result.Party.CurrentBalance.StringFixed(2),
				core.StatusFor(result.Party.Role, result.Party.CurrentBalance))
			return nil
		},
	}
	record.Flags().String("amount", "0", "Amount paid")
	record.Flags().String("discount", "0", "Discount allowed")
	record.Flags().String("mode", "cash", "Payment mode")
	record.Flags().String("date", "", "Payment date, YYYY-MM-DD (default: today)")
	record.Flags().String("receipt", "", "Receipt number")

	del := &cobra.Command{
		Use:   "delete <payment-id>",
		Short: "Delete a payment and restore the balance it settled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "payment")
			if err != nil {
				return err
			}
			svc, err := backend.Service(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.DeletePayment(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Payment #%d deleted.\n", id)
			return nil
		},
	}

	cmd.AddCommand(record, del)
	return cmd
}

func newWatakCmd(backend Backend) *cobra.Command {
	cmd := &cobra.Command{Use: "watak", Short: "Vendor commission settlements"}

	draft := &cobra.Command{
		Use:   "draft <vendor-id>",
		Short: "Build a watak draft from a day's sales and preview the settlement",
		Long: `Aggregate the customer sales made on --date from the vendor's batches into a
watak draft. The draft is printed as JSON when --json is set, ready to be edited
(charges, bardan) and passed to "watak create".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vendorID, err := parseID(args[0], "vendor")
			if err != nil {
				return err
			}
			date, _ := cmd.Flags().GetString("date")
			svc, err := backend.Service(cmd.Context())
			if err != nil {
				return err
			}
			result, err := svc.DraftWatak(cmd.Context(), vendorID, date)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), result.Draft)
			}
			printSettlement(cmd.OutOrStdout(), result.Preview)
			return nil
		},
	}
	draft.Flags().String("date", "", "Sales date, YYYY-MM-DD (required)")
	_ = draft.MarkFlagRequired("date")

	create := &cobra.Command{
		Use:   "create [draft.json]",
		Short: "Post a watak draft to the vendor's balance",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var d core.WatakDraft
			if err := readJSON(cmd, firstArg(args), &d); err != nil {
				return err
			}
			svc, err := backend.Service(cmd.Context())
			if err != nil {
				return err
			}
			result, err := svc.CreateWatak(cmd.Context(), d)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), result.Watak)
			}
			printWatak(cmd.OutOrStdout(), result.Watak)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <watak-id>",
		Short: "Delete a watak and reverse its net payable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "watak")
			if err != nil {
				return err
			}
			svc, err := backend.Service(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.DeleteWatak(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watak #%d deleted.\n", id)
			return nil
		},
	}

	cmd.AddCommand(draft, create, del)
	return cmd
}

func newRuleCmd(backend Backend) *cobra.Command {
	cmd := &cobra.Command{Use: "rule", Short: "Settlement parameters for wataks"}

	add := &cobra.Command{
		Use:     "add",
		Short:   "Add a commission and labor rule for one vendor or for all vendors",
		Example: `  billflow rule add --commission 8 --labor-rate 2 --exempt-item Cherry --vendor 3`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			commission, err := decimalFlag(cmd, "commission")
			if err != nil {
				return err
			}
			laborRate, err := decimalFlag(cmd, "labor-rate")
			if err != nil {
				return err
			}
			exempt, _ := cmd.Flags().GetString("exempt-item")
			priority, _ := cmd.Flags().GetInt("priority")
			rule := core.SettlementRule{
				VendorID:          optionalIntFlag(cmd, "vendor"),
				CommissionPercent: commission,
				LaborRate:         laborRate,
				LaborExemptItem:   exempt,
				Priority:          priority,
			}
			if cmd.Flags().Changed("effective-to") {
				to, _ := cmd.Flags().GetString("effective-to")
				rule.EffectiveTo = &to
			}

			svc, err := backend.Service(cmd.Context())
			if err != nil {
				return err
			}
			created, err := svc.AddSettlementRule(cmd.Context(), rule)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), created)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Settlement rule #%d added.\n", created.ID)
			return nil
		},
	}
	add.Flags().String("commission", "", "Commission percent (required)")
	add.Flags().String("labor-rate", "0", "Labor charge per unit")
	add.Flags().String("exempt-item", "", "Item name exempt from labor")
	add.Flags().Int("vendor", 0, "Vendor party id (default: all vendors)")
	add.Flags().Int("priority", 0, "Higher priority wins among rules of the same scope")
	add.Flags().String("effective-to", "", "Last date the rule applies, YYYY-MM-DD")
	_ = add.MarkFlagRequired("commission")

	cmd.AddCommand(add)
	return cmd
}

func newLedgerCmd(backend Backend) *cobra.Command {
	cmd := &cobra.Command{Use: "ledger", Short: "Party ledgers and balance reconciliation"}

	show := &cobra.Command{
		Use:   "show <party-id>",
		Short: "Print a party's ledger with running balances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			partyID, err := parseID(args[0], "party")
			if err != nil {
				return err
			}
			svc, err := backend.Service(cmd.Context())
			if err != nil {
				return err
			}
			result, err := svc.GetLedger(cmd.Context(), partyID)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), result.Ledger)
			}
			printLedger(cmd.OutOrStdout(), result.Ledger)
			return nil
		},
	}

	reconcile := &cobra.Command{
		Use:   "reconcile <party-id>",
		Short: "Check that a party's history explains its stored balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			partyID, err := parseID(args[0], "party")
			if err != nil {
				return err
			}
			svc, err := backend.Service(cmd.Context())
			if err != nil {
				return err
			}
			r, err := svc.Reconcile(cmd.Context(), partyID)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), r)
			}
			printReconciliation(cmd.OutOrStdout(), r)
			if !r.Consistent {
				return fmt.Errorf("party %d is out of balance", partyID)
			}
			return nil
		},
	}

	cmd.AddCommand(show, reconcile)
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
