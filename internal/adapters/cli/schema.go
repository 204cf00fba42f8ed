package cli

import (
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/core"
)

// draftShapes are the inputs billflow accepts from upstream collaborators
// (direct entry forms, the OCR mapping step, payment capture).
var draftShapes = map[string]any{
	"invoice": core.DraftInvoice{},
	"payment": core.PaymentInput{},
	"watak":   core.WatakDraft{},
}

// DraftSchema returns the JSON Schema of one draft shape.
func DraftSchema(name string) (*jsonschema.Schema, error) {
	v, ok := draftShapes[name]
	if !ok {
		return nil, fmt.Errorf("unknown draft shape %q (want invoice, payment or watak)", name)
	}
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(v), nil
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "schema <invoice|payment|watak>",
		Short:     "Print the JSON Schema of a draft input",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"invoice", "payment", "watak"},
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := DraftSchema(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), schema)
		},
	}
}
