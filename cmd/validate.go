package main

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/sells-group/claimcheck/internal/dialog"
	"github.com/sells-group/claimcheck/internal/model"
	"github.com/sells-group/claimcheck/internal/pipeline"
	"github.com/sells-group/claimcheck/internal/rules"
)

var (
	validateLocation string
	validateConcepts []string
	validateDerive   string
	validateResolve  string
)

// validateOutput is printed when validating asserted concepts without a
// document.
type validateOutput struct {
	Concepts     []model.NormativeConcept `json:"concepts"`
	Validation   model.ValidationResult   `json:"validation"`
	Prompt       *dialog.Prompt           `json:"prompt,omitempty"`
	Resolution   *dialog.Resolution       `json:"resolution,omitempty"`
	Unremediable string                   `json:"unremediable,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate claimed concepts against the normative catalog",
	Long: "Validates concepts given with --concept NUMERAL=AMOUNT[@DAY], or derived from a document with --derive. " +
		"When the claim is invalid the remediation options are printed; --resolve applies one and re-validates.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		concepts, err := parseConcepts(validateConcepts, validateLocation)
		if err != nil {
			return err
		}

		if validateDerive != "" {
			env, err := initEnv(ctx, true)
			if err != nil {
				return err
			}
			defer env.Close()

			doc, err := openDocument(ctx, validateDerive)
			if err != nil {
				return err
			}
			rep, err := env.Runner.Run(ctx, doc, &pipeline.Claim{
				Location: validateLocation,
				Concepts: concepts,
				Derive:   true,
				Resolve:  validateResolve,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rep)
		}

		if len(concepts) == 0 {
			return eris.New("validate: give at least one --concept or --derive a document")
		}
		cat, err := loadCatalog(true)
		if err != nil {
			return err
		}
		out, err := validateConceptSet(cat, concepts, locationOrDefault(validateLocation), validateResolve)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateLocation, "location", "", "target location context (defaults to catalog.default_location)")
	validateCmd.Flags().StringArrayVar(&validateConcepts, "concept", nil, "claimed concept as NUMERAL=AMOUNT or NUMERAL=AMOUNT@DAY (repeatable)")
	validateCmd.Flags().StringVar(&validateDerive, "derive", "", "derive concepts from this document")
	validateCmd.Flags().StringVar(&validateResolve, "resolve", "", "apply this remediation option and re-validate")
	rootCmd.AddCommand(validateCmd)
}

func locationOrDefault(loc string) string {
	if loc != "" {
		return loc
	}
	return cfg.Catalog.DefaultLocation
}

func validateConceptSet(cat *rules.Catalog, concepts []model.NormativeConcept, location, resolve string) (*validateOutput, error) {
	out := &validateOutput{Concepts: concepts, Validation: rules.Validate(cat, concepts, location)}
	if out.Validation.Valid {
		return out, nil
	}

	m := dialog.New(cat)
	prompt, err := m.Prompt(out.Validation, concepts)
	if err != nil {
		if eris.Is(err, dialog.ErrNoRemediation) {
			out.Unremediable = err.Error()
			return out, nil
		}
		return nil, err
	}
	out.Prompt = prompt
	if resolve == "" {
		return out, nil
	}
	res, err := m.Resolve(prompt, resolve, concepts)
	if err != nil {
		return nil, err
	}
	out.Resolution = res
	return out, nil
}

// parseConcepts reads NUMERAL=AMOUNT[@DAY] values.
func parseConcepts(values []string, location string) ([]model.NormativeConcept, error) {
	out := make([]model.NormativeConcept, 0, len(values))
	for _, v := range values {
		numeral, rest, ok := strings.Cut(v, "=")
		numeral = strings.TrimSpace(numeral)
		if !ok || numeral == "" {
			return nil, eris.Errorf("validate: concept %q is not NUMERAL=AMOUNT", v)
		}
		amountStr, dayStr, hasDay := strings.Cut(rest, "@")
		amount, err := decimal.NewFromString(strings.TrimSpace(amountStr))
		if err != nil {
			return nil, eris.Wrapf(err, "validate: concept %q amount", v)
		}
		c := model.NormativeConcept{Numeral: numeral, Amount: amount, Location: location}
		if hasDay {
			day, err := strconv.Atoi(strings.TrimSpace(dayStr))
			if err != nil || day < 0 {
				return nil, eris.Errorf("validate: concept %q day must be a non-negative integer", v)
			}
			c.Day = day
		}
		out = append(out, c)
	}
	return out, nil
}
