package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/yevea-countertop/internal/config"
	"github.com/noah-isme/yevea-countertop/internal/configurator"
	"github.com/noah-isme/yevea-countertop/internal/pricing"
)

const defaultRates = "3:900,5:1200,7:1500"

type dimensionFlags struct {
	length, width, thickness string
}

func (f *dimensionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.length, "length", "", "length in cm (50-300)")
	cmd.Flags().StringVar(&f.width, "width", "", "width in cm (20-100)")
	cmd.Flags().StringVar(&f.thickness, "thickness", "3", "thickness in cm (3, 5 or 7)")
	_ = cmd.MarkFlagRequired("length")
	_ = cmd.MarkFlagRequired("width")
}

func (f dimensionFlags) dimensions() (pricing.Dimensions, error) {
	d, err := pricing.Validate(pricing.RawDimensions{Length: f.length, Width: f.width, Thickness: f.thickness})
	if err != nil {
		return pricing.Dimensions{}, errors.New("length, width and thickness must be positive numbers")
	}
	return d, nil
}

func calculator(cmd *cobra.Command) (*pricing.Calculator, error) {
	value, _ := cmd.Flags().GetString("rates")
	if strings.TrimSpace(value) == "" {
		value = os.Getenv("PRICING_RATES")
	}
	if strings.TrimSpace(value) == "" {
		value = defaultRates
	}
	rates, err := config.ParseRates(value)
	if err != nil {
		return nil, fmt.Errorf("rates: %w", err)
	}
	return pricing.NewCalculator(pricing.RateTable(rates)), nil
}

func newQuoteCmd() *cobra.Command {
	var dims dimensionFlags
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Print the price of a countertop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := dims.dimensions()
			if err != nil {
				return err
			}
			calc, err := calculator(cmd)
			if err != nil {
				return err
			}
			d = d.Clamp()
			fmt.Fprintf(cmd.OutOrStdout(), "%sx%sx%s cm: %s\n",
				pricing.FormatNumber(d.Length), pricing.FormatNumber(d.Width), pricing.FormatNumber(d.Thickness),
				calc.Price(d).StringFixed(2))
			return nil
		},
	}
	dims.register(cmd)
	return cmd
}

func newNameCmd() *cobra.Command {
	var (
		dims      dimensionFlags
		edgeCode  string
		category  string
		otherText string
	)
	cmd := &cobra.Command{
		Use:   "name",
		Short: "Print the product name used on cart lines and receipts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := dims.dimensions()
			if err != nil {
				return err
			}
			edges, err := configurator.ParseCode(edgeCode)
			if err != nil {
				return err
			}
			c, ok := configurator.ParseCategory(category)
			if !ok {
				return fmt.Errorf("unknown usage %q", category)
			}
			usage := configurator.Usage{Category: c, OtherText: otherText}.Normalize()
			fmt.Fprintln(cmd.OutOrStdout(), configurator.ProductName(d, edges, usage))
			return nil
		},
	}
	dims.register(cmd)
	cmd.Flags().StringVar(&edgeCode, "edges", "iiii", "edge code in north,east,south,west order (i straight, s live)")
	cmd.Flags().StringVar(&category, "usage", string(configurator.Tabletop), "usage category")
	cmd.Flags().StringVar(&otherText, "other", "", "free text for usage other")
	return cmd
}
