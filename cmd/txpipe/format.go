package txpipe

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/manifest-network/txpipe/internal/format"
	"github.com/manifest-network/txpipe/internal/units"
)

type formatStyle string

const (
	styleDisplay formatStyle = "display"
	styleInput   formatStyle = "input"
	stylePostfix formatStyle = "postfix"
	styleFluid   formatStyle = "fluid"
)

var formatCmd = &cobra.Command{
	Use:   "format [amount]",
	Short: "Format a token amount the way receipts show it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := formatAmount(
			viper.GetString("asset"),
			args[0],
			viper.GetBool("micro"),
			formatStyle(viper.GetString("style")),
		)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func formatAmount(asset, raw string, micro bool, style formatStyle) (string, error) {
	switch strings.ToLower(asset) {
	case "ust", "uusd":
		return formatAs[units.UST](raw, micro, format.USTPreset, style)
	case "aust", "uaust":
		return formatAs[units.AUST](raw, micro, format.USTPreset, style)
	case "luna", "uluna":
		return formatAs[units.Luna](raw, micro, format.LunaPreset, style)
	case "bluna", "ubluna":
		return formatAs[units.BLuna](raw, micro, format.LunaPreset, style)
	case "anc", "uanc":
		return formatAs[units.ANC](raw, micro, format.ANCPreset, style)
	case "lp", "ulp":
		return formatAs[units.LP](raw, micro, format.LPPreset, style)
	}
	return "", fmt.Errorf("unknown asset %q", asset)
}

func formatAs[A units.Asset](raw string, micro bool, preset format.Preset, style formatStyle) (string, error) {
	var (
		amount units.Amount[A]
		err    error
	)
	if micro {
		var m units.Micro[A]
		m, err = units.ParseMicro[A](raw)
		amount = units.Demicrofy(m)
	} else {
		amount, err = units.ParseAmount[A](raw)
	}
	if err != nil {
		return "", err
	}

	var s string
	switch style {
	case styleDisplay:
		s = preset.Format(amount.Decimal())
	case styleInput:
		s = preset.FormatInput(amount.Decimal())
	case stylePostfix:
		s = preset.FormatWithPostfixUnits(amount.Decimal())
	case styleFluid:
		s = format.FormatFluidDecimalPoints(amount.Decimal(), preset.Points, true)
	default:
		return "", fmt.Errorf("unknown style %q (want display, input, postfix or fluid)", style)
	}
	return s + " " + units.Symbol[A](), nil
}

func init() {
	formatCmd.Flags().StringP("asset", "a", "ust", "Asset of the amount (ust, aust, luna, bluna, anc, lp)")
	formatCmd.Flags().BoolP("micro", "u", false, "The amount is in micro units")
	formatCmd.Flags().StringP("style", "s", string(styleDisplay), "Formatting style (display, input, postfix, fluid)")
}
