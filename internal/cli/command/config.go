package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/usagestats-go/internal/cli/output"
	"github.com/yndnr/usagestats-go/internal/server/config"
)

// ConfigCommand returns the config command.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show the effective configuration with secrets masked",
		Action: func(c *cli.Context) error {
			cfg := config.Sanitize(GetConfig(c))
			if ParseGlobalFlags(c).Output == output.FormatTable {
				// Nested sections do not fit a table.
				return renderAs(c, output.FormatYAML, cfg)
			}
			return render(c, cfg)
		},
	}
}
