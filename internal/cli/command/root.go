package command

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memmesh-go/internal/cli/client"
	"github.com/yndnr/memmesh-go/internal/cli/output"
	"github.com/yndnr/memmesh-go/internal/infra/buildinfo"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "memmesh-cli",
		Usage:   "MemMesh federation management tool",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			StatusCommand(),
			LeaderCommand(),
			MembersCommand(),
			SelectCommand(),
			KVCommand(),
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "Node admin address (e.g., localhost:7450)",
			EnvVars: []string{"MEMMESH_SERVER"},
			Value:   "localhost:7450",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
	}
}

// apiClient builds a client from the global flags.
func apiClient(c *cli.Context) *client.Client {
	return client.New(c.String("server"))
}

// formatter builds an output formatter from the global flags.
func formatter(c *cli.Context) output.Formatter {
	return output.NewFormatter(output.Format(c.String("output")), c.Bool("wide"))
}

// render writes human output as a table and machine output as the
// raw data.
func render(c *cli.Context, table *output.Table, data any) error {
	if c.String("output") == string(output.FormatTable) {
		return formatter(c).Format(os.Stdout, table)
	}
	return formatter(c).Format(os.Stdout, data)
}
