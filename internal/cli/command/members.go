package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/memmesh-go/internal/cli/output"
)

// MembersCommand lists the membership table.
func MembersCommand() *cli.Command {
	return &cli.Command{
		Name:  "members",
		Usage: "List federation members",
		Action: func(c *cli.Context) error {
			members, err := apiClient(c).Members(c.Context)
			if err != nil {
				return err
			}

			var table output.Table
			if c.Bool("wide") {
				table.SetHeaders("ID", "ADDR", "HEALTH", "LOAD", "CAPABILITY", "LAST_HEARTBEAT")
			} else {
				table.SetHeaders("ID", "ADDR", "HEALTH", "LOAD")
			}
			for _, m := range members {
				row := []string{
					m.ID,
					m.Addr,
					m.Health.String(),
					output.CellFloat(m.LoadScore),
				}
				if c.Bool("wide") {
					row = append(row,
						output.CellString(m.Capability),
						output.CellTime(m.LastHeartbeat))
				}
				table.AddRow(row...)
			}

			return render(c, &table, members)
		},
	}
}

// SelectCommand asks the node to pick a member.
func SelectCommand() *cli.Command {
	return &cli.Command{
		Name:      "select",
		Usage:     "Pick a member with a selection algorithm",
		ArgsUsage: "[round_robin|least_loaded|fastest_response|weighted_random]",
		Action: func(c *cli.Context) error {
			algorithm := c.Args().First()
			if algorithm == "" {
				algorithm = "round_robin"
			}

			desc, err := apiClient(c).Select(c.Context, algorithm)
			if err != nil {
				return err
			}

			var table output.Table
			table.SetHeaders("ID", "ADDR", "HEALTH", "LOAD")
			table.AddRow(desc.ID, desc.Addr, desc.Health.String(), output.CellFloat(desc.LoadScore))

			return render(c, &table, desc)
		},
	}
}
