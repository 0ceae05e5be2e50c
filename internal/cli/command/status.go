package command

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memmesh-go/internal/cli/output"
)

// StatusCommand shows the node's consensus and replication state.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show node status",
		Action: func(c *cli.Context) error {
			st, err := apiClient(c).Status(c.Context)
			if err != nil {
				return err
			}

			var table output.Table
			table.SetHeaders("FIELD", "VALUE")
			table.AddRow("node_id", st.NodeID)
			table.AddRow("addr", output.CellString(st.Addr))
			table.AddRow("role", st.Role)
			table.AddRow("term", strconv.FormatUint(st.Term, 10))
			table.AddRow("leader", output.CellString(st.LeaderID))
			table.AddRow("commit_index", strconv.FormatUint(st.CommitIndex, 10))
			table.AddRow("degraded", strconv.FormatBool(st.Degraded))
			table.AddRow("replication", st.Replication)
			table.AddRow("records", strconv.Itoa(st.Records))
			table.AddRow("quarantined", strconv.Itoa(st.Quarantined))

			return render(c, &table, st)
		},
	}
}

// LeaderCommand prints the current consensus leader.
func LeaderCommand() *cli.Command {
	return &cli.Command{
		Name:  "leader",
		Usage: "Show the current consensus leader",
		Action: func(c *cli.Context) error {
			st, err := apiClient(c).Status(c.Context)
			if err != nil {
				return err
			}
			if st.LeaderID == "" {
				return fmt.Errorf("no leader elected (term %d)", st.Term)
			}

			var table output.Table
			table.SetHeaders("LEADER", "TERM")
			table.AddRow(st.LeaderID, strconv.FormatUint(st.Term, 10))

			return render(c, &table, map[string]any{
				"leader_id": st.LeaderID,
				"term":      st.Term,
			})
		},
	}
}
