package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/memmesh-go/internal/cli/output"
)

// KVCommand groups the replicated key-value operations.
func KVCommand() *cli.Command {
	strongFlag := &cli.BoolFlag{
		Name:  "strong",
		Usage: "Use the consensus-replicated keyspace instead of the eventually consistent one",
	}

	return &cli.Command{
		Name:  "kv",
		Usage: "Replicated key-value operations",
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Read a key",
				ArgsUsage: "<key>",
				Flags:     []cli.Flag{strongFlag},
				Action:    kvGet,
			},
			{
				Name:      "put",
				Usage:     "Write a key",
				ArgsUsage: "<key> <value>",
				Flags:     []cli.Flag{strongFlag},
				Action:    kvPut,
			},
			{
				Name:      "delete",
				Usage:     "Delete a key",
				ArgsUsage: "<key>",
				Flags:     []cli.Flag{strongFlag},
				Action:    kvDelete,
			},
		},
	}
}

func kvGet(c *cli.Context) error {
	key := c.Args().First()
	if key == "" {
		return fmt.Errorf("usage: kv get <key>")
	}

	value, err := apiClient(c).Get(c.Context, key, c.Bool("strong"))
	if err != nil {
		return err
	}

	if c.String("output") == string(output.FormatTable) {
		fmt.Println(string(value))
		return nil
	}
	return formatter(c).Format(os.Stdout, map[string]string{
		"key":   key,
		"value": string(value),
	})
}

func kvPut(c *cli.Context) error {
	key, value := c.Args().Get(0), c.Args().Get(1)
	if key == "" || c.Args().Len() < 2 {
		return fmt.Errorf("usage: kv put <key> <value>")
	}

	if err := apiClient(c).Put(c.Context, key, []byte(value), c.Bool("strong")); err != nil {
		return err
	}
	fmt.Println("OK")
	return nil
}

func kvDelete(c *cli.Context) error {
	key := c.Args().First()
	if key == "" {
		return fmt.Errorf("usage: kv delete <key>")
	}

	if err := apiClient(c).Delete(c.Context, key, c.Bool("strong")); err != nil {
		return err
	}
	fmt.Println("OK")
	return nil
}
