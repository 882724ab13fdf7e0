package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/voxalabs/storage-redundancy-engine/api"
	"github.com/voxalabs/storage-redundancy-engine/cmd/flags"
)

var flagFile = &cli.StringFlag{
	Name:  "file",
	Usage: "read the payload from this path instead of stdin",
}
var flagOutput = &cli.StringFlag{
	Name:  "output",
	Usage: "write the payload to this path instead of stdout",
}
var flagRaced = &cli.BoolFlag{
	Name:  "raced",
	Usage: "race all healthy holders instead of walking them in health order",
}

func main() {
	app := &cli.App{
		Name:  "storage-client",
		Usage: "Operate a storage redundancy engine over its HTTP API",
		Flags: []cli.Flag{
			flags.ServerAddrFlag,
		},
		Commands: []*cli.Command{
			{
				Name:      "store",
				Usage:     "encrypt and replicate a file",
				ArgsUsage: "<filename>",
				Flags:     []cli.Flag{flagFile},
				Action: func(cCtx *cli.Context) error {
					filename, err := requireArg(cCtx, "filename")
					if err != nil {
						return err
					}
					return NewClientConfig(cCtx).Store(cCtx.Context, filename, cCtx.String(flagFile.Name))
				},
			},
			{
				Name:      "retrieve",
				Usage:     "fetch and decrypt a file",
				ArgsUsage: "<filename>",
				Flags:     []cli.Flag{flagOutput, flagRaced},
				Action: func(cCtx *cli.Context) error {
					filename, err := requireArg(cCtx, "filename")
					if err != nil {
						return err
					}
					return NewClientConfig(cCtx).Retrieve(cCtx.Context, filename, cCtx.String(flagOutput.Name), cCtx.Bool(flagRaced.Name))
				},
			},
			{
				Name:      "delete",
				Usage:     "remove a file from every provider holding it",
				ArgsUsage: "<filename>",
				Action: func(cCtx *cli.Context) error {
					filename, err := requireArg(cCtx, "filename")
					if err != nil {
						return err
					}
					return NewClientConfig(cCtx).Delete(cCtx.Context, filename)
				},
			},
			{
				Name:  "list",
				Usage: "list files merged across all providers",
				Action: func(cCtx *cli.Context) error {
					return NewClientConfig(cCtx).List(cCtx.Context)
				},
			},
			{
				Name:  "stats",
				Usage: "show aggregate fleet statistics",
				Action: func(cCtx *cli.Context) error {
					return NewClientConfig(cCtx).Stats(cCtx.Context)
				},
			},
			{
				Name:  "providers",
				Usage: "show per-provider state and health",
				Action: func(cCtx *cli.Context) error {
					return NewClientConfig(cCtx).Providers(cCtx.Context)
				},
			},
			{
				Name:      "test",
				Usage:     "run a connection test against one provider",
				ArgsUsage: "<provider>",
				Action: func(cCtx *cli.Context) error {
					provider, err := requireArg(cCtx, "provider")
					if err != nil {
						return err
					}
					return NewClientConfig(cCtx).Test(cCtx.Context, provider)
				},
			},
			{
				Name:      "set-primary",
				Usage:     "route future operations through a different primary",
				ArgsUsage: "<provider>",
				Action: func(cCtx *cli.Context) error {
					provider, err := requireArg(cCtx, "provider")
					if err != nil {
						return err
					}
					return NewClientConfig(cCtx).SetPrimary(cCtx.Context, provider)
				},
			},
			{
				Name:      "set-redundancy",
				Usage:     "change the redundancy level (none, dual, full)",
				ArgsUsage: "<level>",
				Action: func(cCtx *cli.Context) error {
					level, err := requireArg(cCtx, "level")
					if err != nil {
						return err
					}
					return NewClientConfig(cCtx).SetRedundancy(cCtx.Context, level)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type Client struct {
	api *api.Client
}

func NewClientConfig(cCtx *cli.Context) *Client {
	return &Client{api: &api.Client{ServerAddr: cCtx.String(flags.ServerAddrFlag.Name)}}
}

func (c *Client) Store(ctx context.Context, filename, path string) error {
	data, err := readPayload(path)
	if err != nil {
		return fmt.Errorf("could not read payload: %w", err)
	}

	resp, err := c.api.Store(ctx, filename, data)
	if err != nil {
		return fmt.Errorf("store failed: %w", err)
	}
	printJSON(resp)
	return nil
}

func (c *Client) Retrieve(ctx context.Context, filename, output string, raced bool) error {
	data, err := c.api.Retrieve(ctx, filename, raced)
	if err != nil {
		return fmt.Errorf("retrieve failed: %w", err)
	}

	if output == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(output, data, 0o644)
}

func (c *Client) Delete(ctx context.Context, filename string) error {
	if err := c.api.Delete(ctx, filename); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	fmt.Println("deleted", filename)
	return nil
}

func (c *Client) List(ctx context.Context) error {
	resp, err := c.api.ListFiles(ctx)
	if err != nil {
		return fmt.Errorf("list failed: %w", err)
	}
	printJSON(resp)
	return nil
}

func (c *Client) Stats(ctx context.Context) error {
	resp, err := c.api.Statistics(ctx)
	if err != nil {
		return fmt.Errorf("statistics request failed: %w", err)
	}
	printJSON(resp)
	return nil
}

func (c *Client) Providers(ctx context.Context) error {
	resp, err := c.api.Providers(ctx)
	if err != nil {
		return fmt.Errorf("providers request failed: %w", err)
	}
	printJSON(resp)
	return nil
}

func (c *Client) Test(ctx context.Context, provider string) error {
	resp, err := c.api.TestProvider(ctx, provider)
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	printJSON(resp)
	return nil
}

func (c *Client) SetPrimary(ctx context.Context, provider string) error {
	resp, err := c.api.SetPrimary(ctx, provider)
	if err != nil {
		return fmt.Errorf("set-primary failed: %w", err)
	}
	printJSON(resp)
	return nil
}

func (c *Client) SetRedundancy(ctx context.Context, level string) error {
	resp, err := c.api.SetRedundancy(ctx, level)
	if err != nil {
		return fmt.Errorf("set-redundancy failed: %w", err)
	}
	printJSON(resp)
	return nil
}

func requireArg(cCtx *cli.Context, name string) (string, error) {
	v := cCtx.Args().First()
	if v == "" {
		return "", fmt.Errorf("%s argument is required", name)
	}
	return v, nil
}

func readPayload(path string) ([]byte, error) {
	if path == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func printJSON(v any) {
	encoded, _ := json.Marshal(v)
	fmt.Println(string(encoded))
}
