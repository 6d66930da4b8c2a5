package controller

import (
	"context"

	"github.com/morezero/callables-client/pkg/client"
)

// ExecuteFunction performs a one-shot remote call without the caller
// holding a controller: fetch the descriptor, set all parameters, execute,
// return just the result. Any failure — discovery, validation, transport —
// comes back as an error.
func ExecuteFunction(ctx context.Context, cli *client.Client, name string, params map[string]interface{}) (interface{}, error) {
	fn, err := cli.Describe(ctx, name)
	if err != nil {
		return nil, err
	}

	c := New(cli, name, &Opts{Descriptor: fn})
	for k, v := range params {
		c.SetParam(k, v)
	}
	return c.Execute(ctx)
}
